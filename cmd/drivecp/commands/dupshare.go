package commands

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/drivecp/pkg/dupshare"
	"github.com/walteh/drivecp/pkg/log"
	"github.com/walteh/drivecp/pkg/remote/drive"
	"gitlab.com/tozd/go/errors"
)

// NewDupShareCmd creates the dup-share command.
func NewDupShareCmd(opts *RootOpts) *cobra.Command {
	var (
		dest         string
		makeDirs     bool
		name         string
		noEmail      bool
		emailMessage string
		parallel     int
	)

	cmd := &cobra.Command{
		Use:   "dup-share TEMPLATE GROUPS",
		Short: "Duplicate a document per group and share each copy",
		Long: `Dup-share copies the document TEMPLATE once per group and shares each
copy with the group's members as writers. GROUPS is a CSV source: a local
file, '-' for stdin, or the ID or URL of a Drive file or spreadsheet.

Each CSV row is either "group-name,email1,email2,..." or
"last-name,first-name,email"; the layout is detected automatically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := drive.NewFromEnv()
			if err != nil {
				return err
			}

			templateID, err := drive.ExtractID(args[0])
			if err != nil {
				return errors.Errorf("bad template: %w", err)
			}

			groupSource := args[1]
			if strings.Contains(groupSource, "://") {
				groupSource, err = drive.ExtractID(groupSource)
				if err != nil {
					return errors.Errorf("bad group source: %w", err)
				}
			}
			groups, err := dupshare.LoadGroups(ctx, client, groupSource)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				return errors.New("no groups found in the group source")
			}

			if strings.Contains(dest, "://") {
				dest, err = drive.ExtractID(dest)
				if err != nil {
					return errors.Errorf("bad destination: %w", err)
				}
			}

			if parallel == 0 {
				parallel = opts.Config.Parallel
			}

			console := log.New(cmd.OutOrStdout(), *zerolog.Ctx(ctx))
			runner, err := dupshare.New(client, client, console)
			if err != nil {
				return err
			}
			return runner.Run(ctx, templateID, groups, dupshare.Options{
				NameTemplate: name,
				Dest:         dest,
				MakeDirs:     makeDirs,
				SendEmail:    !noEmail,
				EmailMessage: emailMessage,
				Parallel:     parallel,
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "destination folder (default: the template's folder)")
	cmd.Flags().BoolVarP(&makeDirs, "make-dirs", "p", false, "create missing destination path segments")
	cmd.Flags().StringVar(&name, "name", "", "name template for the copies, {} is the group name")
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "do not send notification emails")
	cmd.Flags().StringVar(&emailMessage, "email-message", "", "custom message for notification emails")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "groups to process concurrently")

	return cmd
}
