package commands

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/drivecp/pkg/config"
	"github.com/walteh/drivecp/pkg/log"
	"github.com/walteh/drivecp/pkg/postprocess"
	"github.com/walteh/drivecp/pkg/remote/drive"
	"github.com/walteh/drivecp/pkg/replicate"
	"gitlab.com/tozd/go/errors"
)

// RootOpts carries state shared by all subcommands, filled in by the root
// command's pre-run.
type RootOpts struct {
	Config *config.Config
}

type copyFlags struct {
	verbose  bool
	makeDirs bool

	merge       bool
	keepBoth    bool
	overwrite   bool
	interactive bool

	followShortcuts       bool
	followFileShortcuts   bool
	followFolderShortcuts bool

	perms    bool
	emails   bool
	comments bool

	patterns     []string
	patternFiles []string
	dedup        bool
}

// NewCopyCmd creates the copy command.
func NewCopyCmd(opts *RootOpts) *cobra.Command {
	cmd, _ := newCopyCmd(opts)
	return cmd
}

func newCopyCmd(opts *RootOpts) (*cobra.Command, *copyFlags) {
	flags := &copyFlags{}
	cmd := &cobra.Command{
		Use:   "copy SOURCE DEST [NAME]",
		Short: "Recursively copy a Drive folder",
		Long: `Copy recursively copies the folder SOURCE into the folder DEST.
SOURCE and DEST are object IDs or Drive URLs; DEST may also be a
'/'-separated path relative to SOURCE's parent folder. NAME renames the
copied root.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd, args, opts.Config, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "print every object as it is copied")
	cmd.Flags().BoolVarP(&flags.makeDirs, "make-dirs", "p", false, "create missing destination path segments")

	cmd.Flags().BoolVarP(&flags.merge, "merge", "m", false, "merge into existing folders, keep existing objects")
	cmd.Flags().BoolVarP(&flags.keepBoth, "keep-both", "b", false, "merge, keeping conflicting objects under numbered names")
	cmd.Flags().BoolVarP(&flags.overwrite, "overwrite", "o", false, "merge, replacing existing objects")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "merge, asking what to do per conflict")
	cmd.MarkFlagsMutuallyExclusive("merge", "keep-both", "overwrite", "interactive")

	cmd.Flags().BoolVar(&flags.followShortcuts, "follow-shortcuts", false, "copy shortcut targets instead of shortcuts")
	cmd.Flags().BoolVar(&flags.followFileShortcuts, "follow-file-shortcuts", false, "copy targets of file shortcuts only")
	cmd.Flags().BoolVar(&flags.followFolderShortcuts, "follow-folder-shortcuts", false, "copy targets of folder shortcuts only")
	cmd.MarkFlagsMutuallyExclusive("follow-shortcuts", "follow-file-shortcuts", "follow-folder-shortcuts")

	cmd.Flags().BoolVar(&flags.perms, "perms", false, "copy permissions to the copies")
	cmd.Flags().BoolVar(&flags.emails, "emails", false, "send notification emails when copying permissions")
	cmd.Flags().BoolVar(&flags.comments, "comments", false, "copy comment threads to the copies")

	cmd.Flags().StringArrayVar(&flags.patterns, "match", nil, "gitignore-style pattern of objects to copy (repeatable)")
	cmd.Flags().StringArrayVar(&flags.patternFiles, "match-file", nil, "file of patterns of objects to copy (repeatable)")
	cmd.Flags().BoolVar(&flags.dedup, "dedup-followed", false, "follow each shortcut target at most once")

	return cmd, flags
}

func runCopy(cmd *cobra.Command, args []string, cfg *config.Config, flags *copyFlags) error {
	ctx := cmd.Context()

	engineOpts, err := buildOptions(cmd, cfg, flags)
	if err != nil {
		return err
	}

	client, err := drive.NewFromEnv()
	if err != nil {
		return err
	}

	srcID, err := drive.ExtractID(args[0])
	if err != nil {
		return errors.Errorf("bad source: %w", err)
	}
	dest := args[1]
	if strings.Contains(dest, "://") {
		dest, err = drive.ExtractID(dest)
		if err != nil {
			return errors.Errorf("bad destination: %w", err)
		}
	}
	copyName := ""
	if len(args) == 3 {
		copyName = args[2]
	}

	console := log.New(cmd.OutOrStdout(), *zerolog.Ctx(ctx))
	engine, err := replicate.New(replicate.Params{
		Store:    client,
		Post:     postprocess.New(client),
		Prompter: newPrompter(os.Stdin, cmd.OutOrStdout()),
		Console:  console,
		Options:  engineOpts,
	})
	if err != nil {
		return err
	}
	return engine.Replicate(ctx, srcID, dest, copyName, flags.makeDirs)
}

// buildOptions layers the command line over the config file: a flag that was
// given wins, anything else falls back to the file's defaults.
func buildOptions(cmd *cobra.Command, cfg *config.Config, flags *copyFlags) (replicate.Options, error) {
	mode, err := replicate.ParseConflictMode(cfg.Conflicts)
	if err != nil {
		return replicate.Options{}, err
	}
	switch {
	case flags.merge:
		mode = replicate.ConflictKeepExisting
	case flags.keepBoth:
		mode = replicate.ConflictKeepBoth
	case flags.overwrite:
		mode = replicate.ConflictOverwrite
	case flags.interactive:
		mode = replicate.ConflictInteractive
	}

	policy, err := replicate.ParseShortcutPolicy(cfg.Shortcuts)
	if err != nil {
		return replicate.Options{}, err
	}
	switch {
	case flags.followShortcuts:
		policy = replicate.ShortcutsFollow
	case flags.followFileShortcuts:
		policy = replicate.ShortcutsFollowFiles
	case flags.followFolderShortcuts:
		policy = replicate.ShortcutsFollowDirs
	}

	patternFiles := cfg.PatternFiles
	if cmd.Flags().Changed("match-file") {
		patternFiles = flags.patternFiles
	}
	patterns := cfg.Patterns
	if cmd.Flags().Changed("match") {
		patterns = flags.patterns
	}
	filter, err := replicate.NewFilterFromSources(patternFiles, patterns)
	if err != nil {
		return replicate.Options{}, err
	}

	opts := replicate.Options{
		Verbose:              cfg.Verbose || flags.verbose,
		Mode:                 mode,
		Shortcuts:            policy,
		CopyPerms:            cfg.CopyPerms || flags.perms,
		SendEmails:           cfg.SendEmails || flags.emails,
		CopyComments:         cfg.CopyComments || flags.comments,
		Filter:               filter,
		DedupFollowedTargets: cfg.DedupFollowed || flags.dedup,
	}
	return opts, nil
}
