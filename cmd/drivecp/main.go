package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/walteh/drivecp/cmd/drivecp/commands"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "drivecp",
		Short: "A tool for copying directory trees inside Google Drive",
		Long: `drivecp recursively copies folders within Google Drive, something the
Drive API only supports file by file. It can merge into existing folders,
resolve name conflicts several ways, follow or preserve shortcuts, filter
what gets copied, and carry permissions and comments over to the copies.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts := addRootFlags(rootCmd)

	rootCmd.AddCommand(
		commands.NewCopyCmd(opts),
		commands.NewDupShareCmd(opts),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		commands.PrintError(err)
		os.Exit(1)
	}
}
