package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	format_files "github.com/walteh/htmlphpfmt/cmd/htmlphpfmt/format-files"
	"github.com/walteh/htmlphpfmt/cmd/htmlphpfmt/restore"
	"github.com/walteh/htmlphpfmt/cmd/htmlphpfmt/tokenize"
	"gitlab.com/tozd/go/errors"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "htmlphpfmt",
		Short:         "Format HTML templates with embedded PHP using prettier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)

	rootCmd.AddCommand(format_files.NewFormatCommand())
	rootCmd.AddCommand(tokenize.NewTokenizeCommand())
	rootCmd.AddCommand(restore.NewRestoreCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
