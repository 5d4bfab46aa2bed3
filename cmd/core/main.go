// Package main is the field-sync core command line. It runs the sync core
// headless and exposes one-shot maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wahabsharif/premierspaces-app/backend/internal/app"
	"github.com/wahabsharif/premierspaces-app/backend/internal/config"
)

// Version is set at build time
var Version = "0.1.0"

type rootOptions struct {
	configFile string
	offline    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline-first sync core for field jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "start with connectivity reported offline")

	cmd.AddCommand(
		newVersionCommand(),
		newRunCommand(opts),
		newSyncCommand(opts),
		newPendingCommand(opts),
		newCacheCommand(opts),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "FieldSync Core v%s\n", Version)
		},
	}
}

// loadApp builds the core from the configured file without starting it.
func loadApp(opts *rootOptions) (*app.App, *config.Loader, error) {
	loader, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(loader.Config(), app.Options{Online: !opts.offline})
	if err != nil {
		return nil, nil, err
	}
	return a, loader, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
