package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued jobs and stored uploads to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Sync.ManualSync(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "synced %d of %d jobs (%d failed, %d skipped)\n", res.Synced, res.Total, res.Failed, res.Skipped)
			if res.SegmentsSynced+res.SegmentsFailed > 0 {
				fmt.Fprintf(out, "uploaded %d files (%d failed)\n", res.SegmentsSynced, res.SegmentsFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newPendingCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List jobs waiting to be synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.Queue.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d pending\n", len(items))
			for _, it := range items {
				state := "queued"
				if it.Synced {
					state = "synced"
				}
				line := fmt.Sprintf("%s\tuser=%s\t%s\tattempts=%d", it.JobID, it.UserID, state, it.Attempts)
				if it.LastError != "" {
					line += "\terror=" + it.LastError
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
