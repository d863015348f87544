package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mirrorcast/internal/ipc"
)

func newStopSessionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-session",
		Short: "End the active mirror session but keep watching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StopSession()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Mirror session ended")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No active mirror session")
				}
				return nil
			})
		},
	}
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve [channel]",
		Short: "Resolve the playable feed URL for a channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel := ""
			if len(args) == 1 {
				channel = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resolve(channel)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(resp.Attempts))
				for _, attempt := range resp.Attempts {
					result := "ok"
					if attempt.Error != "" {
						result = attempt.Error
					}
					rows = append(rows, []string{
						attempt.Strategy,
						(time.Duration(attempt.DurationMS) * time.Millisecond).String(),
						result,
					})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Strategy", "Took", "Result"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
				}
				if resp.Error != "" {
					return fmt.Errorf("resolve failed: %s", resp.Error)
				}
				fmt.Fprintln(out, resp.URL)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the resolution as JSON")
	return cmd
}
