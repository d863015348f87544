package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mirrorcast/internal/api"
	"mirrorcast/internal/history"
	"mirrorcast/internal/ipc"
	"mirrorcast/internal/textutil"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recent mirror sessions or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				sess, err := lookupSession(cmd.Context(), ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sess)
				}
				renderSessionDetail(cmd.OutOrStdout(), sess, shouldColorize(cmd.OutOrStdout()))
				return nil
			}

			sessions, err := listSessions(cmd.Context(), ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.SessionListResponse{Sessions: sessions})
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Duration", "State", "Restarts", "Title"},
				sessionRows(sessions, shouldColorize(out)),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// listSessions asks the daemon first and reads the database directly when it
// is not running.
func listSessions(cmdCtx context.Context, ctx *commandContext, limit int) ([]api.Session, error) {
	client, err := ipc.Dial(ctx.socketPath())
	if err == nil {
		defer client.Close()
		resp, callErr := client.History(limit)
		if callErr != nil {
			return nil, callErr
		}
		return resp.Sessions, nil
	}
	store, err := openHistory(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	records, err := store.List(cmdCtx, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}

func lookupSession(cmdCtx context.Context, ctx *commandContext, id string) (api.Session, error) {
	client, err := ipc.Dial(ctx.socketPath())
	if err == nil {
		defer client.Close()
		resp, callErr := client.Session(id)
		if callErr != nil {
			return api.Session{}, callErr
		}
		return resp.Session, nil
	}
	store, err := openHistory(ctx)
	if err != nil {
		return api.Session{}, err
	}
	defer store.Close()
	rec, err := store.Get(cmdCtx, id)
	if err != nil {
		return api.Session{}, err
	}
	if rec == nil {
		return api.Session{}, fmt.Errorf("session %s not found", id)
	}
	return api.FromRecord(rec), nil
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg)
}

func sessionRows(sessions []api.Session, colorize bool) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			shortID(s.ID),
			localTime(s.StartedAt),
			(time.Duration(s.DurationSeconds) * time.Second).String(),
			colorizeState(s.State, colorize),
			strconv.Itoa(s.RelayRestarts),
			textutil.Truncate(s.SourceTitle, 48),
		})
	}
	return rows
}

func renderSessionDetail(out io.Writer, s api.Session, colorize bool) {
	for _, line := range renderSectionHeader("Session "+s.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Channel", statusInfo, s.Channel, colorize))
	fmt.Fprintln(out, renderStatusLine("Streamer", statusInfo, s.Streamer, colorize))
	fmt.Fprintln(out, renderStatusLine("Title", statusInfo, s.SourceTitle, colorize))
	if s.Category != "" {
		fmt.Fprintln(out, renderStatusLine("Category", statusInfo, s.Category, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("State", sessionStateKind(s.State), s.State, colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, localTime(s.StartedAt), colorize))
	if s.EndedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Ended", statusInfo, localTime(s.EndedAt), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, (time.Duration(s.DurationSeconds)*time.Second).String(), colorize))
	if s.BroadcastID != "" {
		fmt.Fprintln(out, renderStatusLine("Broadcast", statusInfo, api.BroadcastURL(s.BroadcastID), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Relay restarts", statusInfo, strconv.Itoa(s.RelayRestarts), colorize))
	fmt.Fprintln(out, renderStatusLine("Readiness checks", statusInfo, strconv.Itoa(s.ReadinessChecks), colorize))
	if s.FailureCause != "" {
		detail := s.FailureCause
		if s.FailureError != "" {
			detail += ": " + s.FailureError
		}
		fmt.Fprintln(out, renderStatusLine("Failure", statusError, detail, colorize))
	}
	if len(s.Transitions) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(s.Transitions))
	for _, tr := range s.Transitions {
		rows = append(rows, []string{localTime(tr.At), tr.From, colorizeState(tr.To, colorize)})
	}
	fmt.Fprintln(out, renderTable([]string{"At", "From", "To"}, rows, nil))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func localTime(value string) string {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

