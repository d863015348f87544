package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mirrorcast/internal/daemonctl"
	"mirrorcast/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon and begin watching the configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Watching started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Already watching")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "End any mirror session and terminate the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, cfg.ShutdownTimeout()+5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping mirror session and watcher...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time, killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				cfg,
				exe,
				daemonLaunchOptions(ctx),
				cfg.ShutdownTimeout()+5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Daemon did not exit in time, killed pid %d\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the mirror session, system checks and history counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(stdout io.Writer, snapshot *daemonctl.Snapshot, colorize bool) {
	for _, line := range renderSectionHeader("Mirror Session", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range sessionLines(snapshot.Status, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range snapshot.SystemChecks {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(snapshot.Status.Dependencies, snapshot.DependencySummary, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Session History", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildHistoryCountRows(snapshot.Status.History)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No sessions recorded")
		return
	}
	fmt.Fprintln(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func sessionLines(status ipc.StatusResponse, colorize bool) []string {
	s := status.Session
	lines := []string{
		renderStatusLine("Channel", statusInfo, s.Channel, colorize),
		renderStatusLine("Watching", boolKind(s.Watching), yesNo(s.Watching), colorize),
		renderStatusLine("Source live", statusInfo, yesNo(s.SourceLive), colorize),
		fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "State:", colorizeState(s.State, colorize)),
	}
	if status.LastPoll != "" {
		lines = append(lines, renderStatusLine("Last poll", statusInfo, relativeTime(status.LastPoll), colorize))
	}
	if status.LastPollError != "" {
		lines = append(lines, renderStatusLine("Poll error", statusWarn, status.LastPollError, colorize))
	}
	if s.SessionID == "" {
		return lines
	}
	lines = append(lines,
		renderStatusLine("Session", statusInfo, s.SessionID, colorize),
		renderStatusLine("Started", statusInfo, relativeTime(s.StartedAt), colorize),
		renderStatusLine("Elapsed", statusInfo, (time.Duration(s.ElapsedSeconds) * time.Second).String(), colorize),
	)
	if s.Source != nil && s.Source.Title != "" {
		lines = append(lines, renderStatusLine("Title", statusInfo, s.Source.Title, colorize))
	}
	switch {
	case s.RelayOnly:
		lines = append(lines, renderStatusLine("Broadcast", statusInfo, "relay only", colorize))
	case s.BroadcastURL != "":
		lines = append(lines, renderStatusLine("Broadcast", statusOK, s.BroadcastURL, colorize))
	}
	if s.Relay != nil {
		detail := fmt.Sprintf("pid %d, %.1f fps, %.0f kbit/s, %.2fx, cpu %.1f%%, rss %s",
			s.Relay.PID, s.Relay.FPS, s.Relay.BitrateKbs, s.Relay.Speed, s.Relay.CPUPercent, humanize.IBytes(s.Relay.RSSBytes))
		lines = append(lines, renderStatusLine("Relay", boolKind(s.RelayActive), detail, colorize))
	}
	if s.RelayRestarts > 0 {
		lines = append(lines, renderStatusLine("Relay restarts", statusWarn, strconv.Itoa(s.RelayRestarts), colorize))
	}
	if s.FailureCause != "" {
		detail := s.FailureCause
		if s.FailureError != "" {
			detail += ": " + s.FailureError
		}
		lines = append(lines, renderStatusLine("Failure", statusError, detail, colorize))
	}
	return lines
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusWarn
}

func relativeTime(value string) string {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%s (%s)", parsed.Local().Format("2006-01-02 15:04:05"), humanize.Time(parsed))
}

var historyStateOrder = []string{"completed", "failed", "live", "ending", "publishing", "testing", "provisioning", "relaying", "resolving"}

func buildHistoryCountRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(stats))
	rows := make([][]string, 0, len(stats))
	for _, state := range historyStateOrder {
		if count, ok := stats[state]; ok {
			rows = append(rows, []string{state, strconv.Itoa(count)})
			seen[state] = true
		}
	}
	extra := make([]string, 0)
	for state := range stats {
		if !seen[state] {
			extra = append(extra, state)
		}
	}
	sort.Strings(extra)
	for _, state := range extra {
		rows = append(rows, []string{state, strconv.Itoa(stats[state])})
	}
	return rows
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusKindFromSeverity(daemonctl.DependencySeverity(dep)), detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   ctx.logLevel(),
	}
}
