package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mirrorcast/internal/config"
	"mirrorcast/internal/deps"
	"mirrorcast/internal/history"
	"mirrorcast/internal/ipc"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached mirrorcast daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon when it is not reachable and asks it to
// start watching.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	statusResp, statusErr := client.Status()
	if statusErr == nil && statusResp != nil && statusResp.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	if resp != nil {
		message := strings.TrimSpace(resp.Message)
		if resp.Started {
			return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
		}
		if strings.Contains(strings.ToLower(message), "already running") {
			return StartResult{State: StartStateAlreadyRunning, Launched: launched, Message: message}, nil
		}
		if message != "" {
			return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
		}
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}, nil
}

// WaitForShutdown waits for the daemon socket to stop accepting connections.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return nil
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("daemon did not stop: socket still accepting connections")
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	pid := 0
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// ReadPID returns the pid recorded in pidPath, or zero when absent.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q in %s", text, pidPath)
	}
	return pid, nil
}

// ProcessAlive reports whether a process with pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ForceKillProcess sends SIGKILL to the daemon process and removes its pid
// and socket files.
func ForceKillProcess(pidPath, socketPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if socketPath != "" {
		_ = os.Remove(socketPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate ends any active session, asks the daemon process to exit
// with SIGTERM and force-kills it if it is still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if statusResp, statusErr := client.Status(); statusErr == nil && statusResp != nil {
		pid = statusResp.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	if pid > 0 && pid != os.Getpid() {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
		}
	}
	if err := WaitForShutdown(socketPath, gracePeriod); err == nil && !ProcessAlive(pid) {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), socketPath, pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusLine is one labelled readiness check.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// Snapshot is the status view rendered by the CLI.
type Snapshot struct {
	Reachable         bool               `json:"reachable"`
	Status            ipc.StatusResponse `json:"status"`
	SystemChecks      []StatusLine       `json:"systemChecks"`
	DependencySummary DependencySummary  `json:"dependencySummary"`
}

// BuildStatusSnapshot collects daemon status and falls back to the history
// database and local dependency checks when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Status = *resp
			snapshot.Reachable = true
		}
	}

	if !snapshot.Reachable {
		snapshot.Status.Session.Channel = cfg.Twitch.Channel
		snapshot.Status.Session.State = "idle"
		snapshot.Status.HistoryDBPath = cfg.HistoryDBPath()
		snapshot.Status.LockFilePath = cfg.LockPath()
		if stats, statsErr := offlineHistoryStats(ctx, cfg); statsErr == nil {
			snapshot.Status.History = stats
		}
	}
	if len(snapshot.Status.Dependencies) == 0 {
		snapshot.Status.Dependencies = ResolveDependencies(cfg)
	}

	snapshot.SystemChecks = BuildSystemChecks(cfg, snapshot.Reachable, snapshot.Status.Running)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Status.Dependencies)
	return snapshot, nil
}

func offlineHistoryStats(ctx context.Context, cfg *config.Config) (map[string]int, error) {
	if _, err := os.Stat(cfg.HistoryDBPath()); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for state, count := range stats {
		out[string(state)] = count
	}
	return out, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := deps.CheckBinaries(deps.Requirements(cfg))
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

// DependencySeverity classifies one dependency for display.
func DependencySeverity(dep ipc.DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, daemonReachable, watching bool) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	switch {
	case !daemonReachable:
		lines = append(lines, StatusLine{Label: "Mirrorcast", Severity: "warn", Detail: "Not running (run `mirrorcast start`)"})
	case watching:
		lines = append(lines, StatusLine{Label: "Mirrorcast", Severity: "ok", Detail: "Watching"})
	default:
		lines = append(lines, StatusLine{Label: "Mirrorcast", Severity: "warn", Detail: "Daemon up, watching stopped"})
	}

	channel := strings.TrimSpace(cfg.Twitch.Channel)
	if channel == "" {
		lines = append(lines, StatusLine{Label: "Channel", Severity: "error", Detail: "Not configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Channel", Severity: "ok", Detail: channel})
	}

	switch {
	case strings.TrimSpace(cfg.Twitch.ClientID) == "":
		lines = append(lines, StatusLine{Label: "Twitch API", Severity: "error", Detail: "Client ID missing"})
	case strings.TrimSpace(cfg.Twitch.AccessToken) != "":
		lines = append(lines, StatusLine{Label: "Twitch API", Severity: "ok", Detail: "User token"})
	case strings.TrimSpace(cfg.Twitch.ClientSecret) != "":
		lines = append(lines, StatusLine{Label: "Twitch API", Severity: "ok", Detail: "App token (client credentials)"})
	default:
		lines = append(lines, StatusLine{Label: "Twitch API", Severity: "error", Detail: "No access token or client secret"})
	}

	if cfg.DestinationManaged() {
		lines = append(lines, StatusLine{Label: "YouTube", Severity: "ok", Detail: "Managed broadcasts"})
	} else {
		lines = append(lines, StatusLine{Label: "YouTube", Severity: "info", Detail: "Relay only (no API credentials)"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}

	if cfg.API.Enabled {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "ok", Detail: cfg.API.Bind})
	} else {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []ipc.DependencyStatus) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
