package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for state and logs.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	EnvFile  string `toml:"env_file"`
}

// Twitch contains the source platform credentials and endpoints.
type Twitch struct {
	Channel            string   `toml:"channel"`
	ClientID           string   `toml:"client_id"`
	ClientSecret       string   `toml:"client_secret"`
	AccessToken        string   `toml:"access_token"`
	APIBaseURL         string   `toml:"api_base_url"`
	TokenURL           string   `toml:"token_url"`
	GQLURL             string   `toml:"gql_url"`
	UsherBaseURL       string   `toml:"usher_base_url"`
	GQLClientID        string   `toml:"gql_client_id"`
	AlternateClientIDs []string `toml:"alternate_client_ids"`
}

// YouTube contains destination credentials, ingest overrides, and lifecycle tuning.
type YouTube struct {
	ClientID                string `toml:"client_id"`
	ClientSecret            string `toml:"client_secret"`
	RefreshToken            string `toml:"refresh_token"`
	APIEndpoint             string `toml:"api_endpoint"`
	IngestURL               string `toml:"ingest_url"`
	StreamKey               string `toml:"stream_key"`
	ManageBroadcast         bool   `toml:"manage_broadcast"`
	Privacy                 string `toml:"privacy"`
	APIAttempts             int    `toml:"api_attempts"`
	APIRetryIntervalSeconds int    `toml:"api_retry_interval"`
	TestingSettleSeconds    int    `toml:"testing_settle"`
	RequestTimeout          int    `toml:"request_timeout"`
}

// Relay contains ffmpeg supervision settings.
type Relay struct {
	FFmpegBinary        string   `toml:"ffmpeg_binary"`
	MaxRestarts         int      `toml:"max_restarts"`
	RestartDelaySeconds int      `toml:"restart_delay"`
	StopGraceSeconds    int      `toml:"stop_grace"`
	StatsFrameInterval  int      `toml:"stats_frame_interval"`
	ExtraInputArgs      []string `toml:"extra_input_args"`
}

// Feed contains feed resolution strategy settings.
type Feed struct {
	StrategyTimeout  int    `toml:"strategy_timeout"`
	HelperTimeout    int    `toml:"helper_timeout"`
	ProbeTimeout     int    `toml:"probe_timeout"`
	StreamlinkBinary string `toml:"streamlink_binary"`
	YtDlpBinary      string `toml:"ytdlp_binary"`
	Quality          string `toml:"quality"`
	DirectFallback   bool   `toml:"direct_fallback"`
}

// Watcher contains source polling settings.
type Watcher struct {
	IntervalSeconds    int `toml:"interval"`
	PollTimeoutSeconds int `toml:"poll_timeout"`
}

// Session contains coordinator timing knobs.
type Session struct {
	SettleDelaySeconds      int `toml:"settle_delay"`
	ReadinessBackoffSeconds int `toml:"readiness_backoff"`
	ShutdownTimeoutSeconds  int `toml:"shutdown_timeout"`
}

// Titles contains the live broadcast title/description templates.
type Titles struct {
	LiveTitleFormat   string `toml:"live_title_format"`
	DescriptionFormat string `toml:"description_format"`
}

// Archive contains post-completion metadata settings.
type Archive struct {
	Enabled           bool   `toml:"enabled"`
	Privacy           string `toml:"privacy"`
	TitleFormat       string `toml:"title_format"`
	DescriptionFormat string `toml:"description_format"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionLive    bool   `toml:"session_live"`
	SessionEnded   bool   `toml:"session_ended"`
	Errors         bool   `toml:"errors"`
}

// API contains the HTTP status endpoint settings.
type API struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	Token   string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for mirrorcast.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and .env locations
//   - Twitch: source channel, credentials, and endpoints
//   - YouTube: destination credentials, ingest override, lifecycle tuning
//   - Relay: ffmpeg supervision and restart policy
//   - Feed: feed resolution strategy timeouts and helper tools
//   - Watcher: source polling cadence
//   - Session: settle delay and readiness backoff
//   - Titles / Archive: display strings for live and archived broadcasts
//   - Notifications: ntfy push notification settings
//   - API: HTTP status, metrics, and event stream endpoint
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Twitch        Twitch        `toml:"twitch"`
	YouTube       YouTube       `toml:"youtube"`
	Relay         Relay         `toml:"relay"`
	Feed          Feed          `toml:"feed"`
	Watcher       Watcher       `toml:"watcher"`
	Session       Session       `toml:"session"`
	Titles        Titles        `toml:"titles"`
	Archive       Archive       `toml:"archive"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := LoadUnvalidated(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

// LoadUnvalidated parses and normalizes a configuration file without running
// Validate. The CLI uses it to show configuration that is still incomplete.
func LoadUnvalidated(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile populates unset environment variables from a dotenv file so the
// normalize step can pick up credentials kept outside the TOML file.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mirrorcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryDBPath returns the sqlite database used for session history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "mirrorcast.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "mirrorcastd.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "mirrorcast.pid")
}

// IngestTarget joins the configured ingest URL and stream key, tolerating a
// trailing slash on the URL.
func (c *Config) IngestTarget() string {
	return JoinIngest(c.YouTube.IngestURL, c.YouTube.StreamKey)
}

// JoinIngest builds the relay output URL from an ingest base and key.
func JoinIngest(base, key string) string {
	base = strings.TrimSpace(base)
	key = strings.TrimSpace(key)
	if key == "" {
		return base
	}
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// DestinationManaged reports whether the destination lifecycle API is driven.
// Without OAuth credentials the daemon falls back to relay-only mode.
func (c *Config) DestinationManaged() bool {
	return c.YouTube.ManageBroadcast && c.YouTubeCredentialsPresent()
}

// YouTubeCredentialsPresent reports whether every OAuth field is populated.
func (c *Config) YouTubeCredentialsPresent() bool {
	return c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "" && c.YouTube.RefreshToken != ""
}

// WatchInterval returns the source polling cadence.
func (c *Config) WatchInterval() time.Duration {
	return seconds(c.Watcher.IntervalSeconds)
}

// PollTimeout bounds a single status query.
func (c *Config) PollTimeout() time.Duration {
	return seconds(c.Watcher.PollTimeoutSeconds)
}

// SettleDelay is the wait between relay start and destination provisioning.
func (c *Config) SettleDelay() time.Duration {
	return seconds(c.Session.SettleDelaySeconds)
}

// ReadinessBackoff is the wait between the two readiness checks.
func (c *Config) ReadinessBackoff() time.Duration {
	return seconds(c.Session.ReadinessBackoffSeconds)
}

// ShutdownTimeout bounds best-effort teardown on daemon exit.
func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.Session.ShutdownTimeoutSeconds)
}

// RestartDelay is the wait before a supervised relay restart.
func (c *Config) RestartDelay() time.Duration {
	return seconds(c.Relay.RestartDelaySeconds)
}

// StopGrace is the window between SIGTERM and SIGKILL for the relay.
func (c *Config) StopGrace() time.Duration {
	return seconds(c.Relay.StopGraceSeconds)
}

// TestingSettle is the wait between the testing and live transitions.
func (c *Config) TestingSettle() time.Duration {
	return seconds(c.YouTube.TestingSettleSeconds)
}

// APIRetryInterval is the wait between destination API attempts.
func (c *Config) APIRetryInterval() time.Duration {
	return seconds(c.YouTube.APIRetryIntervalSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	redacted.Twitch.ClientSecret = redact(redacted.Twitch.ClientSecret)
	redacted.Twitch.AccessToken = redact(redacted.Twitch.AccessToken)
	redacted.YouTube.ClientSecret = redact(redacted.YouTube.ClientSecret)
	redacted.YouTube.RefreshToken = redact(redacted.YouTube.RefreshToken)
	redacted.YouTube.StreamKey = redact(redacted.YouTube.StreamKey)
	redacted.API.Token = redact(redacted.API.Token)
	return toml.Marshal(redacted)
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
