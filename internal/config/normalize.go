package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTwitch()
	c.normalizeYouTube()
	c.normalizeRelay()
	c.normalizeFeed()
	c.normalizeTiming()
	c.normalizeTemplates()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(envFallback(c.API.Token, "MIRRORCAST_API_TOKEN"))
	return nil
}

func (c *Config) normalizeTwitch() {
	c.Twitch.Channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(envFallback(c.Twitch.Channel, "TWITCH_CHANNEL")), "@"))
	c.Twitch.ClientID = strings.TrimSpace(envFallback(c.Twitch.ClientID, "TWITCH_CLIENT_ID"))
	c.Twitch.ClientSecret = strings.TrimSpace(envFallback(c.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET"))
	c.Twitch.AccessToken = strings.TrimPrefix(strings.TrimSpace(envFallback(c.Twitch.AccessToken, "TWITCH_ACCESS_TOKEN")), "oauth:")
	c.Twitch.APIBaseURL = strings.TrimRight(defaultString(c.Twitch.APIBaseURL, defaultTwitchAPIBaseURL), "/")
	c.Twitch.TokenURL = defaultString(c.Twitch.TokenURL, defaultTwitchTokenURL)
	c.Twitch.GQLURL = defaultString(c.Twitch.GQLURL, defaultTwitchGQLURL)
	c.Twitch.UsherBaseURL = strings.TrimRight(defaultString(c.Twitch.UsherBaseURL, defaultUsherBaseURL), "/")
	c.Twitch.GQLClientID = defaultString(c.Twitch.GQLClientID, defaultGQLClientID)

	ids := make([]string, 0, len(c.Twitch.AlternateClientIDs))
	seen := map[string]struct{}{c.Twitch.GQLClientID: {}}
	for _, id := range c.Twitch.AlternateClientIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	c.Twitch.AlternateClientIDs = ids
}

func (c *Config) normalizeYouTube() {
	c.YouTube.ClientID = strings.TrimSpace(envFallback(c.YouTube.ClientID, "YOUTUBE_CLIENT_ID"))
	c.YouTube.ClientSecret = strings.TrimSpace(envFallback(c.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET"))
	c.YouTube.RefreshToken = strings.TrimSpace(envFallback(c.YouTube.RefreshToken, "YOUTUBE_REFRESH_TOKEN"))
	c.YouTube.StreamKey = strings.TrimSpace(envFallback(c.YouTube.StreamKey, "YOUTUBE_STREAM_KEY"))
	c.YouTube.IngestURL = defaultString(envFallback(c.YouTube.IngestURL, "YOUTUBE_RTMP_URL"), defaultIngestURL)
	c.YouTube.APIEndpoint = strings.TrimSpace(c.YouTube.APIEndpoint)
	c.YouTube.Privacy = strings.ToLower(defaultString(c.YouTube.Privacy, defaultPrivacy))
	if c.YouTube.APIAttempts <= 0 {
		c.YouTube.APIAttempts = defaultAPIAttempts
	}
	if c.YouTube.APIRetryIntervalSeconds < 0 {
		c.YouTube.APIRetryIntervalSeconds = 0
	}
	if c.YouTube.TestingSettleSeconds < 0 {
		c.YouTube.TestingSettleSeconds = 0
	}
	if c.YouTube.RequestTimeout <= 0 {
		c.YouTube.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeRelay() {
	c.Relay.FFmpegBinary = defaultString(c.Relay.FFmpegBinary, defaultFFmpegBinary)
	if c.Relay.MaxRestarts < 0 {
		c.Relay.MaxRestarts = 0
	}
	if c.Relay.RestartDelaySeconds < 0 {
		c.Relay.RestartDelaySeconds = 0
	}
	if c.Relay.StopGraceSeconds <= 0 {
		c.Relay.StopGraceSeconds = defaultStopGrace
	}
	if c.Relay.StatsFrameInterval <= 0 {
		c.Relay.StatsFrameInterval = defaultStatsFrameInterval
	}
	args := c.Relay.ExtraInputArgs[:0]
	for _, arg := range c.Relay.ExtraInputArgs {
		if arg = strings.TrimSpace(arg); arg != "" {
			args = append(args, arg)
		}
	}
	c.Relay.ExtraInputArgs = args
}

func (c *Config) normalizeFeed() {
	c.Feed.StreamlinkBinary = strings.TrimSpace(c.Feed.StreamlinkBinary)
	c.Feed.YtDlpBinary = strings.TrimSpace(c.Feed.YtDlpBinary)
	c.Feed.Quality = defaultString(c.Feed.Quality, defaultQuality)
	if c.Feed.StrategyTimeout <= 0 {
		c.Feed.StrategyTimeout = defaultStrategyTimeout
	}
	if c.Feed.HelperTimeout <= 0 {
		c.Feed.HelperTimeout = defaultHelperTimeout
	}
	if c.Feed.ProbeTimeout <= 0 {
		c.Feed.ProbeTimeout = defaultProbeTimeout
	}
}

func (c *Config) normalizeTiming() {
	if c.Watcher.PollTimeoutSeconds <= 0 {
		c.Watcher.PollTimeoutSeconds = defaultPollTimeout
	}
	if c.Session.SettleDelaySeconds < 0 {
		c.Session.SettleDelaySeconds = 0
	}
	if c.Session.ReadinessBackoffSeconds < 0 {
		c.Session.ReadinessBackoffSeconds = 0
	}
	if c.Session.ShutdownTimeoutSeconds <= 0 {
		c.Session.ShutdownTimeoutSeconds = defaultShutdownTimeout
	}
}

func (c *Config) normalizeTemplates() {
	c.Titles.LiveTitleFormat = defaultString(c.Titles.LiveTitleFormat, defaultLiveTitleFormat)
	if strings.TrimSpace(c.Titles.DescriptionFormat) == "" {
		c.Titles.DescriptionFormat = defaultLiveDescriptionFormat
	}
	c.Archive.Privacy = strings.ToLower(defaultString(c.Archive.Privacy, defaultArchivePrivacy))
	c.Archive.TitleFormat = defaultString(c.Archive.TitleFormat, defaultArchiveTitleFormat)
	if strings.TrimSpace(c.Archive.DescriptionFormat) == "" {
		c.Archive.DescriptionFormat = defaultArchiveDescriptionFormat
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(envFallback(c.Notifications.NtfyTopic, "NTFY_TOPIC"))
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func envFallback(value, key string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
