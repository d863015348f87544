package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var validPrivacy = map[string]struct{}{
	"public":   {},
	"unlisted": {},
	"private":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTwitch(); err != nil {
		return err
	}
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTwitch() error {
	if c.Twitch.Channel == "" {
		return fmt.Errorf("twitch.channel is required. Set TWITCH_CHANNEL or edit %s (create with 'mirrorcast config init')", configHint())
	}
	if c.Twitch.ClientID == "" {
		return errors.New("twitch.client_id is required (TWITCH_CLIENT_ID)")
	}
	if c.Twitch.AccessToken == "" && c.Twitch.ClientSecret == "" {
		return errors.New("twitch.access_token or twitch.client_secret must be set")
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if c.YouTube.StreamKey == "" {
		return errors.New("youtube.stream_key is required (YOUTUBE_STREAM_KEY)")
	}
	parsed, err := url.Parse(c.YouTube.IngestURL)
	if err != nil || (parsed.Scheme != "rtmp" && parsed.Scheme != "rtmps") {
		return fmt.Errorf("youtube.ingest_url must be an rtmp:// or rtmps:// url, got %q", c.YouTube.IngestURL)
	}
	if _, ok := validPrivacy[c.YouTube.Privacy]; !ok {
		return fmt.Errorf("youtube.privacy must be one of public, unlisted, private (got %q)", c.YouTube.Privacy)
	}
	if c.YouTube.ManageBroadcast {
		partial := c.YouTube.ClientID != "" || c.YouTube.ClientSecret != "" || c.YouTube.RefreshToken != ""
		if partial && !c.YouTubeCredentialsPresent() {
			return errors.New("youtube.client_id, youtube.client_secret, and youtube.refresh_token must all be set to manage broadcasts")
		}
	}
	return nil
}

func (c *Config) validateTiming() error {
	return ensurePositiveMap(map[string]int{
		"watcher.interval":              c.Watcher.IntervalSeconds,
		"watcher.poll_timeout":          c.Watcher.PollTimeoutSeconds,
		"feed.strategy_timeout":         c.Feed.StrategyTimeout,
		"feed.helper_timeout":           c.Feed.HelperTimeout,
		"feed.probe_timeout":            c.Feed.ProbeTimeout,
		"relay.stop_grace":              c.Relay.StopGraceSeconds,
		"youtube.request_timeout":       c.YouTube.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if _, ok := validPrivacy[c.Archive.Privacy]; !ok {
		return fmt.Errorf("archive.privacy must be one of public, unlisted, private (got %q)", c.Archive.Privacy)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func configHint() string {
	path, err := DefaultConfigPath()
	if err != nil || strings.TrimSpace(path) == "" {
		return defaultConfigPath
	}
	return path
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
