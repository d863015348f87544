package config

const (
	defaultConfigPath               = "~/.config/mirrorcast/config.toml"
	defaultStateDir                 = "~/.local/share/mirrorcast"
	defaultLogDir                   = "~/.local/share/mirrorcast/logs"
	defaultLogRetentionDays         = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultTwitchAPIBaseURL         = "https://api.twitch.tv/helix"
	defaultTwitchTokenURL           = "https://id.twitch.tv/oauth2/token"
	defaultTwitchGQLURL             = "https://gql.twitch.tv/gql"
	defaultUsherBaseURL             = "https://usher.ttvnw.net/api/channel/hls"
	defaultGQLClientID              = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	defaultAlternateClientID        = "ue6666qo983tsx6so1t0vnawi233wa"
	defaultIngestURL                = "rtmp://a.rtmp.youtube.com/live2/"
	defaultPrivacy                  = "public"
	defaultArchivePrivacy           = "unlisted"
	defaultAPIAttempts              = 3
	defaultAPIRetryInterval         = 2
	defaultTestingSettle            = 3
	defaultRequestTimeout           = 10
	defaultFFmpegBinary             = "ffmpeg"
	defaultMaxRestarts              = 3
	defaultRestartDelay             = 5
	defaultStopGrace                = 5
	defaultStatsFrameInterval       = 300
	defaultStrategyTimeout          = 10
	defaultHelperTimeout            = 20
	defaultProbeTimeout             = 8
	defaultStreamlinkBinary         = "streamlink"
	defaultYtDlpBinary              = "yt-dlp"
	defaultQuality                  = "best"
	defaultWatchInterval            = 30
	defaultPollTimeout              = 10
	defaultSettleDelay              = 15
	defaultReadinessBackoff         = 30
	defaultShutdownTimeout          = 20
	defaultLiveTitleFormat          = "{title}"
	defaultLiveDescriptionFormat    = "Live mirror of https://twitch.tv/{channel}\nPlaying: {game}"
	defaultArchiveTitleFormat       = "{title} [{date}]"
	defaultArchiveDescriptionFormat = "Recorded live on {date} from https://twitch.tv/{channel}\nGame: {game}\nDuration: {duration}"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultNotifyRequestTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Twitch: Twitch{
			APIBaseURL:         defaultTwitchAPIBaseURL,
			TokenURL:           defaultTwitchTokenURL,
			GQLURL:             defaultTwitchGQLURL,
			UsherBaseURL:       defaultUsherBaseURL,
			GQLClientID:        defaultGQLClientID,
			AlternateClientIDs: []string{defaultAlternateClientID},
		},
		YouTube: YouTube{
			IngestURL:               defaultIngestURL,
			ManageBroadcast:         true,
			Privacy:                 defaultPrivacy,
			APIAttempts:             defaultAPIAttempts,
			APIRetryIntervalSeconds: defaultAPIRetryInterval,
			TestingSettleSeconds:    defaultTestingSettle,
			RequestTimeout:          defaultRequestTimeout,
		},
		Relay: Relay{
			FFmpegBinary:        defaultFFmpegBinary,
			MaxRestarts:         defaultMaxRestarts,
			RestartDelaySeconds: defaultRestartDelay,
			StopGraceSeconds:    defaultStopGrace,
			StatsFrameInterval:  defaultStatsFrameInterval,
		},
		Feed: Feed{
			StrategyTimeout:  defaultStrategyTimeout,
			HelperTimeout:    defaultHelperTimeout,
			ProbeTimeout:     defaultProbeTimeout,
			StreamlinkBinary: defaultStreamlinkBinary,
			YtDlpBinary:      defaultYtDlpBinary,
			Quality:          defaultQuality,
			DirectFallback:   true,
		},
		Watcher: Watcher{
			IntervalSeconds:    defaultWatchInterval,
			PollTimeoutSeconds: defaultPollTimeout,
		},
		Session: Session{
			SettleDelaySeconds:      defaultSettleDelay,
			ReadinessBackoffSeconds: defaultReadinessBackoff,
			ShutdownTimeoutSeconds:  defaultShutdownTimeout,
		},
		Titles: Titles{
			LiveTitleFormat:   defaultLiveTitleFormat,
			DescriptionFormat: defaultLiveDescriptionFormat,
		},
		Archive: Archive{
			Enabled:           true,
			Privacy:           defaultArchivePrivacy,
			TitleFormat:       defaultArchiveTitleFormat,
			DescriptionFormat: defaultArchiveDescriptionFormat,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SessionLive:    true,
			SessionEnded:   true,
			Errors:         true,
		},
		API: API{
			Enabled: true,
			Bind:    defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
