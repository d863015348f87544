package feed

import (
	"log/slog"
	"net/http"
	"time"

	"mirrorcast/internal/config"
)

// NewFromConfig assembles the default strategy order: token exchange with the
// primary client id, then each alternate id, then the helper tools, then the
// direct usher fallback.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, helperOpts ...HelperOption) *Resolver {
	probeTimeout := time.Duration(cfg.Feed.ProbeTimeout) * time.Second
	strategyTimeout := time.Duration(cfg.Feed.StrategyTimeout) * time.Second
	helperTimeout := time.Duration(cfg.Feed.HelperTimeout) * time.Second
	client := &http.Client{Timeout: strategyTimeout}
	probe := NewPlaylistProbe(&http.Client{}, probeTimeout)

	strategies := []Strategy{
		NewTokenExchange(cfg.Twitch.GQLURL, cfg.Twitch.UsherBaseURL, cfg.Twitch.GQLClientID, client),
	}
	for _, id := range cfg.Twitch.AlternateClientIDs {
		strategies = append(strategies, NewTokenExchange(cfg.Twitch.GQLURL, cfg.Twitch.UsherBaseURL, id, client))
	}
	strategies = append(strategies,
		NewStreamlink(cfg.Feed.StreamlinkBinary, cfg.Feed.Quality, helperTimeout, helperOpts...),
		NewYtDlp(cfg.Feed.YtDlpBinary, cfg.Feed.Quality, helperTimeout, helperOpts...),
	)
	if cfg.Feed.DirectFallback {
		strategies = append(strategies, NewDirect(cfg.Twitch.UsherBaseURL, cfg.Twitch.GQLClientID, probe))
	}

	// Helper tools get their own, longer budget.
	timeout := strategyTimeout
	if helperTimeout > timeout {
		timeout = helperTimeout
	}
	return NewResolver(strategies,
		WithValidator(probe),
		WithStrategyTimeout(timeout),
		WithLogger(logger),
	)
}
