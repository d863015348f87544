package feed

import (
	"context"
	"math/rand/v2"
	"strings"
)

// Direct builds the unsigned usher URL and accepts it only when the playlist
// answers a probe.
type Direct struct {
	usherBase string
	clientID  string
	probe     *PlaylistProbe
	nonce     func() int
}

// NewDirect constructs the direct fallback strategy.
func NewDirect(usherBase, clientID string, probe *PlaylistProbe) *Direct {
	if probe == nil {
		probe = NewPlaylistProbe(nil, 0)
	}
	return &Direct{
		usherBase: strings.TrimRight(strings.TrimSpace(usherBase), "/"),
		clientID:  strings.TrimSpace(clientID),
		probe:     probe,
		nonce:     func() int { return rand.IntN(1_000_000) },
	}
}

// Name returns "direct".
func (d *Direct) Name() string { return "direct" }

// Validated reports that Resolve already probed its result.
func (d *Direct) Validated() bool { return true }

// Resolve returns the usher URL when it exists.
func (d *Direct) Resolve(ctx context.Context, channel string) (string, error) {
	candidate := UsherURL(d.usherBase, channel, d.clientID, PlaybackToken{}, d.nonce())
	if err := d.probe.Exists(ctx, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
