package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"mirrorcast/internal/services"
)

const (
	playlistMarker   = "#EXTM3U"
	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// HTTPDoer describes the HTTP client used by strategies and probes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PlaylistProbe fetches a playlist and checks that it looks like HLS.
type PlaylistProbe struct {
	client  HTTPDoer
	timeout time.Duration
}

// NewPlaylistProbe returns a probe bounded by timeout per request.
func NewPlaylistProbe(client HTTPDoer, timeout time.Duration) *PlaylistProbe {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &PlaylistProbe{client: client, timeout: timeout}
}

// Validate issues a GET and requires the body to start with #EXTM3U.
func (p *PlaylistProbe) Validate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrNotFound, "feed", "probe", fmt.Sprintf("playlist returned %d", resp.StatusCode), nil)
	}
	head, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return services.Wrap(services.ErrTransient, "feed", "probe", "read playlist", err)
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(bytes.TrimSpace(head), []byte(playlistMarker)) {
		return services.Wrap(services.ErrValidation, "feed", "probe", "response is not an HLS playlist", nil)
	}
	return nil
}

// Exists sends a HEAD request and falls back to a full validation when the
// HEAD is refused or inconclusive.
func (p *PlaylistProbe) Exists(ctx context.Context, url string) error {
	headCtx, cancel := context.WithTimeout(ctx, p.timeout)
	resp, err := p.do(headCtx, http.MethodHead, url)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			cancel()
			return services.Wrap(services.ErrNotFound, "feed", "probe", fmt.Sprintf("playlist returned %d", resp.StatusCode), nil)
		}
	}
	cancel()
	return p.Validate(ctx, url)
}

func (p *PlaylistProbe) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "feed", "probe", "build request", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/vnd.apple.mpegurl, */*")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feed", "probe", method+" playlist", err)
	}
	return resp, nil
}
