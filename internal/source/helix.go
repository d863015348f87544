package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"mirrorcast/internal/config"
	"mirrorcast/internal/services"
	"mirrorcast/internal/session"
)

// Status is the answer to a single availability query.
type Status struct {
	Live     bool
	Snapshot session.SourceSnapshot
}

// StatusQuery reports whether a channel is currently live.
type StatusQuery interface {
	Status(ctx context.Context, channel string) (Status, error)
}

// HTTPDoer describes the HTTP client used by the Helix client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// tokenFunc obtains a bearer token under the caller's context.
type tokenFunc func(ctx context.Context) (*oauth2.Token, error)

// HelixClient queries the Twitch Helix streams endpoint.
type HelixClient struct {
	baseURL  string
	clientID string
	tokens   tokenFunc
	client   HTTPDoer
}

// appTokenSource caches a client-credentials token and fetches a new one
// under the poll context when it expires.
type appTokenSource struct {
	cfg    clientcredentials.Config
	client *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

func (s *appTokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token.Valid() {
		return s.token, nil
	}
	token, err := s.cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, s.client))
	if err != nil {
		return nil, err
	}
	s.token = token
	return token, nil
}

// Option customizes a HelixClient.
type Option func(*HelixClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *HelixClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTokenSource overrides how bearer tokens are obtained.
func WithTokenSource(tokens oauth2.TokenSource) Option {
	return func(c *HelixClient) {
		if tokens != nil {
			c.tokens = func(context.Context) (*oauth2.Token, error) { return tokens.Token() }
		}
	}
}

// WithBaseURL overrides the Helix API base URL.
func WithBaseURL(base string) Option {
	return func(c *HelixClient) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

// NewHelixClient builds a client from configuration. A configured access
// token is used as-is; otherwise an app token is fetched with the client
// credentials grant and refreshed when it expires. Token requests share the
// poll timeout and the caller's context.
func NewHelixClient(cfg *config.Config, opts ...Option) *HelixClient {
	c := &HelixClient{
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if cfg != nil {
		c.baseURL = cfg.Twitch.APIBaseURL
		c.clientID = cfg.Twitch.ClientID
		c.client = &http.Client{Timeout: cfg.PollTimeout()}
		switch {
		case cfg.Twitch.AccessToken != "":
			static := &oauth2.Token{AccessToken: cfg.Twitch.AccessToken}
			c.tokens = func(context.Context) (*oauth2.Token, error) { return static, nil }
		case cfg.Twitch.ClientSecret != "":
			app := &appTokenSource{
				cfg: clientcredentials.Config{
					ClientID:     cfg.Twitch.ClientID,
					ClientSecret: cfg.Twitch.ClientSecret,
					TokenURL:     cfg.Twitch.TokenURL,
					AuthStyle:    oauth2.AuthStyleInParams,
				},
				client: &http.Client{Timeout: cfg.PollTimeout()},
			}
			c.tokens = app.Token
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type streamsResponse struct {
	Data []struct {
		UserLogin   string    `json:"user_login"`
		UserName    string    `json:"user_name"`
		GameName    string    `json:"game_name"`
		Type        string    `json:"type"`
		Title       string    `json:"title"`
		ViewerCount int       `json:"viewer_count"`
		StartedAt   time.Time `json:"started_at"`
	} `json:"data"`
}

// Status queries GET /streams?user_login=<channel>. An empty data array means
// the channel is offline.
func (c *HelixClient) Status(ctx context.Context, channel string) (Status, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return Status{}, services.Wrap(services.ErrValidation, "source", "status", "channel is required", nil)
	}
	if c.tokens == nil {
		return Status{}, services.Wrap(services.ErrConfiguration, "source", "status", "twitch credentials not configured", nil)
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return Status{}, services.Wrap(services.ErrTransient, "source", "token", "obtain twitch app token", err)
	}

	endpoint := fmt.Sprintf("%s/streams?user_login=%s", c.baseURL, url.QueryEscape(channel))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build helix request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return Status{}, services.Wrap(services.ErrTransient, "source", "status", "helix request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Status{}, services.Wrap(services.ErrConfiguration, "source", "status",
			fmt.Sprintf("helix rejected credentials (%d)", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Status{}, services.Wrap(services.ErrTransient, "source", "status",
			fmt.Sprintf("helix returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload streamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Status{}, services.Wrap(services.ErrTransient, "source", "status", "decode helix response", err)
	}
	for _, stream := range payload.Data {
		if stream.Type != "" && stream.Type != "live" {
			continue
		}
		login := stream.UserLogin
		if login == "" {
			login = channel
		}
		return Status{
			Live: true,
			Snapshot: session.SourceSnapshot{
				Channel:     login,
				DisplayName: stream.UserName,
				Title:       stream.Title,
				Category:    stream.GameName,
				ViewerCount: stream.ViewerCount,
				StartedAt:   stream.StartedAt,
			},
		}, nil
	}
	return Status{Live: false}, nil
}
