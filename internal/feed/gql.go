package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mirrorcast/internal/services"
)

const playbackAccessTokenQuery = `query PlaybackAccessToken_Template($login: String!, $isLive: Boolean!, $vodID: ID!, $isVod: Boolean!, $playerType: String!) {
  streamPlaybackAccessToken(channelName: $login, params: {platform: "web", playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isLive) {
    value
    signature
  }
  videoPlaybackAccessToken(id: $vodID, params: {platform: "web", playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isVod) {
    value
    signature
  }
}`

// PlaybackToken is the signed token the usher service expects.
type PlaybackToken struct {
	Value     string `json:"value"`
	Signature string `json:"signature"`
}

// TokenExchange obtains a playback access token from the Twitch GQL endpoint
// with one client id and builds the usher playlist URL from it.
type TokenExchange struct {
	gqlURL    string
	usherBase string
	clientID  string
	client    HTTPDoer
	nonce     func() int
}

// NewTokenExchange constructs a token exchange strategy.
func NewTokenExchange(gqlURL, usherBase, clientID string, client HTTPDoer) *TokenExchange {
	if client == nil {
		client = &http.Client{}
	}
	return &TokenExchange{
		gqlURL:    strings.TrimSpace(gqlURL),
		usherBase: strings.TrimRight(strings.TrimSpace(usherBase), "/"),
		clientID:  strings.TrimSpace(clientID),
		client:    client,
		nonce:     func() int { return rand.IntN(1_000_000) },
	}
}

// Name identifies the strategy and the client id it uses.
func (t *TokenExchange) Name() string {
	id := t.clientID
	if len(id) > 6 {
		id = id[:6]
	}
	return "gql-token:" + id
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		StreamPlaybackAccessToken *PlaybackToken `json:"streamPlaybackAccessToken"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Resolve requests a token and returns the usher playlist URL.
func (t *TokenExchange) Resolve(ctx context.Context, channel string) (string, error) {
	token, err := t.Token(ctx, channel)
	if err != nil {
		return "", err
	}
	return UsherURL(t.usherBase, channel, t.clientID, token, t.nonce()), nil
}

// Token performs the GQL PlaybackAccessToken query.
func (t *TokenExchange) Token(ctx context.Context, channel string) (PlaybackToken, error) {
	if t.clientID == "" {
		return PlaybackToken{}, services.Wrap(services.ErrConfiguration, "feed", "gql", "client id is required", nil)
	}
	body, err := json.Marshal([]gqlRequest{{
		OperationName: "PlaybackAccessToken_Template",
		Query:         playbackAccessTokenQuery,
		Variables: map[string]any{
			"login":      channel,
			"isLive":     true,
			"vodID":      "",
			"isVod":      false,
			"playerType": "site",
		},
	}})
	if err != nil {
		return PlaybackToken{}, fmt.Errorf("encode gql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.gqlURL, bytes.NewReader(body))
	if err != nil {
		return PlaybackToken{}, services.Wrap(services.ErrValidation, "feed", "gql", "build request", err)
	}
	req.Header.Set("Client-ID", t.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return PlaybackToken{}, services.Wrap(services.ErrTransient, "feed", "gql", "token request failed", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PlaybackToken{}, services.Wrap(services.ErrTransient, "feed", "gql", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return PlaybackToken{}, services.Wrap(services.ErrExternalTool, "feed", "gql",
			fmt.Sprintf("gql returned %d", resp.StatusCode), nil)
	}
	token, err := decodeToken(raw)
	if err != nil {
		return PlaybackToken{}, err
	}
	return token, nil
}

// decodeToken accepts both the batched (array) and single object response
// shapes.
func decodeToken(raw []byte) (PlaybackToken, error) {
	raw = bytes.TrimSpace(raw)
	var payload gqlResponse
	if len(raw) > 0 && raw[0] == '[' {
		var batch []gqlResponse
		if err := json.Unmarshal(raw, &batch); err != nil {
			return PlaybackToken{}, services.Wrap(services.ErrExternalTool, "feed", "gql", "decode response", err)
		}
		if len(batch) == 0 {
			return PlaybackToken{}, services.Wrap(services.ErrNotFound, "feed", "gql", "empty response", nil)
		}
		payload = batch[0]
	} else if err := json.Unmarshal(raw, &payload); err != nil {
		return PlaybackToken{}, services.Wrap(services.ErrExternalTool, "feed", "gql", "decode response", err)
	}
	if len(payload.Errors) > 0 {
		return PlaybackToken{}, services.Wrap(services.ErrExternalTool, "feed", "gql", payload.Errors[0].Message, nil)
	}
	token := payload.Data.StreamPlaybackAccessToken
	if token == nil || token.Value == "" || token.Signature == "" {
		return PlaybackToken{}, services.Wrap(services.ErrNotFound, "feed", "gql", "no playback token (channel offline?)", nil)
	}
	return *token, nil
}

// UsherURL builds the HLS master playlist URL. A zero token yields the
// unsigned form used by the direct strategy.
func UsherURL(base, channel, clientID string, token PlaybackToken, nonce int) string {
	q := url.Values{}
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	if token.Value != "" {
		q.Set("token", token.Value)
		q.Set("sig", token.Signature)
	}
	q.Set("allow_source", "true")
	q.Set("allow_audio_only", "true")
	q.Set("allow_spectre", "true")
	q.Set("p", strconv.Itoa(nonce))
	q.Set("platform", "web")
	q.Set("player_backend", "mediaplayer")
	q.Set("playlist_include_framerate", "true")
	q.Set("reassignments_supported", "true")
	q.Set("cdm", "wv")
	q.Set("supported_codecs", "avc1,h265,vp9")
	return fmt.Sprintf("%s/%s.m3u8?%s", strings.TrimRight(base, "/"), url.PathEscape(channel), q.Encode())
}
