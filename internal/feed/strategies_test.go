package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"mirrorcast/internal/config"
	"mirrorcast/internal/feed"
	"mirrorcast/internal/services"
)

func TestTokenExchangeBuildsUsherURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Client-ID"); got != "primary-id" {
			t.Errorf("Client-ID header = %q", got)
		}
		var body []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body) != 1 || body[0]["operationName"] != "PlaybackAccessToken_Template" {
			t.Errorf("unexpected body %v", body)
		}
		vars, _ := body[0]["variables"].(map[string]any)
		if vars["login"] != "somechannel" || vars["isLive"] != true {
			t.Errorf("unexpected variables %v", vars)
		}
		_, _ = w.Write([]byte(`[{"data":{"streamPlaybackAccessToken":{"value":"{\"channel\":\"somechannel\"}","signature":"abc123"}}}]`))
	}))
	defer srv.Close()

	strategy := feed.NewTokenExchange(srv.URL, "https://usher.example/api/channel/hls", "primary-id", srv.Client())
	got, err := strategy.Resolve(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Host != "usher.example" || parsed.Path != "/api/channel/hls/somechannel.m3u8" {
		t.Fatalf("unexpected url %s", got)
	}
	q := parsed.Query()
	if q.Get("sig") != "abc123" || q.Get("token") != `{"channel":"somechannel"}` {
		t.Fatalf("token not carried: %v", q)
	}
	if q.Get("allow_source") != "true" || q.Get("client_id") != "primary-id" || q.Get("p") == "" {
		t.Fatalf("missing playlist params: %v", q)
	}
}

func TestTokenExchangeAcceptsObjectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"streamPlaybackAccessToken":{"value":"v","signature":"s"}}}`))
	}))
	defer srv.Close()
	token, err := feed.NewTokenExchange(srv.URL, "https://u", "id", srv.Client()).Token(context.Background(), "c")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.Value != "v" || token.Signature != "s" {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestTokenExchangeOfflineChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"data":{"streamPlaybackAccessToken":null}}]`))
	}))
	defer srv.Close()
	_, err := feed.NewTokenExchange(srv.URL, "https://u", "id", srv.Client()).Resolve(context.Background(), "c")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTokenExchangeRejectedClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := feed.NewTokenExchange(srv.URL, "https://u", "id", srv.Client()).Resolve(context.Background(), "c")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestPlaylistProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			t.Errorf("missing browser user agent")
		}
		switch r.URL.Path {
		case "/live.m3u8":
			_, _ = io.WriteString(w, "#EXTM3U\n#EXT-X-VERSION:3\n")
		case "/html":
			_, _ = io.WriteString(w, "<html></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	probe := feed.NewPlaylistProbe(srv.Client(), time.Second)

	if err := probe.Validate(context.Background(), srv.URL+"/live.m3u8"); err != nil {
		t.Fatalf("expected playlist to validate: %v", err)
	}
	if err := probe.Validate(context.Background(), srv.URL+"/html"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := probe.Exists(context.Background(), srv.URL+"/missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDirectProbesUsherURL(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.URL.Path != "/hls/chan.m3u8" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "#EXTM3U\n")
	}))
	defer srv.Close()

	direct := feed.NewDirect(srv.URL+"/hls", "id", feed.NewPlaylistProbe(srv.Client(), time.Second))
	got, err := direct.Resolve(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(got, srv.URL+"/hls/chan.m3u8?") || strings.Contains(got, "sig=") {
		t.Fatalf("unexpected url %s", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
		t.Fatalf("expected HEAD then GET, got %v", methods)
	}
	if !direct.Validated() {
		t.Fatal("direct strategy probes its own result")
	}
}

type stubExecutor struct {
	out    string
	err    error
	binary string
	args   []string
}

func (s *stubExecutor) Output(_ context.Context, binary string, args []string) ([]byte, error) {
	s.binary = binary
	s.args = args
	return []byte(s.out), s.err
}

func found(string) (string, error) { return "/usr/bin/tool", nil }

func TestStreamlinkHelper(t *testing.T) {
	exec := &stubExecutor{out: "[cli][info] Found matching plugin twitch\nhttps://video-edge.example/v1/playlist.m3u8\n"}
	helper := feed.NewStreamlink("streamlink", "", time.Second, feed.WithExecutor(exec), feed.WithLookPath(found))

	got, err := helper.Resolve(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "https://video-edge.example/v1/playlist.m3u8" {
		t.Fatalf("got %q", got)
	}
	want := []string{"--stream-url", "twitch.tv/chan", "best"}
	if strings.Join(exec.args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestYtDlpHelperArgs(t *testing.T) {
	exec := &stubExecutor{out: "https://x/y.m3u8"}
	helper := feed.NewYtDlp("/opt/yt-dlp", "720p", time.Second, feed.WithExecutor(exec), feed.WithLookPath(found))
	if _, err := helper.Resolve(context.Background(), "chan"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if exec.binary != "/opt/yt-dlp" || exec.args[0] != "-g" || exec.args[2] != "720p" {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
}

func TestHelperMissingBinaryIsSkipped(t *testing.T) {
	exec := &stubExecutor{out: "https://x"}
	helper := feed.NewStreamlink("streamlink", "best", time.Second,
		feed.WithExecutor(exec),
		feed.WithLookPath(func(string) (string, error) { return "", errors.New("not found") }),
	)
	if _, err := helper.Resolve(context.Background(), "chan"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if exec.binary != "" {
		t.Fatal("executor must not run when the binary is missing")
	}
}

func TestHelperWithoutURLFails(t *testing.T) {
	exec := &stubExecutor{out: "error: No playable streams found on this URL"}
	helper := feed.NewStreamlink("streamlink", "best", time.Second, feed.WithExecutor(exec), feed.WithLookPath(found))
	if _, err := helper.Resolve(context.Background(), "chan"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewFromConfigOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Twitch.AlternateClientIDs = []string{"alt111111", "alt222222"}
	r := feed.NewFromConfig(&cfg, nil)
	names := r.Strategies()
	want := []string{"gql-token:kimne7", "gql-token:alt111", "gql-token:alt222", "streamlink", "yt-dlp", "direct"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("strategies = %v", names)
	}

	cfg.Feed.DirectFallback = false
	if names := feed.NewFromConfig(&cfg, nil).Strategies(); names[len(names)-1] == "direct" {
		t.Fatal("direct fallback should be disabled")
	}
}
