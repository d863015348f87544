package destination_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"mirrorcast/internal/config"
	"mirrorcast/internal/destination"
	"mirrorcast/internal/services"
)

func newYouTube(t *testing.T, handler http.HandlerFunc) *destination.YouTubeAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.YouTube.ClientID = "id"
	cfg.YouTube.ClientSecret = "secret"
	cfg.YouTube.RefreshToken = "refresh"
	api, err := destination.NewYouTubeAPI(context.Background(), &cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewYouTubeAPI: %v", err)
	}
	return api
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestYouTubeCreateBroadcastDisablesAutoStart(t *testing.T) {
	api := newYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/liveBroadcasts") {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["contentDetails"]["enableAutoStart"] != false || body["contentDetails"]["enableAutoStop"] != false {
			t.Errorf("auto start/stop must be sent as false: %v", body["contentDetails"])
		}
		monitor, _ := body["contentDetails"]["monitorStream"].(map[string]any)
		if monitor["enableMonitorStream"] != true {
			t.Errorf("monitor stream must be enabled: %v", body["contentDetails"])
		}
		if body["status"]["privacyStatus"] != "unlisted" || body["snippet"]["title"] != "Title" {
			t.Errorf("unexpected body %v", body)
		}
		writeJSON(w, http.StatusOK, `{"id":"b1","status":{"lifeCycleStatus":"created"}}`)
	})
	b, err := api.CreateBroadcast(context.Background(), destination.BroadcastSpec{Title: "Title", Privacy: "unlisted"})
	if err != nil {
		t.Fatalf("CreateBroadcast: %v", err)
	}
	if b.ID != "b1" || b.Status != destination.StatusCreated {
		t.Fatalf("unexpected broadcast %+v", b)
	}
}

func TestYouTubeFindIngestByKey(t *testing.T) {
	api := newYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mine") != "true" {
			t.Errorf("expected mine=true, got %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, `{"items":[
			{"id":"s1","cdn":{"ingestionInfo":{"streamName":"other","ingestionAddress":"rtmp://a/live2"}}},
			{"id":"s2","cdn":{"ingestionInfo":{"streamName":"my-key","ingestionAddress":"rtmp://a/live2"}},"status":{"streamStatus":"active","healthStatus":{"status":"good"}}}
		]}`)
	})
	ing, ok, err := api.FindIngest(context.Background(), "my-key")
	if err != nil || !ok {
		t.Fatalf("FindIngest: %v %v", ok, err)
	}
	if ing.ID != "s2" || ing.Address != "rtmp://a/live2" || !ing.Active() || ing.Health != "good" {
		t.Fatalf("unexpected ingest %+v", ing)
	}
}

func TestYouTubeTransitionAndBind(t *testing.T) {
	api := newYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case strings.HasSuffix(r.URL.Path, "/liveBroadcasts/bind"):
			if q.Get("id") != "b1" || q.Get("streamId") != "s1" {
				t.Errorf("bind query %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, `{"id":"b1","contentDetails":{"boundStreamId":"s1"}}`)
		case strings.HasSuffix(r.URL.Path, "/liveBroadcasts/transition"):
			if q.Get("broadcastStatus") != "testing" || q.Get("id") != "b1" {
				t.Errorf("transition query %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, `{"id":"b1","status":{"lifeCycleStatus":"testStarting"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()
	if err := api.Bind(ctx, "b1", "s1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	status, err := api.Transition(ctx, "b1", destination.StatusTesting)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if status != destination.StatusUnknown {
		t.Fatalf("transitional status should map to unknown, got %s", status)
	}
}

func TestYouTubeErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		want   error
	}{
		{name: "invalid transition", status: http.StatusForbidden, reason: "invalidTransition", want: destination.ErrInvalidTransition},
		{name: "redundant", status: http.StatusForbidden, reason: "redundantTransition", want: destination.ErrRedundantTransition},
		{name: "backend", status: http.StatusServiceUnavailable, reason: "backendError", want: services.ErrTransient},
		{name: "auth", status: http.StatusUnauthorized, reason: "authError", want: services.ErrConfiguration},
		{name: "missing", status: http.StatusNotFound, reason: "liveBroadcastNotFound", want: services.ErrNotFound},
		{name: "bad request", status: http.StatusBadRequest, reason: "invalidValue", want: services.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, `{"error":{"code":`+strconv.Itoa(tc.status)+`,"message":"m","errors":[{"reason":"`+tc.reason+`","message":"m"}]}}`)
			})
			_, err := api.Transition(context.Background(), "b1", destination.StatusLive)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestYouTubeUpdateVideo(t *testing.T) {
	api := newYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, `{"items":[{"id":"v1","snippet":{"title":"old","description":"old","categoryId":"20"},"status":{"privacyStatus":"public"}}]}`)
		case http.MethodPut:
			var updated youtube.Video
			if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if updated.Id != "v1" || updated.Snippet == nil || updated.Status == nil {
				t.Errorf("incomplete update %+v", updated)
				return
			}
			if updated.Snippet.Title != "new" || updated.Snippet.CategoryId != "20" || updated.Status.PrivacyStatus != "unlisted" {
				t.Errorf("unexpected update snippet=%+v status=%+v", updated.Snippet, updated.Status)
			}
			writeJSON(w, http.StatusOK, `{"id":"v1"}`)
		}
	})
	if err := api.UpdateVideo(context.Background(), "v1", "new", "", "unlisted"); err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}
}
