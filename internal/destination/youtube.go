package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"mirrorcast/internal/config"
	"mirrorcast/internal/services"
)

// YouTubeAPI implements API (and archive.VideoUpdater) against the YouTube
// Data API v3.
type YouTubeAPI struct {
	svc *youtube.Service
}

// NewYouTubeAPI builds a client authorised with the configured refresh token.
// Extra options are appended last so tests can point it at a fake server.
func NewYouTubeAPI(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*YouTubeAPI, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "destination", "init", "configuration required", nil)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeScope},
	}
	timeout := time.Duration(cfg.YouTube.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	tokens := oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.YouTube.RefreshToken})

	base := []option.ClientOption{option.WithTokenSource(tokens)}
	if endpoint := strings.TrimSpace(cfg.YouTube.APIEndpoint); endpoint != "" {
		base = append(base, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "destination", "init", "create youtube client", err)
	}
	return &YouTubeAPI{svc: svc}, nil
}

// CreateBroadcast inserts a live broadcast with auto start/stop disabled so
// the controller owns every lifecycle change.
func (a *YouTubeAPI) CreateBroadcast(ctx context.Context, spec BroadcastSpec) (Broadcast, error) {
	b := &youtube.LiveBroadcast{
		Snippet: &youtube.LiveBroadcastSnippet{
			Title:              spec.Title,
			Description:        spec.Description,
			ScheduledStartTime: time.Now().UTC().Format(time.RFC3339),
		},
		Status: &youtube.LiveBroadcastStatus{
			PrivacyStatus:           spec.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
		ContentDetails: &youtube.LiveBroadcastContentDetails{
			EnableAutoStart: false,
			EnableAutoStop:  false,
			MonitorStream:   &youtube.MonitorStreamInfo{EnableMonitorStream: googleapi.Bool(true)},
			ForceSendFields: []string{"EnableAutoStart", "EnableAutoStop"},
		},
	}
	res, err := a.svc.LiveBroadcasts.Insert([]string{"snippet", "status", "contentDetails"}, b).Context(ctx).Do()
	if err != nil {
		return Broadcast{}, classify("create broadcast", err)
	}
	return toBroadcast(res), nil
}

// FindIngest looks through the account's streams for one whose stream name
// equals key.
func (a *YouTubeAPI) FindIngest(ctx context.Context, key string) (Ingest, bool, error) {
	call := a.svc.LiveStreams.List([]string{"id", "snippet", "cdn", "status"}).Mine(true).MaxResults(50)
	var found *youtube.LiveStream
	err := call.Pages(ctx, func(page *youtube.LiveStreamListResponse) error {
		for _, s := range page.Items {
			if s.Cdn != nil && s.Cdn.IngestionInfo != nil && s.Cdn.IngestionInfo.StreamName == key {
				found = s
				return errStopPaging
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return Ingest{}, false, classify("list streams", err)
	}
	if found == nil {
		return Ingest{}, false, nil
	}
	return toIngest(found), true, nil
}

var errStopPaging = errors.New("stop paging")

// CreateIngest inserts a reusable RTMP stream with variable resolution.
func (a *YouTubeAPI) CreateIngest(ctx context.Context, title string) (Ingest, error) {
	if title == "" {
		title = "mirrorcast"
	}
	s := &youtube.LiveStream{
		Snippet: &youtube.LiveStreamSnippet{Title: title},
		Cdn: &youtube.CdnSettings{
			IngestionType: "rtmp",
			Resolution:    "variable",
			FrameRate:     "variable",
		},
		ContentDetails: &youtube.LiveStreamContentDetails{IsReusable: true},
	}
	res, err := a.svc.LiveStreams.Insert([]string{"snippet", "cdn", "contentDetails", "status"}, s).Context(ctx).Do()
	if err != nil {
		return Ingest{}, classify("create stream", err)
	}
	return toIngest(res), nil
}

// Bind attaches the stream to the broadcast.
func (a *YouTubeAPI) Bind(ctx context.Context, broadcastID, ingestID string) error {
	_, err := a.svc.LiveBroadcasts.Bind(broadcastID, []string{"id", "contentDetails"}).StreamId(ingestID).Context(ctx).Do()
	if err != nil {
		return classify("bind", err)
	}
	return nil
}

// GetBroadcast fetches lifecycle status and the bound stream.
func (a *YouTubeAPI) GetBroadcast(ctx context.Context, broadcastID string) (Broadcast, error) {
	res, err := a.svc.LiveBroadcasts.List([]string{"id", "status", "contentDetails"}).Id(broadcastID).Context(ctx).Do()
	if err != nil {
		return Broadcast{}, classify("get broadcast", err)
	}
	if len(res.Items) == 0 {
		return Broadcast{}, services.Wrap(services.ErrNotFound, "destination", "get broadcast", broadcastID, nil)
	}
	return toBroadcast(res.Items[0]), nil
}

// GetIngest fetches stream status and health.
func (a *YouTubeAPI) GetIngest(ctx context.Context, ingestID string) (Ingest, error) {
	res, err := a.svc.LiveStreams.List([]string{"id", "cdn", "status"}).Id(ingestID).Context(ctx).Do()
	if err != nil {
		return Ingest{}, classify("get stream", err)
	}
	if len(res.Items) == 0 {
		return Ingest{}, services.Wrap(services.ErrNotFound, "destination", "get stream", ingestID, nil)
	}
	return toIngest(res.Items[0]), nil
}

// Transition asks YouTube to change the broadcast status.
func (a *YouTubeAPI) Transition(ctx context.Context, broadcastID string, target Status) (Status, error) {
	res, err := a.svc.LiveBroadcasts.Transition(string(target), broadcastID, []string{"id", "status"}).Context(ctx).Do()
	if err != nil {
		return StatusUnknown, classify("transition "+string(target), err)
	}
	if res.Status == nil {
		return StatusUnknown, nil
	}
	return ParseStatus(res.Status.LifeCycleStatus), nil
}

// DeleteBroadcast removes a broadcast.
func (a *YouTubeAPI) DeleteBroadcast(ctx context.Context, broadcastID string) error {
	if err := a.svc.LiveBroadcasts.Delete(broadcastID).Context(ctx).Do(); err != nil {
		return classify("delete broadcast", err)
	}
	return nil
}

// UpdateVideo rewrites title, description and privacy of a recorded video.
// Empty values leave the existing field untouched.
func (a *YouTubeAPI) UpdateVideo(ctx context.Context, videoID, title, description, privacy string) error {
	res, err := a.svc.Videos.List([]string{"snippet", "status"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return classify("get video", err)
	}
	if len(res.Items) == 0 {
		return services.Wrap(services.ErrNotFound, "archive", "get video", videoID, nil)
	}
	video := res.Items[0]
	update := &youtube.Video{Id: video.Id, Snippet: video.Snippet, Status: video.Status}
	if update.Snippet == nil {
		update.Snippet = &youtube.VideoSnippet{}
	}
	if update.Status == nil {
		update.Status = &youtube.VideoStatus{}
	}
	if title != "" {
		update.Snippet.Title = title
	}
	if description != "" {
		update.Snippet.Description = description
	}
	if privacy != "" {
		update.Status.PrivacyStatus = privacy
	}
	if _, err := a.svc.Videos.Update([]string{"snippet", "status"}, update).Context(ctx).Do(); err != nil {
		return classify("update video", err)
	}
	return nil
}

func toBroadcast(b *youtube.LiveBroadcast) Broadcast {
	out := Broadcast{ID: b.Id}
	if b.Status != nil {
		out.RawStatus = b.Status.LifeCycleStatus
		out.Status = ParseStatus(b.Status.LifeCycleStatus)
	}
	if b.ContentDetails != nil {
		out.BoundStreamID = b.ContentDetails.BoundStreamId
	}
	return out
}

func toIngest(s *youtube.LiveStream) Ingest {
	out := Ingest{ID: s.Id}
	if s.Cdn != nil && s.Cdn.IngestionInfo != nil {
		out.Key = s.Cdn.IngestionInfo.StreamName
		out.Address = s.Cdn.IngestionInfo.IngestionAddress
	}
	if s.Status != nil {
		out.Status = s.Status.StreamStatus
		if s.Status.HealthStatus != nil {
			out.Health = s.Status.HealthStatus.Status
		}
	}
	return out
}

// classify maps YouTube API errors onto service markers.
func classify(operation string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return services.Wrap(services.ErrTransient, "destination", operation, "request failed", err)
	}
	reason := ""
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}
	switch {
	case reason == "redundantTransition":
		return fmt.Errorf("%w: %s", ErrRedundantTransition, gerr.Message)
	case reason == "invalidTransition" || reason == "errorStreamInactive":
		return fmt.Errorf("%w: %s: %w", ErrInvalidTransition, operation, err)
	case gerr.Code >= http.StatusInternalServerError || gerr.Code == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "destination", operation, fmt.Sprintf("youtube returned %d", gerr.Code), err)
	case gerr.Code == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "destination", operation, "youtube credentials rejected", err)
	case gerr.Code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "destination", operation, reason, err)
	default:
		return services.Wrap(services.ErrValidation, "destination", operation, fmt.Sprintf("youtube returned %d %s", gerr.Code, reason), err)
	}
}
