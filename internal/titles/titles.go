package titles

import (
	"fmt"
	"strings"
	"time"

	"mirrorcast/internal/config"
	"mirrorcast/internal/session"
	"mirrorcast/internal/textutil"
)

const (
	// MaxTitleRunes is the destination's title length limit.
	MaxTitleRunes = 100
	// MaxDescriptionRunes is the destination's description length limit.
	MaxDescriptionRunes = 5000
)

// Formats holds the placeholder templates. Supported placeholders are
// {title}, {streamer}, {channel}, {game}, {date} and {duration}.
type Formats struct {
	LiveTitle          string
	LiveDescription    string
	ArchiveTitle       string
	ArchiveDescription string
}

// FormatsFromConfig collects the templates from configuration.
func FormatsFromConfig(cfg *config.Config) Formats {
	return Formats{
		LiveTitle:          cfg.Titles.LiveTitleFormat,
		LiveDescription:    cfg.Titles.DescriptionFormat,
		ArchiveTitle:       cfg.Archive.TitleFormat,
		ArchiveDescription: cfg.Archive.DescriptionFormat,
	}
}

// Renderer turns a source snapshot into destination metadata.
type Renderer struct {
	formats  Formats
	location *time.Location
}

// NewRenderer builds a renderer. Dates are rendered in loc (local time when nil).
func NewRenderer(formats Formats, loc *time.Location) *Renderer {
	if strings.TrimSpace(formats.LiveTitle) == "" {
		formats.LiveTitle = "{title}"
	}
	if strings.TrimSpace(formats.ArchiveTitle) == "" {
		formats.ArchiveTitle = formats.LiveTitle
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{formats: formats, location: loc}
}

// Title renders the live broadcast title.
func (r *Renderer) Title(src session.SourceSnapshot) string {
	return r.title(r.formats.LiveTitle, src, src.StartedAt, time.Time{})
}

// Description renders the live broadcast description.
func (r *Renderer) Description(src session.SourceSnapshot) string {
	return r.description(r.formats.LiveDescription, src, src.StartedAt, time.Time{})
}

// ArchiveTitle renders the title applied to the recording after the session.
func (r *Renderer) ArchiveTitle(src session.SourceSnapshot, started, ended time.Time) string {
	return r.title(r.formats.ArchiveTitle, src, started, ended)
}

// ArchiveDescription renders the description applied to the recording.
func (r *Renderer) ArchiveDescription(src session.SourceSnapshot, started, ended time.Time) string {
	return r.description(r.formats.ArchiveDescription, src, started, ended)
}

func (r *Renderer) title(format string, src session.SourceSnapshot, started, ended time.Time) string {
	out := textutil.SanitizeTitle(r.expand(format, src, started, ended))
	if out == "" {
		out = textutil.SanitizeTitle(src.Streamer() + " live")
	}
	return textutil.Truncate(out, MaxTitleRunes)
}

func (r *Renderer) description(format string, src session.SourceSnapshot, started, ended time.Time) string {
	return textutil.Truncate(textutil.SanitizeText(r.expand(format, src, started, ended)), MaxDescriptionRunes)
}

func (r *Renderer) expand(format string, src session.SourceSnapshot, started, ended time.Time) string {
	if started.IsZero() {
		started = time.Now()
	}
	game := src.Category
	if game == "" {
		game = "Unknown"
	}
	duration := ""
	if !ended.IsZero() && ended.After(started) {
		duration = FormatDuration(ended.Sub(started))
	}
	replacer := strings.NewReplacer(
		"{title}", src.Title,
		"{streamer}", src.Streamer(),
		"{channel}", src.Channel,
		"{game}", game,
		"{date}", started.In(r.location).Format("2006-01-02"),
		"{duration}", duration,
	)
	return replacer.Replace(format)
}

// FormatDuration renders d as H:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
