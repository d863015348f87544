package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mirrorcast/internal/config"
)

// Requirement defines an external binary the mirror relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries named by cfg. ffmpeg carries the relay and
// is required; the feed helpers are fallbacks and may be absent.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Relay.FFmpegBinary, Description: "Relays the source feed to the destination ingest"},
		{Name: "Streamlink", Command: cfg.Feed.StreamlinkBinary, Description: "Fallback feed resolution", Optional: true},
		{Name: "yt-dlp", Command: cfg.Feed.YtDlpBinary, Description: "Last-resort feed resolution", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the unavailable non-optional dependencies.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			missing = append(missing, s)
		}
	}
	return missing
}
