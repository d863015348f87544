package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mirrorcast/internal/config"
	"mirrorcast/internal/services"
	"mirrorcast/internal/source"
	"mirrorcast/internal/textutil"
)

// CheckTwitch verifies the configured credentials by querying the channel's
// stream status once. A nil query builds a Helix client from cfg.
func CheckTwitch(ctx context.Context, cfg *config.Config, query source.StatusQuery) Result {
	const name = "Twitch API"

	if strings.TrimSpace(cfg.Twitch.ClientID) == "" {
		return Result{Name: name, Detail: "client id missing"}
	}
	if query == nil {
		query = source.NewHelixClient(cfg)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, err := query.Status(checkCtx, cfg.Twitch.Channel)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	state := textutil.Ternary(status.Live, "live", "offline")
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%s is %s)", cfg.Twitch.Channel, state)}
}

// CheckYouTubeCredentials reports whether managed broadcasts can be used.
// Relay-only operation passes with a note.
func CheckYouTubeCredentials(cfg *config.Config) Result {
	const name = "YouTube"

	if !cfg.YouTube.ManageBroadcast {
		if strings.TrimSpace(cfg.YouTube.StreamKey) == "" {
			return Result{Name: name, Detail: "stream key missing"}
		}
		return Result{Name: name, Passed: true, Detail: "relay only (no API credentials)"}
	}
	var missing []string
	if strings.TrimSpace(cfg.YouTube.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(cfg.YouTube.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if strings.TrimSpace(cfg.YouTube.RefreshToken) == "" {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ") + " (falls back to relay only)"}
	}
	return Result{Name: name, Passed: true, Detail: "managed broadcasts"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (Twitch API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (Twitch API unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "credentials not configured (set twitch.access_token or twitch.client_secret)"
	}
	return err.Error()
}
