package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mirrorcast/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Helper shells out to an external resolver such as streamlink or yt-dlp and
// takes the first URL it prints.
type Helper struct {
	name     string
	binary   string
	args     func(channel string) []string
	timeout  time.Duration
	exec     Executor
	lookPath func(string) (string, error)
}

// HelperOption customizes a Helper.
type HelperOption func(*Helper)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) HelperOption {
	return func(h *Helper) {
		if e != nil {
			h.exec = e
		}
	}
}

// WithLookPath overrides binary discovery.
func WithLookPath(fn func(string) (string, error)) HelperOption {
	return func(h *Helper) {
		if fn != nil {
			h.lookPath = fn
		}
	}
}

// NewStreamlink builds a helper running `streamlink --stream-url twitch.tv/<ch> <quality>`.
func NewStreamlink(binary, quality string, timeout time.Duration, opts ...HelperOption) *Helper {
	if quality = strings.TrimSpace(quality); quality == "" {
		quality = "best"
	}
	return newHelper("streamlink", binary, timeout, func(channel string) []string {
		return []string{"--stream-url", "twitch.tv/" + channel, quality}
	}, opts)
}

// NewYtDlp builds a helper running `yt-dlp -g -f <quality> twitch.tv/<ch>`.
func NewYtDlp(binary, quality string, timeout time.Duration, opts ...HelperOption) *Helper {
	if quality = strings.TrimSpace(quality); quality == "" {
		quality = "best"
	}
	return newHelper("yt-dlp", binary, timeout, func(channel string) []string {
		return []string{"-g", "-f", quality, "https://www.twitch.tv/" + channel}
	}, opts)
}

func newHelper(name, binary string, timeout time.Duration, args func(string) []string, opts []HelperOption) *Helper {
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = name
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	h := &Helper{
		name:     name,
		binary:   binary,
		args:     args,
		timeout:  timeout,
		exec:     commandExecutor{},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the helper tool name.
func (h *Helper) Name() string {
	return h.name
}

// Available reports whether the helper binary can be found.
func (h *Helper) Available() bool {
	_, err := h.lookPath(h.binary)
	return err == nil
}

// Resolve runs the helper and parses its output.
func (h *Helper) Resolve(ctx context.Context, channel string) (string, error) {
	if !h.Available() {
		return "", services.Wrap(services.ErrNotFound, "feed", h.name, fmt.Sprintf("%s not installed", h.binary), nil)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	out, err := h.exec.Output(ctx, h.binary, h.args(channel))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "feed", h.name, fmt.Sprintf("no answer within %s", h.timeout), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "feed", h.name, "helper failed", err)
	}
	url := firstURL(out)
	if url == "" {
		return "", services.Wrap(services.ErrNotFound, "feed", h.name, "helper printed no url", nil)
	}
	return url, nil
}

func firstURL(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "https://") || strings.HasPrefix(line, "http://") {
			return line
		}
	}
	return ""
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}
