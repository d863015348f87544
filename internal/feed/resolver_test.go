package feed_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mirrorcast/internal/feed"
)

type stubStrategy struct {
	name      string
	url       string
	err       error
	block     bool
	validated bool
	calls     int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Validated() bool { return s.validated }

func (s *stubStrategy) Resolve(ctx context.Context, _ string) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.url, s.err
}

func acceptAll() feed.Validator {
	return feed.ValidatorFunc(func(context.Context, string) error { return nil })
}

func TestResolveReturnsFirstSuccess(t *testing.T) {
	first := &stubStrategy{name: "first", url: "https://a/playlist.m3u8"}
	second := &stubStrategy{name: "second", url: "https://b/playlist.m3u8"}
	r := feed.NewResolver([]feed.Strategy{first, second}, feed.WithValidator(acceptAll()))

	url, err := r.Resolve(context.Background(), "Channel")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != first.url {
		t.Fatalf("got %q", url)
	}
	if second.calls != 0 {
		t.Fatal("second strategy should not run after a success")
	}
}

func TestResolveFallsThroughFailuresAndTimeouts(t *testing.T) {
	failing := &stubStrategy{name: "failing", err: errors.New("boom")}
	slow := &stubStrategy{name: "slow", block: true}
	good := &stubStrategy{name: "good", url: "https://c/playlist.m3u8"}
	r := feed.NewResolver([]feed.Strategy{failing, slow, good},
		feed.WithValidator(acceptAll()),
		feed.WithStrategyTimeout(20*time.Millisecond),
	)

	url, attempts, err := r.ResolveWithAttempts(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != good.url {
		t.Fatalf("got %q", url)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if !errors.Is(attempts[1].Err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout for slow strategy, got %v", attempts[1].Err)
	}
	if failing.calls != 1 || slow.calls != 1 {
		t.Fatal("failed strategies must not be retried")
	}
}

func TestResolveRejectsUnvalidatedURL(t *testing.T) {
	bad := &stubStrategy{name: "bad", url: "https://bad/x"}
	selfChecked := &stubStrategy{name: "self", url: "https://self/x", validated: true}
	validator := feed.ValidatorFunc(func(_ context.Context, url string) error {
		if strings.Contains(url, "bad") {
			return errors.New("not a playlist")
		}
		t.Errorf("validator should be skipped for self-validating strategy, got %s", url)
		return nil
	})
	r := feed.NewResolver([]feed.Strategy{bad, selfChecked}, feed.WithValidator(validator))

	url, err := r.Resolve(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url != selfChecked.url {
		t.Fatalf("got %q", url)
	}
}

func TestResolveExhaustion(t *testing.T) {
	r := feed.NewResolver([]feed.Strategy{
		&stubStrategy{name: "a", err: errors.New("nope")},
		&stubStrategy{name: "b", url: "  "},
	}, feed.WithValidator(acceptAll()))

	_, err := r.Resolve(context.Background(), "chan")
	if !errors.Is(err, feed.ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "a: nope") {
		t.Fatalf("expected attempt summary in %q", err)
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &stubStrategy{name: "a", url: "https://a"}
	_, err := feed.NewResolver([]feed.Strategy{s}).Resolve(ctx, "chan")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if s.calls != 0 {
		t.Fatal("strategy should not run after cancellation")
	}
}

func TestResolveRequiresChannel(t *testing.T) {
	if _, err := feed.NewResolver(nil).Resolve(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty channel")
	}
}
