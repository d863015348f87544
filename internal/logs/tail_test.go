package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mirrorcast/internal/logs"
)

func writeRunLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirrorcast-20261019T180000.000Z.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendRunLog(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeRunLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("offset = %d, want end of file", result.Offset)
	}
}

func TestTailThroughCurrentLogPointer(t *testing.T) {
	target := writeRunLog(t, "relay started\n")
	pointer := filepath.Join(filepath.Dir(target), "mirrorcast.log")
	if err := os.Symlink(target, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	result, err := logs.Tail(context.Background(), pointer, logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "relay started" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailFiltersBySession(t *testing.T) {
	path := writeRunLog(t, ""+
		`{"msg":"mirror session created","session_id":"s-1"}`+"\n"+
		`{"msg":"watcher poll"}`+"\n"+
		`{"msg":"mirror is live","session_id":"s-1"}`+"\n"+
		`{"msg":"mirror session created","session_id":"s-2"}`+"\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 5, Session: "s-1"})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("expected 2 session lines, got %#v", result.Lines)
	}

	appendRunLog(t, path, `{"msg":"relay restarting","session_id":"s-2"}`)
	appendRunLog(t, path, `{"msg":"mirror session ended","session_id":"s-1"}`)
	next, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: result.Offset, Session: "s-1"})
	if err != nil {
		t.Fatalf("tail from offset: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != `{"msg":"mirror session ended","session_id":"s-1"}` {
		t.Fatalf("unexpected lines after offset: %#v", next.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirrorcast-missing.log")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 42, Limit: 5})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTailOffsetPastEndRestartsAtEnd(t *testing.T) {
	path := writeRunLog(t, "one\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 1000})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeRunLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", result.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	appendRunLog(t, path, "later")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}
