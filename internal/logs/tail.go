package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	scanBuffer   = 64 * 1024
	maxLineBytes = 1024 * 1024
	pollInterval = 250 * time.Millisecond
)

// TailOptions selects which lines of a daemon log to return.
//
// A negative Offset returns the last Limit lines. A non-negative Offset
// returns everything written after it; with Follow set the call waits up to
// Wait for new lines. Session keeps only lines mentioning that mirror
// session id.
type TailOptions struct {
	Offset  int64
	Limit   int
	Follow  bool
	Wait    time.Duration
	Session string
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file yields no lines and
// offset zero so followers can wait for the daemon to create it.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		result.Offset = 0
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}

	keep := sessionFilter(opts.Session)
	wait := max(opts.Wait, 0)
	if opts.Offset < 0 {
		lines, offset, err := lastLines(path, opts.Limit, keep)
		if err != nil {
			return result, err
		}
		if opts.Follow && wait > 0 && len(lines) == 0 {
			return follow(ctx, path, offset, wait, keep)
		}
		return TailResult{Lines: lines, Offset: offset}, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// The log was truncated or replaced; start over at its end.
		offset = info.Size()
	}
	lines, next, err := linesAfter(path, offset, keep)
	if err != nil {
		return result, err
	}
	if opts.Follow && wait > 0 && len(lines) == 0 {
		return follow(ctx, path, next, wait, keep)
	}
	return TailResult{Lines: lines, Offset: next}, nil
}

func sessionFilter(id string) func(string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool { return strings.Contains(line, id) }
}

func openAt(path string, offset int64, whence int) (*os.File, *bufio.Scanner, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	if _, err := file.Seek(offset, whence); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("seek log file: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanBuffer), maxLineBytes)
	return file, scanner, nil
}

// lastLines keeps a ring of the newest limit matching lines. A non-positive
// limit returns no lines and the end offset.
func lastLines(path string, limit int, keep func(string) bool) ([]string, int64, error) {
	file, scanner, err := openAt(path, 0, io.SeekStart)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()
	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	next := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !keep(line) {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return append(ring[next:], ring[:next]...), end, nil
}

// linesAfter returns the complete matching lines written after offset.
func linesAfter(path string, offset int64, keep func(string) bool) ([]string, int64, error) {
	file, scanner, err := openAt(path, offset, io.SeekStart)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer file.Close()

	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); keep(line) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, end, nil
}

// follow polls for new matching lines until some arrive, wait elapses or
// ctx ends.
func follow(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := linesAfter(path, result.Offset, keep)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
