package testsupport

import (
	"sync"
	"syscall"

	"mirrorcast/internal/relay"
)

// FakeProcess is a scripted relay process. Queued lines are delivered first;
// a blocking process then keeps running until it is signalled or Exit is
// called.
type FakeProcess struct {
	pid   int
	lines chan string

	mu      sync.Mutex
	code    int
	closed  bool
	signals []syscall.Signal
}

// NewFakeProcess builds a process that exits with code after emitting lines,
// or keeps running when blocking is set.
func NewFakeProcess(pid, code int, lines []string, blocking bool) *FakeProcess {
	p := &FakeProcess{pid: pid, code: code, lines: make(chan string, len(lines)+1)}
	for _, l := range lines {
		p.lines <- l
	}
	if !blocking {
		p.closed = true
		close(p.lines)
	}
	return p
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Lines() <-chan string { return p.lines }

func (p *FakeProcess) Wait() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, nil
}

// Signal records sig and terminates a running process.
func (p *FakeProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	p.Exit(-1)
	return nil
}

// Exit ends a running process with code. It is a no-op once exited.
func (p *FakeProcess) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.code = code
	close(p.lines)
}

// Signals returns the signals received so far.
func (p *FakeProcess) Signals() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]syscall.Signal(nil), p.signals...)
}

// FakeLauncher hands out processes from Next, numbered from 1.
type FakeLauncher struct {
	Next func(n int) *FakeProcess

	mu    sync.Mutex
	calls [][]string
	procs []*FakeProcess
}

// Launch implements relay.Launcher.
func (l *FakeLauncher) Launch(_ string, args []string) (relay.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, append([]string(nil), args...))
	next := l.Next
	if next == nil {
		next = func(n int) *FakeProcess { return NewFakeProcess(1000+n, 0, nil, true) }
	}
	p := next(len(l.calls))
	l.procs = append(l.procs, p)
	return p, nil
}

// Calls returns the argument lists of every launch.
func (l *FakeLauncher) Calls() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.calls...)
}

// Proc returns the i-th launched process.
func (l *FakeLauncher) Proc(i int) *FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.procs) {
		return nil
	}
	return l.procs[i]
}
