package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is one running relay child.
type Process interface {
	PID() int
	// Lines yields diagnostic output and is closed when the output ends.
	Lines() <-chan string
	// Wait blocks until exit and returns the exit code. It must be called
	// after Lines is drained.
	Wait() (int, error)
	// Signal delivers sig to the whole process group.
	Signal(sig syscall.Signal) error
}

// Launcher starts relay processes.
type Launcher interface {
	Launch(binary string, args []string) (Process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	p := &execProcess{cmd: cmd, lines: make(chan string, 64)}
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanLinesOrCR)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	lines chan string
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Lines() <-chan string { return p.lines }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Signal(sig syscall.Signal) error {
	pid := p.PID()
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// scanLinesOrCR splits on \n or \r so ffmpeg's carriage-return progress
// updates arrive as separate lines.
func scanLinesOrCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
