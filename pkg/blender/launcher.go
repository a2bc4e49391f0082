package blender

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/df07/go-batch-renderer/pkg/host"
)

//go:embed bridge.py
var bridgeScript []byte

// Options controls how Blender is launched
type Options struct {
	// Binary is the Blender command line. It may carry extra arguments and
	// $VAR references, e.g. "flatpak run org.blender.Blender".
	Binary string
	// Template is an optional .blend file opened before the bridge runs
	Template string
	Logger   *slog.Logger
}

type process struct {
	cmd    *exec.Cmd
	script string

	waitOnce sync.Once
	waitErr  error
}

// Start launches Blender in background mode with the command bridge loaded
func Start(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name, args, err := commandLine(opts)
	if err != nil {
		return nil, err
	}

	script, err := writeBridge()
	if err != nil {
		return nil, err
	}
	args = append(args, "--python", script)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &logWriter{logger: logger, source: "host-stderr"}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(script)
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(script)
		return nil, err
	}

	logger.Info("starting blender", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("%w: starting %s: %v", host.ErrHost, name, err)
	}

	s := newSession(stdout, stdin, logger)
	s.proc = &process{cmd: cmd, script: script}
	return s, nil
}

// commandLine splits the configured binary and appends the fixed background arguments
func commandLine(opts Options) (string, []string, error) {
	words, err := shellwords.Parse(os.ExpandEnv(opts.Binary))
	if err != nil {
		return "", nil, fmt.Errorf("parsing blender command %q: %w", opts.Binary, err)
	}
	if len(words) == 0 {
		return "", nil, errors.New("blender command is empty")
	}

	args := append(words[1:], "--background")
	if opts.Template != "" {
		args = append(args, opts.Template)
	}
	args = append(args, "--python-exit-code", "1")
	return words[0], args, nil
}

func writeBridge() (string, error) {
	f, err := os.CreateTemp("", "batch-renderer-bridge-*.py")
	if err != nil {
		return "", fmt.Errorf("writing bridge script: %w", err)
	}
	if _, err := f.Write(bridgeScript); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing bridge script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing bridge script: %w", err)
	}
	return f.Name(), nil
}

func (p *process) wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		if err != nil {
			p.waitErr = fmt.Errorf("%w: blender exited with status %d (ran: %v): %v",
				host.ErrHost, ExitStatus(err), CmdRan(err), err)
		}
	})
	return p.waitErr
}

func (p *process) kill() {
	if p.cmd.ProcessState == nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
}

// close reaps the process and removes the bridge script
func (p *process) close() error {
	p.kill()
	p.wait()
	if err := os.Remove(p.script); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CmdRan reports whether err came from a command that actually ran,
// even if it exited with a non-zero code
func CmdRan(err error) bool {
	if err == nil {
		return true
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.Exited()
	}
	return false
}

type exitStatus interface {
	ExitStatus() int
}

// ExitStatus returns the exit code carried by err: 0 for nil, 1 when unknown
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(exitStatus); ok {
		return e.ExitStatus()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ex, ok := ee.Sys().(exitStatus); ok {
			return ex.ExitStatus()
		}
	}
	return 1
}

// logWriter forwards complete lines written to it to a logger
type logWriter struct {
	logger *slog.Logger
	source string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

func (w *logWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.logger.Debug(line, "source", w.source)
}
