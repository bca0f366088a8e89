// Package procio launches child processes with their standard streams wired
// for programmatic reading and writing. It is internal to the clidrive
// package.
package procio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Config describes a process to launch.
type Config struct {
	Path string
	Args []string
	Env  []string
	Dir  string

	// PTY starts the process on a pseudo-terminal sized Cols x Rows. Stdout
	// and stderr are then merged into the terminal and Stderr returns nil.
	PTY  bool
	Cols int
	Rows int
}

// Proc is a running child process.
type Proc struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	tty    *os.File

	closeOnce sync.Once
}

// Status is the final state of an exited process. Code is nil when the
// process was terminated by a signal.
type Status struct {
	Code   *int
	Signal string
}

// Split breaks a command line into a program and its arguments on runs of
// whitespace. Quoting and escaping are not interpreted, so an argument
// cannot contain a space.
func Split(cmdLine string) (path string, args []string, err error) {
	fields := strings.Fields(cmdLine)
	if len(fields) == 0 {
		return "", nil, &Error{Op: "split", Err: errors.New("empty command line")}
	}
	return fields[0], fields[1:], nil
}

// Start launches the process described by cfg.
func Start(cfg Config) (*Proc, error) {
	if cfg.Path == "" {
		return nil, &Error{Op: "start", Err: errors.New("no program given")}
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	if cfg.PTY {
		return startPTY(cmd, cfg)
	}
	return startPipes(cmd, cfg)
}

// startPipes wires the standard streams to os.Pipe pairs. The process holds
// the far ends directly, so Wait returns as soon as it exits even if a
// descendant keeps an output stream open.
func startPipes(cmd *exec.Cmd, cfg Config) (*Proc, error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	pipe := func(name string) (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err != nil {
			return nil, nil, newError(name, cfg, err)
		}
		files = append(files, r, w)
		return r, w, nil
	}

	inR, inW, err := pipe("stdin")
	if err != nil {
		closeAll()
		return nil, err
	}
	outR, outW, err := pipe("stdout")
	if err != nil {
		closeAll()
		return nil, err
	}
	errR, errW, err := pipe("stderr")
	if err != nil {
		closeAll()
		return nil, err
	}

	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, newError("start", cfg, err)
	}

	// The child has its own copies now.
	_ = inR.Close()
	_ = outW.Close()
	_ = errW.Close()

	return &Proc{
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		stderr: errR,
	}, nil
}

func startPTY(cmd *exec.Cmd, cfg Config) (*Proc, error) {
	size := &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)}
	tty, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, newError("start", cfg, err)
	}
	return &Proc{
		cmd:    cmd,
		stdout: tty,
		tty:    tty,
	}, nil
}

// Stdin returns the write end of the process's input.
func (p *Proc) Stdin() io.Writer {
	if p.tty != nil {
		return p.tty
	}
	return p.stdin
}

// Stdout returns the read end of the process's output.
func (p *Proc) Stdout() io.Reader {
	return p.stdout
}

// Stderr returns the read end of the process's diagnostic output, or nil in
// pseudo-terminal mode.
func (p *Proc) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

// Pid returns the operating system process ID.
func (p *Proc) Pid() int {
	return p.cmd.Process.Pid
}

// Signal sends sig to the process. It returns os.ErrProcessDone if the
// process has already been reaped.
func (p *Proc) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Kill forcibly stops the process.
func (p *Proc) Kill() error {
	return p.cmd.Process.Kill()
}

// CloseInput closes the process's input stream.
func (p *Proc) CloseInput() error {
	if p.tty != nil {
		return nil
	}
	return p.stdin.Close()
}

// Wait waits for the process to exit. It does not wait for the output
// streams to drain; they stay readable until Close.
func (p *Proc) Wait() (Status, error) {
	err := p.cmd.Wait()

	state := p.cmd.ProcessState
	if state == nil {
		return Status{}, &Error{Op: "wait", Path: p.cmd.Path, Args: p.cmd.Args[1:], Err: err}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Status{Signal: signalName(ws.Signal())}, nil
	}
	code := state.ExitCode()
	return Status{Code: &code}, nil
}

// Close releases the parent's ends of the process streams. Pending reads
// return an error satisfying IsClosed. It is safe to call more than once.
func (p *Proc) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, f := range []*os.File{p.stdin, p.stdout, p.stderr} {
			if f == nil {
				continue
			}
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// IsClosed reports whether err signals the normal end of a process stream:
// EOF, a closed pipe, or the EIO a pseudo-terminal returns once the child
// side has gone away.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}

// Error represents a failure to launch or manage a process.
type Error struct {
	Op   string
	Path string
	Args []string
	Err  error
}

func newError(op string, cfg Config, err error) *Error {
	return &Error{Op: op, Path: cfg.Path, Args: cfg.Args, Err: err}
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
