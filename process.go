package clidrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/cboone/clidrive/internal/procio"
)

type stream int

const (
	streamStdout stream = iota
	streamStderr
)

func (st stream) String() string {
	if st == streamStderr {
		return "stderr"
	}
	return "stdout"
}

const readChunkSize = 4096

var inputEcho = color.New(color.FgCyan)

// start launches the process and its observers: one reader per output
// stream and an exit observer that records how the process ended as soon as
// it exits.
func (s *Session) start() error {
	path, args, err := procio.Split(s.cmdLine)
	if err != nil {
		return err
	}

	proc, err := procio.Start(procio.Config{
		Path: path,
		Args: args,
		Env:  s.opts.env,
		Dir:  s.opts.dir,
		PTY:  s.opts.pty,
		Cols: s.opts.width,
		Rows: s.opts.height,
	})
	if err != nil {
		return err
	}
	s.proc = proc
	s.log.Debug("process started", "command", s.cmdLine, "pid", proc.Pid(), "pty", s.opts.pty)

	s.readers.Add(1)
	go s.observe(streamStdout, proc.Stdout())
	if r := proc.Stderr(); r != nil {
		s.readers.Add(1)
		go s.observe(streamStderr, r)
	}
	go func() {
		s.readers.Wait()
		close(s.drained)
	}()
	go s.observeExit()
	return nil
}

// observe feeds one output stream into its buffer until the stream closes.
func (s *Session) observe(st stream, r io.Reader) {
	defer s.readers.Done()

	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.onOutput(st, string(buf[:n]))
		}
		if err != nil {
			if !procio.IsClosed(err) {
				s.log.Warn("read failed", "stream", st, "error", err)
				s.record(fmt.Sprintf("%s read error: %v", st, err))
			}
			return
		}
	}
}

func (s *Session) onOutput(st stream, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debug {
		w := s.opts.debugStdout
		if st == streamStderr {
			w = s.opts.debugStderr
		}
		_, _ = io.WriteString(w, chunk)
	}

	if st == streamStderr {
		s.stderr.append(chunk, s.policy)
		return
	}
	s.stdout.append(chunk, s.policy)
}

// observeExit records the exit independently of the output streams, which a
// descendant of the process may still hold open.
func (s *Session) observeExit() {
	status, err := s.proc.Wait()
	if err != nil {
		s.log.Warn("wait failed", "error", err)
	}

	s.mu.Lock()
	s.exit = &ExitRecord{Code: status.Code, Signal: status.Signal}
	if s.debug {
		fmt.Fprintf(s.opts.debugStdout, "Exiting %s\n", s.exit)
	}
	s.mu.Unlock()

	s.log.Debug("process exited", "status", s.exit)
	close(s.exited)
}

// deliverInput writes each chunk in order, pausing one polling interval
// after each so a slow child has time to become ready to read again.
func (s *Session) deliverInput(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	w := s.proc.Stdin()
	for i, chunk := range chunks {
		if _, err := io.WriteString(w, chunk); err != nil {
			s.record(fmt.Sprintf("stdin: failed after %d of %d chunks: %v", i, len(chunks), err))
			return &failure{
				kind: KindDelivery,
				msg:  fmt.Sprintf("writing input chunk %d %q: %v", i, chunk, err),
				err:  err,
			}
		}
		if err := sleep(ctx, s.opts.delta); err != nil {
			return s.canceled(err)
		}
	}

	joined := strings.Join(chunks, "")
	s.mu.Lock()
	s.transcript = append(s.transcript, "stdin: "+joined)
	if s.debug {
		_, _ = inputEcho.Fprint(s.opts.debugStdout, joined)
	}
	s.mu.Unlock()

	s.log.Debug("input delivered", "chunks", len(chunks))
	return nil
}

// terminate stops the process if it is still running, then releases the
// output streams once they drain or the kill grace period passes.
func (s *Session) terminate() {
	if s.proc == nil {
		return
	}

	select {
	case <-s.exited:
	default:
		s.stop()
	}
	s.release()
}

// stop sends the kill signal and kills the process outright if it outlives
// the grace period.
func (s *Session) stop() {
	if err := s.proc.Signal(s.opts.killSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warn("signal failed", "signal", s.opts.killSignal, "error", err)
	}

	select {
	case <-s.exited:
		return
	case <-time.After(s.opts.killGrace):
	}

	s.log.Warn("process outlived kill grace; killing", "grace", s.opts.killGrace)
	if err := s.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warn("kill failed", "error", err)
	}
	<-s.exited
}

// release closes the parent's stream ends. Output still buffered in the
// pipes is read first unless a descendant keeps them open past the grace
// period.
func (s *Session) release() {
	select {
	case <-s.drained:
	case <-time.After(s.opts.killGrace):
		s.log.Warn("output still open after exit; closing", "grace", s.opts.killGrace)
	}
	if err := s.proc.Close(); err != nil {
		s.log.Warn("close failed", "error", err)
	}
}

func (s *Session) record(line string) {
	s.mu.Lock()
	s.transcript = append(s.transcript, line)
	s.mu.Unlock()
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
