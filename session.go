package clidrive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/cboone/clidrive/internal/procio"
)

// Step is one prompt/response exchange.
type Step struct {
	// Prompt is awaited on stdout before any input is sent. A nil or
	// Text("") prompt sends the input immediately.
	Prompt Pattern
	// Input chunks are written in order, each followed by a pause of one
	// polling interval.
	Input []string
	// Stdout and Stderr are awaited after the input is sent. Nil places no
	// constraint on that stream. Both must match in the same poll.
	Stdout Pattern
	Stderr Pattern
	// Timeout overrides the session timeout for this step's waits.
	Timeout time.Duration
	// Debug turns on the debug echo for this step only. It cannot turn off
	// a session-wide debug echo.
	Debug bool
	// ControlChars overrides the session policy for this step.
	ControlChars *ControlChars
}

func (s Step) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "prompt %s, input [", describe(s.Prompt))
	for i, in := range s.Input {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strconv.Quote(in))
	}
	fmt.Fprintf(&b, "], stdout %s, stderr %s", describe(s.Stdout), describe(s.Stderr))
	return b.String()
}

// Session is one run of a command line through a list of steps.
// It is created with New and driven with Run.
type Session struct {
	id      string
	cmdLine string
	steps   []Step
	opts    options
	optErr  error
	log     *log.Logger

	proc    *procio.Proc
	readers sync.WaitGroup
	drained chan struct{}
	exited  chan struct{}
	ran     bool

	mu         sync.Mutex
	stdout     outputBuffer
	stderr     outputBuffer
	policy     ControlChars
	debug      bool
	exit       *ExitRecord
	transcript Transcript
}

// New prepares a session. The command line is split on whitespace into a
// program and its arguments; arguments containing spaces are not supported.
func New(cmdLine string, steps []Step, userOpts ...Option) *Session {
	opts := defaultOptions()
	for _, o := range userOpts {
		o(&opts)
	}

	s := &Session{
		id:      uuid.NewString(),
		cmdLine: cmdLine,
		steps:   append([]Step(nil), steps...),
		drained: make(chan struct{}),
		exited:  make(chan struct{}),
	}

	switch {
	case opts.timeout < 0:
		s.optErr = fmt.Errorf("clidrive: negative timeout: %v", opts.timeout)
	case opts.delta < 0:
		s.optErr = fmt.Errorf("clidrive: negative delta: %v", opts.delta)
	case opts.timeout == 0:
		opts.timeout = defaultTimeout
	}
	if opts.delta == 0 {
		opts.delta = defaultDelta
	} else if opts.delta > 0 && opts.delta < minDelta {
		opts.delta = minDelta
	}
	for i, step := range s.steps {
		if step.Timeout < 0 && s.optErr == nil {
			s.optErr = fmt.Errorf("clidrive: step %d: negative timeout: %v", i, step.Timeout)
		}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	s.opts = opts
	s.log = opts.logger.With("session", s.id)
	s.policy = opts.controlChars
	s.debug = opts.debug
	return s
}

// Run spawns the process and walks the steps in order. It returns nil once
// every step has matched, or an *Error describing the first failure. No step
// after a failure is attempted. A Session can only be run once.
func (s *Session) Run(ctx context.Context) error {
	if s.optErr != nil {
		return s.optErr
	}
	if s.ran {
		return errors.New("clidrive: session already run")
	}
	s.ran = true

	if err := s.start(); err != nil {
		return s.launchError(err)
	}

	for i, step := range s.steps {
		if err := s.runStep(ctx, i, step); err != nil {
			return s.fail(i, step, err)
		}
	}

	s.log.Debug("all steps matched", "steps", len(s.steps))
	if s.opts.killOnExit {
		s.terminate()
	}
	return nil
}

// Run runs a session for cmdLine and steps with a background context.
func Run(cmdLine string, steps []Step, opts ...Option) error {
	return RunContext(context.Background(), cmdLine, steps, opts...)
}

// RunContext runs a session for cmdLine and steps. Canceling ctx ends the
// current wait with a KindCanceled error.
func RunContext(ctx context.Context, cmdLine string, steps []Step, opts ...Option) error {
	return New(cmdLine, steps, opts...).Run(ctx)
}

// runStep performs the prompt wait, input delivery and response wait of one
// step under the step's effective policy, timeout and debug flag.
func (s *Session) runStep(ctx context.Context, index int, step Step) error {
	timeout := s.opts.timeout
	if step.Timeout > 0 {
		timeout = step.Timeout
	}

	s.mu.Lock()
	s.policy = s.opts.controlChars.merge(step.ControlChars)
	prevDebug := s.debug
	s.debug = step.Debug || s.debug
	s.mu.Unlock()

	logger := s.log.With("step", index)
	logger.Debug("step begin", "timeout", timeout)

	if !isEmpty(step.Prompt) {
		if err := s.waitFor(ctx, expectation{stdout: step.Prompt}, timeout); err != nil {
			return err
		}
		logger.Debug("prompt matched", "prompt", describe(step.Prompt))
	}

	if err := s.deliverInput(ctx, step.Input); err != nil {
		return err
	}

	if err := s.waitFor(ctx, expectation{stdout: step.Stdout, stderr: step.Stderr}, timeout); err != nil {
		return err
	}
	logger.Debug("response matched")

	s.mu.Lock()
	s.debug = prevDebug
	s.mu.Unlock()
	return nil
}

// fail converts a step failure into an *Error, capturing the process state
// as it was when the step failed, and terminates the process if configured.
func (s *Session) fail(index int, step Step, err error) error {
	var f *failure
	if !errors.As(err, &f) {
		f = &failure{kind: KindDelivery, msg: err.Error(), err: err}
	}

	s.mu.Lock()
	details := Details{
		SessionID:  s.id,
		Command:    s.cmdLine,
		Index:      index,
		Step:       step,
		Stdout:     s.stdout.String(),
		Stderr:     s.stderr.String(),
		Transcript: append(Transcript(nil), s.transcript...),
	}
	if s.exit != nil {
		details.Code = s.exit.Code
		details.Signal = s.exit.Signal
	}
	s.mu.Unlock()

	s.log.Debug("step failed", "step", index, "kind", f.kind, "error", f.msg)
	if s.opts.killOnExit {
		s.terminate()
	}

	return &Error{
		Kind:    f.kind,
		Message: fmt.Sprintf("clidrive: step %d: %s", index, f.msg),
		Details: details,
		Err:     f.err,
	}
}

func (s *Session) launchError(err error) error {
	s.mu.Lock()
	s.transcript = append(s.transcript, "launch: "+err.Error())
	transcript := append(Transcript(nil), s.transcript...)
	s.mu.Unlock()

	return &Error{
		Kind:    KindLaunch,
		Message: fmt.Sprintf("clidrive: launch: %v", err),
		Details: Details{
			SessionID:  s.id,
			Command:    s.cmdLine,
			Index:      -1,
			Transcript: transcript,
		},
		Err: err,
	}
}

// failure is the internal result of a failed wait or delivery.
type failure struct {
	kind Kind
	msg  string
	err  error
}

func (f *failure) Error() string {
	return f.msg
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Transcript returns a copy of the session transcript so far.
func (s *Session) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(Transcript(nil), s.transcript...)
}

// Exit returns the process exit record, and false while the process is
// still running or was never started.
func (s *Session) Exit() (ExitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exit == nil {
		return ExitRecord{}, false
	}
	return *s.exit, true
}

// Buffers returns the unconsumed stdout and stderr output.
func (s *Session) Buffers() (stdout, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.String(), s.stderr.String()
}

// Header describes the session for the top of a saved transcript.
func (s *Session) Header() string {
	return fmt.Sprintf("session: %s\ncommand: %s\nsteps: %d", s.id, s.cmdLine, len(s.steps))
}
