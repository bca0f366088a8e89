package clidrive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind classifies a session failure.
type Kind int

const (
	// KindTimeout: the expected output did not appear before the deadline
	// and the process was still running.
	KindTimeout Kind = iota + 1
	// KindPrematureExit: the deadline passed and the process had already
	// exited without producing the expected output.
	KindPrematureExit
	// KindDelivery: writing input to the process failed.
	KindDelivery
	// KindLaunch: the process could not be started.
	KindLaunch
	// KindCanceled: the context was canceled while waiting.
	KindCanceled
)

// Sentinel errors matched by errors.Is against an *Error of the same Kind.
var (
	ErrTimeout        = errors.New("timed out")
	ErrPrematureExit  = errors.New("process exited prematurely")
	ErrDeliveryFailed = errors.New("input delivery failed")
	ErrLaunch         = errors.New("launch failed")
	ErrCanceled       = errors.New("canceled")
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindPrematureExit:
		return "premature exit"
	case KindDelivery:
		return "delivery failed"
	case KindLaunch:
		return "launch failed"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindPrematureExit:
		return ErrPrematureExit
	case KindDelivery:
		return ErrDeliveryFailed
	case KindLaunch:
		return ErrLaunch
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// ExitRecord is how the child process ended. Code is nil when it was
// terminated by a signal; Signal is empty when it exited on its own.
type ExitRecord struct {
	Code   *int
	Signal string
}

func (r ExitRecord) String() string {
	switch {
	case r.Code != nil:
		return "exit code " + strconv.Itoa(*r.Code)
	case r.Signal != "":
		return "signal " + r.Signal
	}
	return "exited"
}

// Details is the diagnostic context attached to every session failure.
type Details struct {
	SessionID string
	Command   string
	// Index is the failing step, or -1 when the process never started.
	Index  int
	Step   Step
	Stdout string
	Stderr string
	// Code and Signal are the exit record at the moment of failure; both are
	// unset while the process is still running.
	Code       *int
	Signal     string
	Transcript Transcript
}

// Error is returned by Run for every failure.
type Error struct {
	Kind    Kind
	Message string
	Details Details
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Report renders the error with all of its details for a postmortem.
func (e *Error) Report() string {
	d := e.Details

	var b strings.Builder
	b.WriteString(e.Message)
	fmt.Fprintf(&b, "\n    session: %s", d.SessionID)
	fmt.Fprintf(&b, "\n    command: %s", d.Command)
	if d.Index >= 0 {
		fmt.Fprintf(&b, "\n    step %d: %s", d.Index, d.Step)
	}
	fmt.Fprintf(&b, "\n    process: %s", processState(d.Code, d.Signal))
	fmt.Fprintf(&b, "\n    stdout buffer:\n%s", formatBufferBox(d.Stdout))
	fmt.Fprintf(&b, "\n    stderr buffer:\n%s", formatBufferBox(d.Stderr))
	b.WriteString("\n    transcript (oldest to newest):")
	if len(d.Transcript) == 0 {
		b.WriteString("\n      (empty)")
	}
	for _, line := range d.Transcript {
		b.WriteString("\n      ")
		b.WriteString(strings.ReplaceAll(line, "\n", "\n      "))
	}
	return b.String()
}

func processState(code *int, signal string) string {
	if code == nil && signal == "" {
		return "running"
	}
	return ExitRecord{Code: code, Signal: signal}.String()
}

// formatBufferBox formats a buffer with a box border for error messages.
func formatBufferBox(content string) string {
	if content == "" {
		return "    (empty)"
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	width := 0
	for i, l := range lines {
		lines[i] = strconv.Quote(l)
		lines[i] = lines[i][1 : len(lines[i])-1]
		if n := utf8.RuneCountInString(lines[i]); n > width {
			width = n
		}
	}

	var b strings.Builder
	border := strings.Repeat("─", width)

	fmt.Fprintf(&b, "    ┌%s┐\n", border)
	for _, line := range lines {
		padded := line
		if n := utf8.RuneCountInString(padded); n < width {
			padded += strings.Repeat(" ", width-n)
		}
		fmt.Fprintf(&b, "    │%s│\n", padded)
	}
	fmt.Fprintf(&b, "    └%s┘", border)

	return b.String()
}
