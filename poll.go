package clidrive

import (
	"context"
	"fmt"
	"time"
)

// expectation is what one wait requires of each stream. A nil pattern
// places no constraint on its stream.
type expectation struct {
	stdout Pattern
	stderr Pattern
}

func (e expectation) String() string {
	return fmt.Sprintf("stdout %s, stderr %s", describe(e.stdout), describe(e.stderr))
}

// waitFor polls the buffers every delta until both expectations match in the
// same check or the timeout passes. Whether the process has exited is only
// consulted once the deadline has passed, so a process that exits right after
// producing the expected output still matches.
func (s *Session) waitFor(ctx context.Context, exp expectation, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if s.tryMatch(exp) {
			return nil
		}

		now := time.Now()
		if now.After(deadline) {
			return s.expire(exp, timeout, now)
		}

		if err := sleep(ctx, s.opts.delta); err != nil {
			return s.canceled(err)
		}
	}
}

// tryMatch checks both streams and consumes both matches only if both
// expectations are satisfied.
func (s *Session) tryMatch(exp expectation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	outSpan, outOK := s.stdout.find(exp.stdout)
	errSpan, errOK := s.stderr.find(exp.stderr)
	if !outOK || !errOK {
		return false
	}

	s.stdout.consume(outSpan)
	s.stderr.consume(errSpan)
	s.transcript = append(s.transcript,
		"stdout: "+s.stdout.String(),
		"stderr: "+s.stderr.String(),
		outcomeLine(markSuccess, time.Now()),
	)
	return true
}

// expire records the failed wait and classifies it by whether the process
// had exited by the deadline.
func (s *Session) expire(exp expectation, timeout time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exited := s.exit != nil
	mark := markTimeout
	if exited {
		mark = markPrematureExit
	}
	s.transcript = append(s.transcript,
		"stdout: "+s.stdout.String(),
		"stdout-expected: "+describe(exp.stdout),
		"stderr: "+s.stderr.String(),
		"stderr-expected: "+describe(exp.stderr),
		outcomeLine(mark, now),
	)

	if exited {
		return &failure{
			kind: KindPrematureExit,
			msg:  fmt.Sprintf("process exited prematurely (%s); waiting for %s", s.exit, exp),
		}
	}
	return &failure{
		kind: KindTimeout,
		msg:  fmt.Sprintf("timed out after %v; waiting for %s", timeout, exp),
	}
}

func (s *Session) canceled(err error) error {
	s.record(outcomeLine("CANCELED", time.Now()))
	return &failure{kind: KindCanceled, msg: fmt.Sprintf("wait canceled: %v", err), err: err}
}
