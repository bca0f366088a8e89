// Package clidrive drives interactive command-line programs through scripted
// prompt/response exchanges, for automated tests of programs that ask for
// terminal input: menus, y/n prompts, multi-step wizards.
//
// clidrive spawns the program, feeds it input only after the expected output
// has appeared, and fails with full diagnostic context when an expectation is
// not met within its time budget.
//
// # Quick Start
//
//	func TestWizard(t *testing.T) {
//		clidrive.RunT(t, "./my-cli init", []clidrive.Step{{
//			Prompt: clidrive.Regexp(`Continue\? `),
//			Input:  []string{clidrive.Enter},
//			Stdout: clidrive.Regexp(`Continue\? yes`),
//		}})
//	}
//
// Outside tests, [Run] and [RunContext] return an [*Error] instead.
//
// # Steps
//
// Each [Step] runs in three phases:
//
//   - wait for Prompt on stdout (skipped when Prompt is nil or Text(""))
//   - write each Input chunk, pausing one polling interval after each
//   - wait for Stdout and Stderr, which must both match in the same poll
//
// A nil Stdout or Stderr places no constraint on that stream. Steps run
// strictly in order and the first failure ends the session.
//
// # Matching
//
// Output from each stream accumulates in its own buffer. When a wait matches,
// the first matching span is removed from the buffer, so a later step matches
// text after (or before) an earlier match but never the same text twice.
//
// Terminal control sequences are stripped from the buffers before matching
// by default; see [ControlChars] and [WithControlChars]. A step can override
// the policy with Step.ControlChars.
//
// # Timing
//
// Waits poll the buffers every delta (default 1s, [WithDelta]) until they
// match or the step timeout (default 5s, [WithTimeout], Step.Timeout)
// passes. If the process has exited by the deadline the failure is reported
// as a premature exit; otherwise as a timeout. Exit is never treated as a
// failure before the deadline, so a program that exits right after printing
// what was expected still passes.
//
// # Process
//
// The command line is split on whitespace; quoting is not interpreted and
// arguments cannot contain spaces. The process runs with piped stdin, stdout
// and stderr, or on a pseudo-terminal with [WithPTY]. It is sent SIGHUP when
// the session ends, on success or failure, unless [WithKillOnExit] is false.
//
// # Diagnostics
//
// Every failure is an [*Error] whose Details hold the step index and
// definition, both unconsumed buffers, the exit code or signal, and the full
// [Transcript]. [Error.Report] renders all of it. errors.Is distinguishes
// [ErrTimeout], [ErrPrematureExit], [ErrDeliveryFailed], [ErrLaunch] and
// [ErrCanceled].
package clidrive
