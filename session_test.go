package clidrive_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboone/clidrive"
)

// fast returns options suited to the fixture: a quiet logger and a short
// polling interval.
func fast(opts ...clidrive.Option) []clidrive.Option {
	return append([]clidrive.Option{
		clidrive.WithLogger(log.New(io.Discard)),
		clidrive.WithDelta(10 * time.Millisecond),
		clidrive.WithTimeout(3 * time.Second),
	}, opts...)
}

func requireError(t *testing.T, err error) *clidrive.Error {
	t.Helper()
	require.Error(t, err)
	var e *clidrive.Error
	require.True(t, errors.As(err, &e), "want *clidrive.Error, got %T: %v", err, err)
	return e
}

func stdinLines(tr clidrive.Transcript) []string {
	var lines []string
	for _, line := range tr {
		if strings.HasPrefix(line, "stdin: ") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestRunConfirm(t *testing.T) {
	err := clidrive.Run(clidrive.Fixture("confirm"), []clidrive.Step{{
		Prompt: clidrive.Text("Continue? "),
		Input:  []string{clidrive.Enter},
		Stdout: clidrive.Regexp(`Continue\? yes`),
	}}, fast()...)
	require.NoError(t, err)
}

func TestRunZeroStepsTerminates(t *testing.T) {
	s := clidrive.New(clidrive.Fixture("silent"), nil, fast()...)
	require.NoError(t, s.Run(context.Background()))

	rec, ok := s.Exit()
	require.True(t, ok, "process should have been terminated")
	assert.Nil(t, rec.Code)
	assert.Equal(t, "SIGHUP", rec.Signal)
}

func TestRunSessionOnlyOnce(t *testing.T) {
	s := clidrive.New(clidrive.Fixture("exit", "0"), nil, fast()...)
	require.NoError(t, s.Run(context.Background()))
	assert.Error(t, s.Run(context.Background()))
}

func TestRunEmptyPromptSendsImmediately(t *testing.T) {
	for name, prompt := range map[string]clidrive.Pattern{
		"nil":        nil,
		"empty text": clidrive.Text(""),
	} {
		t.Run(name, func(t *testing.T) {
			s := clidrive.New(clidrive.Fixture("silent"), []clidrive.Step{{
				Prompt: prompt,
				Input:  []string{"hi", clidrive.Enter},
				Stdout: clidrive.Text("got: hi"),
			}}, fast()...)
			require.NoError(t, s.Run(context.Background()))
			assert.Equal(t, []string{"stdin: hi\r"}, stdinLines(s.Transcript()))
		})
	}
}

func TestRunTimeout(t *testing.T) {
	t.Run("output after deadline", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("delay", "300", "late"), []clidrive.Step{{
			Prompt: clidrive.Text("late"),
		}}, fast(clidrive.WithTimeout(100*time.Millisecond))...)

		e := requireError(t, err)
		assert.Equal(t, clidrive.KindTimeout, e.Kind)
		assert.ErrorIs(t, err, clidrive.ErrTimeout)
		assert.Equal(t, 0, e.Details.Index)
		assert.Nil(t, e.Details.Code, "process was running when the step failed")
		assert.Empty(t, e.Details.Signal)
		assert.Contains(t, e.Message, "timed out")
		assert.Contains(t, e.Details.Transcript.String(), "------ TIMEOUT ")
	})

	t.Run("output just past deadline", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("delay", "150", "late"), []clidrive.Step{{
			Prompt: clidrive.Text("late"),
		}}, fast(clidrive.WithTimeout(100*time.Millisecond))...)

		e := requireError(t, err)
		assert.Equal(t, clidrive.KindTimeout, e.Kind)
		assert.Equal(t, 0, e.Details.Index)
		assert.Nil(t, e.Details.Code)
	})

	t.Run("output before deadline", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("delay", "100", "late"), []clidrive.Step{{
			Prompt: clidrive.Text("late"),
		}}, fast(clidrive.WithTimeout(2*time.Second))...)
		require.NoError(t, err)
	})

	t.Run("step timeout overrides session", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("delay", "300", "late"), []clidrive.Step{{
			Prompt:  clidrive.Text("late"),
			Timeout: 2 * time.Second,
		}}, fast(clidrive.WithTimeout(50*time.Millisecond))...)
		require.NoError(t, err)
	})
}

func TestRunPrematureExit(t *testing.T) {
	err := clidrive.Run(clidrive.Fixture("exit", "3"), []clidrive.Step{{
		Prompt: clidrive.Text("never"),
	}}, fast(clidrive.WithTimeout(200*time.Millisecond))...)

	e := requireError(t, err)
	assert.Equal(t, clidrive.KindPrematureExit, e.Kind)
	assert.ErrorIs(t, err, clidrive.ErrPrematureExit)
	require.NotNil(t, e.Details.Code)
	assert.Equal(t, 3, *e.Details.Code)
	assert.Contains(t, e.Message, "exit code 3")
	assert.Contains(t, e.Details.Transcript.String(), "------ PREMATURE EXIT ")
}

func TestRunPrematureExitWithDetachedDescendant(t *testing.T) {
	begin := time.Now()
	err := clidrive.Run(clidrive.Fixture("detach", "3"), []clidrive.Step{{
		Prompt: clidrive.Text("never"),
	}}, fast(clidrive.WithTimeout(300*time.Millisecond), clidrive.WithKillGrace(200*time.Millisecond))...)

	e := requireError(t, err)
	assert.Equal(t, clidrive.KindPrematureExit, e.Kind)
	require.NotNil(t, e.Details.Code)
	assert.Equal(t, 3, *e.Details.Code)
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestRunOutputBeforeExitStillMatches(t *testing.T) {
	s := clidrive.New(clidrive.Fixture("say", "bye"), []clidrive.Step{{
		Prompt: clidrive.Text("bye"),
	}}, fast()...)
	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, s.Transcript().String(), "------ SUCCESS ")
}

func TestRunMultiChunkInput(t *testing.T) {
	s := clidrive.New(clidrive.Fixture("phone"), []clidrive.Step{{
		Prompt: clidrive.Text("Phone number: "),
		Input:  []string{"4081234567", clidrive.Enter},
		Stdout: clidrive.Text("You entered: 4081234567"),
	}}, fast()...)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"stdin: 4081234567\r"}, stdinLines(s.Transcript()))
}

func TestRunMenuArrowKeys(t *testing.T) {
	err := clidrive.Run(clidrive.Fixture("menu"), []clidrive.Step{{
		Prompt: clidrive.Regexp(`Pick a size[\s\S]*Large`),
		Input:  []string{clidrive.Down, clidrive.Enter},
		Stdout: clidrive.Text("? Pick a size Medium"),
	}}, fast()...)
	require.NoError(t, err)
}

func TestRunStderr(t *testing.T) {
	t.Run("both streams match", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("stderr"), []clidrive.Step{{
			Prompt: clidrive.Text("Proceed? "),
			Input:  []string{clidrive.Enter},
			Stdout: clidrive.Text("proceeding"),
			Stderr: clidrive.Text("done"),
		}}, fast()...)
		require.NoError(t, err)
	})

	t.Run("one stream missing consumes nothing", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("stderr"), []clidrive.Step{{
			Prompt: clidrive.Text("Proceed? "),
			Input:  []string{clidrive.Enter},
			Stdout: clidrive.Text("proceeding"),
			Stderr: clidrive.Text("never"),
		}}, fast(clidrive.WithTimeout(200*time.Millisecond))...)

		e := requireError(t, err)
		assert.Equal(t, clidrive.KindTimeout, e.Kind)
		assert.Contains(t, e.Details.Stdout, "proceeding")
		assert.Contains(t, e.Details.Stderr, "warning: disk almost full")
		assert.Contains(t, e.Details.Transcript.String(), `stderr-expected: "never"`)
	})
}

func TestRunControlChars(t *testing.T) {
	t.Run("stripped by default", func(t *testing.T) {
		err := clidrive.Run(clidrive.Fixture("ansi"), []clidrive.Step{{
			Stdout: clidrive.Text("hello world"),
		}}, fast()...)
		require.NoError(t, err)
	})

	t.Run("kept when stripping is off", func(t *testing.T) {
		off := clidrive.WithControlChars(clidrive.ControlChars{Strip: false})

		err := clidrive.Run(clidrive.Fixture("ansi"), []clidrive.Step{{
			Stdout: clidrive.Text("\x1b[1mworld"),
		}}, fast(off)...)
		require.NoError(t, err)

		err = clidrive.Run(clidrive.Fixture("ansi"), []clidrive.Step{{
			Stdout: clidrive.Text("hello world"),
		}}, fast(off, clidrive.WithTimeout(150*time.Millisecond))...)
		e := requireError(t, err)
		assert.Equal(t, clidrive.KindTimeout, e.Kind)
	})
}

func TestRunPTY(t *testing.T) {
	s := clidrive.New(clidrive.Fixture("confirm"), []clidrive.Step{{
		Prompt: clidrive.Text("Continue? "),
		Input:  []string{clidrive.Enter},
		Stdout: clidrive.Regexp(`Continue\? yes`),
	}}, fast(clidrive.WithPTY(), clidrive.WithSize(100, 30))...)

	err := s.Run(context.Background())
	if errors.Is(err, clidrive.ErrLaunch) {
		t.Skipf("pty unavailable: %v", err)
	}
	require.NoError(t, err)
}

func TestRunLaunchError(t *testing.T) {
	t.Run("missing program", func(t *testing.T) {
		err := clidrive.Run("clidrive-no-such-program --flag", []clidrive.Step{{
			Prompt: clidrive.Text("never"),
		}}, fast()...)

		e := requireError(t, err)
		assert.Equal(t, clidrive.KindLaunch, e.Kind)
		assert.ErrorIs(t, err, clidrive.ErrLaunch)
		assert.ErrorIs(t, err, exec.ErrNotFound)
		assert.Equal(t, -1, e.Details.Index)
		assert.Nil(t, e.Details.Code)
		assert.Contains(t, e.Details.Transcript.String(), "launch: ")
	})

	t.Run("empty command line", func(t *testing.T) {
		e := requireError(t, clidrive.Run("   ", nil, fast()...))
		assert.Equal(t, clidrive.KindLaunch, e.Kind)
	})
}

func TestRunInvalidOptions(t *testing.T) {
	tests := []struct {
		name  string
		steps []clidrive.Step
		opts  []clidrive.Option
	}{
		{name: "negative timeout", opts: []clidrive.Option{clidrive.WithTimeout(-time.Second)}},
		{name: "negative delta", opts: []clidrive.Option{clidrive.WithDelta(-time.Second)}},
		{name: "negative step timeout", steps: []clidrive.Step{{Timeout: -time.Second}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := clidrive.New("clidrive-no-such-program", tt.steps, tt.opts...)
			err := s.Run(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "negative")

			var e *clidrive.Error
			assert.False(t, errors.As(err, &e), "option errors are reported before launch")
			assert.Empty(t, s.Transcript())
		})
	}
}

func TestRunDebugEcho(t *testing.T) {
	t.Run("session wide", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := clidrive.Run(clidrive.Fixture("stderr"), []clidrive.Step{{
			Prompt: clidrive.Text("Proceed? "),
			Input:  []string{"y", clidrive.Enter},
			Stdout: clidrive.Text("proceeding"),
			Stderr: clidrive.Text("done"),
		}}, fast(clidrive.WithDebug(true), clidrive.WithDebugOutput(&stdout, &stderr))...)
		require.NoError(t, err)

		assert.Contains(t, stdout.String(), "Proceed? ")
		assert.Contains(t, stdout.String(), "y\r")
		assert.Contains(t, stdout.String(), "proceeding")
		assert.Contains(t, stdout.String(), "Exiting signal SIGHUP")
		assert.Contains(t, stderr.String(), "warning: disk almost full")
		assert.NotContains(t, stdout.String(), "warning")
	})

	t.Run("single step", func(t *testing.T) {
		var stdout bytes.Buffer
		err := clidrive.Run(clidrive.Fixture("phone"), []clidrive.Step{{
			Prompt: clidrive.Text("Phone number: "),
			Input:  []string{"4081234567", clidrive.Enter},
			Stdout: clidrive.Text("You entered: 4081234567"),
			Debug:  true,
		}}, fast(clidrive.WithDebugOutput(&stdout, io.Discard))...)
		require.NoError(t, err)

		assert.Contains(t, stdout.String(), "You entered: 4081234567")
		assert.NotContains(t, stdout.String(), "Exiting", "debug echo ends with the step")
	})
}

func TestRunFailureReport(t *testing.T) {
	err := clidrive.Run(clidrive.Fixture("phone"), []clidrive.Step{{
		Prompt: clidrive.Text("Email: "),
	}}, fast(clidrive.WithTimeout(100*time.Millisecond))...)

	e := requireError(t, err)
	report := e.Report()
	assert.Contains(t, report, "clidrive: step 0: timed out")
	assert.Contains(t, report, "│Phone number: │")
	assert.Contains(t, report, `stdout-expected: "Email: "`)
	assert.Contains(t, report, "process: running")
}

func TestRunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err := clidrive.RunContext(ctx, clidrive.Fixture("silent"), []clidrive.Step{{
		Prompt: clidrive.Text("never"),
	}}, fast(clidrive.WithTimeout(time.Minute))...)

	e := requireError(t, err)
	assert.Equal(t, clidrive.KindCanceled, e.Kind)
	assert.ErrorIs(t, err, clidrive.ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 10*time.Second)
	assert.Contains(t, e.Details.Transcript.String(), "------ CANCELED ")
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	prompt := clidrive.Text("ready>")
	err := clidrive.Run(clidrive.Fixture("echo"), []clidrive.Step{
		{Prompt: prompt, Input: []string{"one", clidrive.Enter}, Stdout: clidrive.Text("echo: one")},
		{Prompt: prompt, Input: []string{"two", clidrive.Enter}, Stdout: clidrive.Text("echo: three"), Timeout: 150 * time.Millisecond},
		{Prompt: prompt, Input: []string{"three", clidrive.Enter}},
	}, fast()...)

	e := requireError(t, err)
	assert.Equal(t, 1, e.Details.Index)
	assert.Equal(t, []string{"stdin: one\r", "stdin: two\r"}, stdinLines(e.Details.Transcript))
}

func TestRunManySteps(t *testing.T) {
	prompt := clidrive.Text("ready>")
	var steps []clidrive.Step
	for i := range 5 {
		word := fmt.Sprintf("word%d", i)
		steps = append(steps, clidrive.Step{
			Prompt: prompt,
			Input:  []string{word, clidrive.Enter},
			Stdout: clidrive.Text("echo: " + word),
		})
	}
	steps = append(steps, clidrive.Step{Prompt: prompt, Input: []string{"quit", clidrive.Enter}})

	s := clidrive.New(clidrive.Fixture("echo"), steps, fast()...)
	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, stdinLines(s.Transcript()), 6)
}

func TestRunTWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLIDRIVE_TRANSCRIPTS", dir)

	s := clidrive.RunT(t, clidrive.Fixture("confirm"), []clidrive.Step{{
		Prompt: clidrive.Text("Continue? "),
		Input:  []string{clidrive.Enter},
		Stdout: clidrive.Text("Continue? yes"),
	}}, fast()...)

	files, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(files[0]), "TestRunTWritesTranscript-"))

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "session: "+s.ID())
	assert.Contains(t, string(data), "stdin: \r")
	assert.Contains(t, string(data), "------ SUCCESS ")
}

// fatalTB records Fatalf calls instead of stopping the test.
type fatalTB struct {
	testing.TB
	fatals []string
}

func (f *fatalTB) Helper() {}

func (f *fatalTB) Fatalf(format string, args ...any) {
	f.fatals = append(f.fatals, fmt.Sprintf(format, args...))
}

func TestRunTFailsWithReport(t *testing.T) {
	tb := &fatalTB{TB: t}
	clidrive.RunT(tb, clidrive.Fixture("phone"), []clidrive.Step{{
		Prompt: clidrive.Text("Email: "),
	}}, fast(clidrive.WithTimeout(100*time.Millisecond))...)

	require.Len(t, tb.fatals, 1, "a failed session is reported once")
	assert.Contains(t, tb.fatals[0], "clidrive: step 0: timed out")
	assert.Contains(t, tb.fatals[0], "transcript (oldest to newest):")
}
