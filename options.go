package clidrive

import (
	"io"
	"os"
	"regexp"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ControlChars is a policy for removing terminal control sequences from
// accumulated output before it is matched.
type ControlChars struct {
	// Strip enables removal of every substring matching Pattern.
	Strip bool
	// Pattern recognizes control sequences. Nil means the session default.
	Pattern *regexp.Regexp
}

// AnsiEscapes recognizes ANSI and C1 escape sequences such as cursor moves,
// erases and colour changes.
var AnsiEscapes = regexp.MustCompile(`[\x{1b}\x{9b}][\[()#;?]*(?:[0-9]{1,4}(?:;[0-9]{0,4})*)?[0-9A-ORZcf-nqry=><]`)

// merge overlays override on cc. Strip always comes from the override;
// Pattern only when the override sets one.
func (cc ControlChars) merge(override *ControlChars) ControlChars {
	if override == nil {
		return cc
	}
	merged := ControlChars{Strip: override.Strip, Pattern: cc.Pattern}
	if override.Pattern != nil {
		merged.Pattern = override.Pattern
	}
	return merged
}

type options struct {
	debug        bool
	timeout      time.Duration
	delta        time.Duration
	killOnExit   bool
	controlChars ControlChars

	env    []string
	dir    string
	pty    bool
	width  int
	height int

	killSignal os.Signal
	killGrace  time.Duration

	logger      *log.Logger
	debugStdout io.Writer
	debugStderr io.Writer
}

// Option configures a Session created by New, Run or RunContext.
type Option func(*options)

// WithDebug echoes everything written to and read from the child process to
// the host's stdout and stderr.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithTimeout sets the default deadline for each prompt and each response
// wait. Steps can override it with Step.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDelta sets the polling interval, which is also the pause after each
// input chunk. Positive values under 1ms are clamped to 1ms.
func WithDelta(d time.Duration) Option {
	return func(o *options) {
		o.delta = d
	}
}

// WithKillOnExit controls whether the child process is terminated when the
// session ends, on success or failure. Defaults to true.
func WithKillOnExit(kill bool) Option {
	return func(o *options) {
		o.killOnExit = kill
	}
}

// WithControlChars sets the session-wide control-character policy. A nil
// Pattern keeps AnsiEscapes.
func WithControlChars(cc ControlChars) Option {
	return func(o *options) {
		o.controlChars = ControlChars{}.merge(&cc)
		if o.controlChars.Pattern == nil {
			o.controlChars.Pattern = AnsiEscapes
		}
	}
}

// WithEnv appends environment variables to the process environment.
// Each entry should be in "KEY=VALUE" format.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithDir sets the working directory for the process.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithPTY starts the process on a pseudo-terminal instead of pipes. All of
// its output then arrives on stdout, and the terminal echoes input back.
func WithPTY() Option {
	return func(o *options) {
		o.pty = true
	}
}

// WithSize sets the pseudo-terminal dimensions (columns x rows) used by
// WithPTY.
func WithSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithKillSignal sets the signal sent to terminate the process. Defaults to
// SIGHUP.
func WithKillSignal(sig os.Signal) Option {
	return func(o *options) {
		o.killSignal = sig
	}
}

// WithKillGrace sets how long to wait for the process to exit after the
// kill signal before it is killed outright.
func WithKillGrace(d time.Duration) Option {
	return func(o *options) {
		o.killGrace = d
	}
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDebugOutput redirects the debug echo from the host's stdout and stderr.
func WithDebugOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.debugStdout = stdout
		o.debugStderr = stderr
	}
}

const (
	defaultTimeout   = 5 * time.Second
	defaultDelta     = time.Second
	defaultWidth     = 80
	defaultHeight    = 24
	defaultKillGrace = time.Second
	minDelta         = time.Millisecond
)

func defaultOptions() options {
	return options{
		timeout:      defaultTimeout,
		delta:        defaultDelta,
		killOnExit:   true,
		controlChars: ControlChars{Strip: true, Pattern: AnsiEscapes},
		width:        defaultWidth,
		height:       defaultHeight,
		killSignal:   syscall.SIGHUP,
		killGrace:    defaultKillGrace,
		debugStdout:  os.Stdout,
		debugStderr:  os.Stderr,
	}
}

func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:  log.WarnLevel,
		Prefix: "clidrive",
	})
}
