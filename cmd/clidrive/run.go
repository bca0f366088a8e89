package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cboone/clidrive"
	"github.com/cboone/clidrive/internal/script"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC0000")).Bold(true)
	titleStyle = lipgloss.NewStyle().Bold(true)
	dim        = lipgloss.NewStyle().Faint(true)
)

// runFlags override script settings when set on the command line.
type runFlags struct {
	timeout    time.Duration
	delta      time.Duration
	debug      bool
	noKill     bool
	noStrip    bool
	pty        bool
	transcript string
}

func addRunFlags(fs *pflag.FlagSet, f *runFlags) {
	fs.DurationVar(&f.timeout, "timeout", 0, "default wait per prompt and response")
	fs.DurationVar(&f.delta, "delta", 0, "polling interval and pause after each input chunk")
	fs.BoolVar(&f.debug, "debug", false, "echo all process input and output")
	fs.BoolVar(&f.noKill, "no-kill", false, "leave the process running when the script ends")
	fs.BoolVar(&f.noStrip, "no-strip", false, "match against raw output including escape sequences")
	fs.BoolVar(&f.pty, "pty", false, "run the process on a pseudo-terminal")
	fs.StringVar(&f.transcript, "transcript", "", "write the session transcript to `FILE`")
}

// apply copies every flag the user set onto the script.
func (f *runFlags) apply(fs *pflag.FlagSet, sc *script.Script) {
	if fs.Changed("timeout") {
		sc.Timeout = script.Duration(f.timeout)
	}
	if fs.Changed("delta") {
		sc.Delta = script.Duration(f.delta)
	}
	if fs.Changed("debug") {
		sc.Debug = f.debug
	}
	if fs.Changed("no-kill") {
		kill := !f.noKill
		sc.KillOnExit = &kill
	}
	if fs.Changed("no-strip") {
		strip := !f.noStrip
		if sc.ControlChars == nil {
			sc.ControlChars = &script.ControlChars{}
		}
		sc.ControlChars.Strip = &strip
	}
	if fs.Changed("pty") {
		sc.PTY = f.pty
	}
}

func newRunCommand(logger *log.Logger) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Run a script against its command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScript(args[0])
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), sc)
			if err := sc.Validate(); err != nil {
				return fmt.Errorf("invalid script %s:\n%w", args[0], err)
			}
			return runScript(cmd, args[0], sc, f.transcript, logger)
		},
	}
	addRunFlags(cmd.Flags(), &f)
	return cmd
}

func runScript(cmd *cobra.Command, name string, sc *script.Script, transcriptPath string, logger *log.Logger) error {
	steps, err := sc.BuildSteps()
	if err != nil {
		return err
	}
	opts, err := sc.Options()
	if err != nil {
		return err
	}
	opts = append(opts,
		clidrive.WithLogger(logger),
		clidrive.WithDebugOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	)

	s := clidrive.New(sc.Command, steps, opts...)
	logger.Debug("running script", "script", name, "session", s.ID(), "steps", len(steps))
	runErr := s.Run(cmd.Context())

	if transcriptPath != "" {
		if err := s.Transcript().WriteFile(transcriptPath, s.Header()); err != nil {
			logger.Warn("transcript not written", "path", transcriptPath, "error", err)
		} else {
			logger.Info("transcript written", "path", transcriptPath)
		}
	}

	if runErr != nil {
		var e *clidrive.Error
		if !errors.As(runErr, &e) {
			return runErr
		}
		printFailure(cmd.ErrOrStderr(), name, e)
		return errFailed
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
		okStyle.Render("PASS"), titleStyle.Render(name), dim.Render(stepCount(len(steps))))
	return nil
}

func printFailure(w io.Writer, name string, e *clidrive.Error) {
	fmt.Fprintf(w, "%s %s %s\n", errStyle.Render("FAIL"), titleStyle.Render(name), dim.Render(e.Kind.String()))
	fmt.Fprintln(w, e.Report())
}

func newValidateCommand(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate SCRIPT",
		Short: "Check a script without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScript(args[0])
			if err != nil {
				return err
			}
			if err := sc.Validate(); err != nil {
				return fmt.Errorf("invalid script %s:\n%w", args[0], err)
			}
			logger.Debug("script valid", "script", args[0], "command", sc.Command)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				okStyle.Render("OK"), titleStyle.Render(args[0]), dim.Render(stepCount(len(sc.Steps))))
			return nil
		},
	}
}

func loadScript(path string) (*script.Script, error) {
	sc, err := script.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return sc, nil
}

func stepCount(n int) string {
	if n == 1 {
		return "(1 step)"
	}
	return fmt.Sprintf("(%d steps)", n)
}
