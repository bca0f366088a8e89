// Command clidrive runs prompt/response scripts against interactive command
// line programs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// errFailed reports a script failure whose report has already been printed.
var errFailed = errors.New("script failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	logger := log.NewWithOptions(stderr, log.Options{
		Level:  log.WarnLevel,
		Prefix: "clidrive",
	})

	cmd := newRootCommand(logger)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(logger *log.Logger) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "clidrive",
		Short:         "Drive interactive command line programs through scripted prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log session lifecycle events")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	root.AddCommand(
		newRunCommand(logger),
		newValidateCommand(logger),
	)
	return root
}
