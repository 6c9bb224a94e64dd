// Package main provides the mobileqa binary entry point.
// mobileqa drives natural-language tests against an Android app
// through a plan, execute and evaluate loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

const appName = "mobileqa"

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// exitCodeError ends the process with code without printing an
// error; tests that fail are not a CLI error.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr,
				"PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]),
			)
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	err := rootCmd().ExecuteContext(ctx)
	stop()

	var exit exitCodeError
	switch {
	case errors.As(err, &exit):
		os.Exit(exit.code)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Natural-language mobile app testing",
		Long: `mobileqa runs natural-language test goals against an Android app.

Each test is driven by a loop of:
- a planner that picks the next UI action from the screen
- an executor that performs it over adb
- a supervisor that judges the step and scores progress

Results, screenshots and reports are written to the artifacts directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(runCmd(), validateCmd(), configCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s version %s (build: %s)\n",
				appName, Version, BuildTime,
			)
		},
	}
}
