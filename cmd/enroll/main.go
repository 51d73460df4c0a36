package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"faceenroll/internal/app"
	"faceenroll/internal/config"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "enroll",
	Short:         "Capture face images from the local camera and stream them to the recognition collector",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
}

// openApp builds the application for commands that need the database.
// Log lines reach the console only with --verbose.
func openApp() (*app.App, error) {
	var console io.Writer = io.Discard
	if verbose {
		console = os.Stderr
	}
	return app.NewApp(cfg, console)
}

func main() {
	// Ctrl+C (SIGINT) or SIGTERM cancels the running enrollment.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror log output to stderr")
	rootCmd.AddCommand(newRunCmd(), newLabelCmd(), newSessionsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		stop()
		os.Exit(1)
	}
}
