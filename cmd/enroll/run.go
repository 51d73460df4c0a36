package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"faceenroll/internal/dto"
	"faceenroll/internal/service"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runOptions struct {
	label      string
	collector  string
	quota      int
	intervalMs int
	device     int
	backend    string
	requireAck bool
	statusPort int
	quiet      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one enrollment session",
		Long: `Opens the camera, samples a frame every interval, keeps the frames in which a
face is detected and streams each one to the collector. When the quota is
reached the collector is asked to train on the label and the camera is released.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRunFlags(cmd, &opts)
			return runEnroll(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.label, "label", "l", "", "identity label (default: ENROLL_LABEL, then the stored label)")
	f.StringVar(&opts.collector, "collector", "", "collector URL (default: COLLECTOR_URL)")
	f.IntVarP(&opts.quota, "quota", "n", 0, "accepted frames needed (default: QUOTA)")
	f.IntVar(&opts.intervalMs, "interval", 0, "sampling interval in milliseconds (default: INTERVAL_MS)")
	f.IntVar(&opts.device, "device", 0, "camera device index (default: CAMERA_DEVICE)")
	f.StringVar(&opts.backend, "detector", "", "face detector backend: cascade or dnn (default: DETECTOR_BACKEND)")
	f.BoolVar(&opts.requireAck, "require-ack", false, "fail unless the collector acknowledges the training request")
	f.IntVar(&opts.statusPort, "status-port", 0, "serve local status and preview on this port (default: STATUS_PORT)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not draw the progress bar")
	return cmd
}

// applyRunFlags overrides the loaded configuration with the flags the user set.
func applyRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	if f.Changed("collector") {
		cfg.CollectorURL = opts.collector
	}
	if f.Changed("quota") {
		cfg.Quota = opts.quota
	}
	if f.Changed("interval") {
		cfg.IntervalMs = opts.intervalMs
	}
	if f.Changed("device") {
		cfg.CameraDevice = opts.device
	}
	if f.Changed("detector") {
		cfg.Detector.Backend = opts.backend
	}
	if f.Changed("require-ack") {
		cfg.RequireAck = opts.requireAck
	}
	if f.Changed("status-port") {
		cfg.StatusPort = opts.statusPort
	}
}

func runEnroll(cmd *cobra.Command, opts runOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	// The label is resolved once, before the session exists.
	label, err := service.ResolveLabel(application.Settings(), opts.label, cfg.Label)
	if err != nil {
		return err
	}

	var onProgress service.ProgressFunc
	var bar *progressbar.ProgressBar
	if !opts.quiet {
		bar = progressbar.NewOptions(cfg.Quota,
			progressbar.OptionSetDescription("📸 Captured Images"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		onProgress = progressReporter(bar)
	}

	fmt.Fprintf(os.Stderr, "Enrolling %q: look at the camera\n", label)
	err = application.Enroll(cmd.Context(), label, onProgress)
	if bar != nil {
		bar.Finish()
	}

	if errors.Is(err, service.ErrCancelled) {
		return fmt.Errorf("%w: no training request was sent", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("✅ %d images have been captured and sent to the server.\n", cfg.Quota)
	return nil
}

// progressReporter mirrors "Captured Images: n/quota" and the current warning
// on the bar. Updates may arrive from several goroutines.
func progressReporter(bar *progressbar.ProgressBar) service.ProgressFunc {
	var mu sync.Mutex
	lastWarning := ""
	return func(p dto.Progress) {
		mu.Lock()
		defer mu.Unlock()

		bar.Set(p.Count)
		if p.Warning != lastWarning {
			desc := "📸 Captured Images"
			if p.Warning != "" {
				desc = "⚠️  " + p.Warning
			}
			bar.Describe(desc)
			lastWarning = p.Warning
		}
	}
}
