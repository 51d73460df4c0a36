package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"faceenroll/internal/config"
	"faceenroll/internal/logger"
	"faceenroll/internal/repository"
	"faceenroll/internal/repository/sqlite"
	"faceenroll/internal/route"
	"faceenroll/internal/service"
	"faceenroll/internal/service/ai"
	"faceenroll/internal/service/capture"
	"faceenroll/internal/service/stream"
	"faceenroll/internal/service/websocket"
)

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	settings *sqlite.SettingsRepository
	sessions *sqlite.SessionRepository
}

// NewApp opens the logger and the local database. console receives the log
// lines that also go to the level files.
func NewApp(cfg *config.Config, console io.Writer) (*App, error) {
	log, err := logger.NewLogger(cfg.LogDirectory, cfg.LogLevel, console)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &App{
		config:   cfg,
		logger:   log,
		db:       db,
		settings: sqlite.NewSettingsRepository(db),
		sessions: sqlite.NewSessionRepository(db),
	}, nil
}

func (a *App) Logger() *logger.Logger { return a.logger }

func (a *App) Settings() repository.SettingsRepository { return a.settings }

func (a *App) Sessions() repository.SessionRepository { return a.sessions }

// Enroll runs one enrollment for label against the configured camera and
// collector. onProgress may be nil.
func (a *App) Enroll(ctx context.Context, label string, onProgress service.ProgressFunc) error {
	cfg := a.config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	display := image.Pt(cfg.FrameWidth, cfg.FrameHeight)
	detector, err := ai.NewDetectorService(cfg.Detector, display, a.logger)
	if err != nil {
		return fmt.Errorf("failed to load face detector: %w", err)
	}
	defer detector.Close()

	camera := capture.NewCamera(cfg.CameraDevice, cfg.FrameWidth, cfg.FrameHeight, cfg.ImageFormat, a.logger)
	publisher := stream.NewPublisher(a.logger)

	deps := service.Dependencies{
		Source:    camera,
		Detector:  detector,
		Publisher: publisher,
		Sessions:  a.sessions,
	}

	var hub *websocket.HubService
	if cfg.StatusPort > 0 {
		hub = websocket.NewHubService(a.logger)
		deps.Hub = hub
		deps.Annotator = detector
	}

	manager := service.NewManager(service.Options{
		Label:    label,
		Quota:    cfg.Quota,
		Interval: cfg.Interval(),
		Target: service.Target{
			Device:   cfg.CameraDevice,
			Endpoint: cfg.CollectorURL,
			Stream: stream.Options{
				ConnectTimeout: cfg.ConnectTimeout,
				DrainTimeout:   cfg.DrainTimeout,
				AckTimeout:     cfg.AckTimeout,
				RequireAck:     cfg.RequireAck,
				QueueSize:      cfg.SendQueue,
			},
		},
		MaxCaptureFailures: cfg.MaxCaptureFailures,
	}, deps, a.logger)
	if onProgress != nil {
		manager.OnProgress(onProgress)
	}

	if hub != nil {
		hubCtx, stopHub := context.WithCancel(context.Background())
		defer stopHub()
		go hub.Run(hubCtx)

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.StatusPort),
			Handler:           route.SetupRoutes(manager, hub, cfg.StatusToken, a.logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status server stopped: %v", err)
			}
		}()
		a.logger.Info("📍 Status: http://localhost:%d/api/session", cfg.StatusPort)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Status server shutdown: %v", err)
			}
		}()
	}

	a.logger.Info("🤖 Detector: %s", cfg.Detector.Backend)
	a.logger.Info("📡 Collector: %s", cfg.CollectorURL)

	return manager.Run(ctx)
}

// Close releases the database and the log files.
func (a *App) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
