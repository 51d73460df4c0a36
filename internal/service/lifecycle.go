package service

import (
	"context"
	"sync"

	"faceenroll/internal/logger"
	"faceenroll/internal/service/stream"
)

// Target says which camera to open and which collector to connect to.
type Target struct {
	Device   int
	Endpoint string
	Stream   stream.Options
}

// Lifecycle acquires the camera and the collector channel and releases them
// exactly once, in reverse dependency order.
type Lifecycle struct {
	source    FrameSource
	publisher Publisher
	target    Target
	logger    *logger.Logger

	mu          sync.Mutex
	sampler     Stopper
	sourceOpen  bool
	connected   bool
	releaseOnce sync.Once
	released    bool
}

func NewLifecycle(source FrameSource, publisher Publisher, target Target, logger *logger.Logger) *Lifecycle {
	return &Lifecycle{
		source:    source,
		publisher: publisher,
		target:    target,
		logger:    logger,
	}
}

// Attach registers the sampler so Release stops it before anything else.
func (l *Lifecycle) Attach(s Stopper) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sampler = s
}

// Acquire opens the camera and then connects to the collector. If the
// connection fails the camera is closed again.
func (l *Lifecycle) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.source.Open(ctx); err != nil {
		return &AcquisitionError{Device: l.target.Device, Err: err}
	}
	l.sourceOpen = true
	l.logger.Info("📷 Camera %d opened", l.target.Device)

	if err := l.publisher.Connect(ctx, l.target.Endpoint, l.target.Stream); err != nil {
		l.closeSourceLocked()
		return &ConnectionError{Endpoint: l.target.Endpoint, Err: err}
	}
	l.connected = true
	return nil
}

// Release stops the sampler, disconnects and closes the camera. Only the
// first call does anything.
func (l *Lifecycle) Release() {
	l.releaseOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = true

		if l.sampler != nil {
			l.sampler.Stop()
		}
		if l.connected {
			l.publisher.Disconnect()
			l.connected = false
		}
		l.closeSourceLocked()
		l.logger.Info("🧹 Resources released")
	})
}

// Released reports whether Release has run.
func (l *Lifecycle) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

func (l *Lifecycle) closeSourceLocked() {
	if !l.sourceOpen {
		return
	}
	if err := l.source.Close(); err != nil {
		l.logger.Warning("Failed to close camera: %v", err)
	}
	l.sourceOpen = false
}
