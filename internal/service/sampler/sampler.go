// Package sampler drives periodic frame capture and face detection.
package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"faceenroll/internal/dto"
)

// ErrRunning is returned by Start when the sampler is already running.
var ErrRunning = errors.New("sampler already running")

// Outcome classifies one resolved tick.
type Outcome int

const (
	// Accepted means at least one face was found.
	Accepted Outcome = iota
	// Rejected means no face was found.
	Rejected
	// DetectFailed means the detector returned an error.
	DetectFailed
	// CaptureFailed means no frame could be read from the source.
	CaptureFailed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case DetectFailed:
		return "detect_failed"
	case CaptureFailed:
		return "capture_failed"
	}
	return "unknown"
}

// FrameSource yields the current video frame on demand.
type FrameSource interface {
	Read() (dto.Frame, error)
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, frame dto.Frame) (dto.DetectionResult, error)
}

// Tick is the resolved result of one sampling tick.
type Tick struct {
	Seq     uint64
	Outcome Outcome
	Frame   dto.Frame
	Result  dto.DetectionResult
	Err     error
}

// TickFunc receives resolved ticks. Calls never overlap.
type TickFunc func(Tick)

// Stats counts what the sampler has done since Start.
type Stats struct {
	Ticks     uint64
	Skipped   uint64
	Accepted  uint64
	Rejected  uint64
	Errors    uint64
	Discarded uint64
}

// Sampler owns the sampling timer. On each tick it reads a frame and, unless
// a detection is still outstanding, runs the detector on it in a goroutine.
type Sampler struct {
	source   FrameSource
	detector Detector
	guard    func() bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	inFlight atomic.Bool
	loopWG   sync.WaitGroup
	detectWG sync.WaitGroup
	seq      atomic.Uint64

	ticks, skipped, accepted, rejected, errs, discarded atomic.Uint64
}

// New creates a Sampler. guard, when non-nil, is consulted before a result is
// delivered; once it returns true results are discarded and the sampler stops.
func New(source FrameSource, detector Detector, guard func() bool) *Sampler {
	return &Sampler{source: source, detector: detector, guard: guard}
}

// Start begins ticking every interval and delivering resolved ticks to onTick.
func (s *Sampler) Start(interval time.Duration, onTick TickFunc) error {
	if interval <= 0 {
		return errors.New("sampling interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel

	s.loopWG.Add(1)
	go s.loop(ctx, interval, onTick)
	return nil
}

// Stop cancels the timer and any outstanding detection. It does not wait, so
// it is safe to call from inside onTick. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
}

// Running reports whether the timer is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the tick loop and outstanding detections have exited.
// Must not be called from onTick.
func (s *Sampler) Wait() {
	s.loopWG.Wait()
	s.detectWG.Wait()
}

// WaitTicker blocks until the tick loop has exited. A detection still running
// is left to finish on its own; after Stop its result is discarded.
func (s *Sampler) WaitTicker() {
	s.loopWG.Wait()
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Skipped:   s.skipped.Load(),
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Errors:    s.errs.Load(),
		Discarded: s.discarded.Load(),
	}
}

func (s *Sampler) loop(ctx context.Context, interval time.Duration, onTick TickFunc) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, onTick)
		}
	}
}

func (s *Sampler) tick(ctx context.Context, onTick TickFunc) {
	if ctx.Err() != nil {
		return
	}
	s.ticks.Add(1)

	// Single-flight: skip the whole tick while the previous detection is outstanding.
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return
	}

	seq := s.seq.Add(1)
	frame, err := s.source.Read()
	if err != nil {
		s.errs.Add(1)
		s.deliver(ctx, onTick, Tick{Seq: seq, Outcome: CaptureFailed, Err: err})
		s.inFlight.Store(false)
		return
	}

	s.detectWG.Add(1)
	go func() {
		defer s.detectWG.Done()
		defer s.inFlight.Store(false)

		result, err := s.detector.Detect(ctx, frame)
		t := Tick{Seq: seq, Frame: frame, Result: result, Err: err}
		switch {
		case err != nil:
			t.Outcome = DetectFailed
		case result.Count() > 0:
			t.Outcome = Accepted
		default:
			t.Outcome = Rejected
		}
		s.deliver(ctx, onTick, t)
	}()
}

// deliver runs the terminal checks before handing t to onTick.
func (s *Sampler) deliver(ctx context.Context, onTick TickFunc, t Tick) {
	if ctx.Err() != nil {
		s.discarded.Add(1)
		return
	}
	if s.guard != nil && s.guard() {
		s.discarded.Add(1)
		s.Stop()
		return
	}

	switch t.Outcome {
	case Accepted:
		s.accepted.Add(1)
	case Rejected:
		s.rejected.Add(1)
	case DetectFailed:
		s.errs.Add(1)
	}
	onTick(t)
}
