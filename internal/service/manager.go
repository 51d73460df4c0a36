// Package service runs one face enrollment attempt: it acquires the camera
// and the collector channel, samples frames until the quota of frames with a
// face is met, asks the collector to train and releases everything.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"
	"faceenroll/internal/model"
	"faceenroll/internal/repository"
	"faceenroll/internal/service/enrollment"
	"faceenroll/internal/service/sampler"

	"github.com/google/uuid"
)

// State is the position of an attempt in the enrollment state machine.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateSampling   State = "sampling"
	StateCompleting State = "completing"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var transitions = map[State][]State{
	StateIdle:       {StateAcquiring},
	StateAcquiring:  {StateSampling, StateFailed, StateCancelled},
	StateSampling:   {StateCompleting, StateFailed, StateCancelled},
	StateCompleting: {StateDone, StateFailed},
}

// Terminal reports whether no edge leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Options configures one attempt.
type Options struct {
	Label              string
	Quota              int
	Interval           time.Duration
	Target             Target
	MaxCaptureFailures int
}

// Dependencies are the collaborators of a Manager. Sessions, Hub and
// Annotator are optional.
type Dependencies struct {
	Source    FrameSource
	Detector  sampler.Detector
	Publisher Publisher
	Sessions  repository.SessionRepository
	Hub       Broadcaster
	Annotator Annotator
}

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State)

// ProgressFunc observes progress updates.
type ProgressFunc func(dto.Progress)

type Manager struct {
	id        string
	opts      Options
	deps      Dependencies
	logger    *logger.Logger
	session   *enrollment.Session
	sampler   *sampler.Sampler
	lifecycle *Lifecycle

	mu              sync.Mutex
	state           State
	started         bool
	cancel          context.CancelFunc
	cancelRequested bool
	onTransition    []TransitionFunc
	onProgress      []ProgressFunc

	completed    chan struct{}
	completeOnce sync.Once
	lost         chan error

	// touched only from the tick callback, which never overlaps itself
	captureFailures int

	journalMu sync.Mutex
	journal   *model.Session
}

// NewManager builds an idle Manager for a single attempt.
func NewManager(opts Options, deps Dependencies, logger *logger.Logger) *Manager {
	if opts.Quota < 1 {
		opts.Quota = enrollment.DefaultQuota
	}

	m := &Manager{
		id:        uuid.NewString(),
		opts:      opts,
		deps:      deps,
		logger:    logger,
		session:   enrollment.NewSession(opts.Label, opts.Quota),
		state:     StateIdle,
		completed: make(chan struct{}),
		lost:      make(chan error, 1),
	}

	m.sampler = sampler.New(deps.Source, deps.Detector, m.session.Terminal)
	m.lifecycle = NewLifecycle(deps.Source, deps.Publisher, opts.Target, logger)
	m.lifecycle.Attach(m.sampler)

	m.session.OnComplete(func(label string, frames []dto.Frame) {
		m.sampler.Stop()
		m.logger.Info("🎯 Quota reached for %s: %d frames accepted", label, len(frames))
	})
	deps.Publisher.OnWarning(m.warnTransmission)

	return m
}

// ID is the attempt identifier used in the journal.
func (m *Manager) ID() string { return m.id }

// Session exposes the accepted-frame accumulator.
func (m *Manager) Session() *enrollment.Session { return m.session }

// OnTransition registers fn for every state change. Register before Run.
func (m *Manager) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = append(m.onTransition, fn)
}

// OnProgress registers fn for progress updates. fn may be called from
// several goroutines. Register before Run.
func (m *Manager) OnProgress(fn ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = append(m.onProgress, fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Progress returns the current progress view.
func (m *Manager) Progress() dto.Progress {
	p := m.session.Snapshot()
	p.SessionID = m.id
	p.State = string(m.State())
	return p
}

// Stats returns the sampler counters.
func (m *Manager) Stats() sampler.Stats {
	return m.sampler.Stats()
}

// Cancel aborts the attempt. Safe to call at any time and more than once.
// When it returns the session takes no more frames and a detection still
// in flight will be discarded. A session that already met its quota still
// completes.
func (m *Manager) Cancel() {
	m.session.Cancel()
	m.sampler.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRequested = true
	if m.cancel != nil {
		m.cancel()
	}
}

// Run performs the whole attempt and returns when it reaches a terminal
// state. It returns nil on done, ErrCancelled on cancellation and the cause
// otherwise.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	if m.cancelRequested {
		cancel()
	}
	m.mu.Unlock()

	defer cancel()
	defer m.lifecycle.Release()

	m.journalStart()

	if err := m.transition(StateAcquiring); err != nil {
		return err
	}
	m.logger.Info("🚀 Enrollment %s started for %q (quota %d, every %v)",
		m.id, m.opts.Label, m.opts.Quota, m.opts.Interval)

	if err := m.lifecycle.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return m.abort()
		}
		return m.fail(err)
	}

	if err := m.transition(StateSampling); err != nil {
		return err
	}
	m.notifyProgress()

	if err := m.sampler.Start(m.opts.Interval, m.onTick); err != nil {
		return m.fail(err)
	}

	select {
	case <-m.completed:
	case err := <-m.lost:
		m.session.Cancel()
		return m.fail(err)
	case <-ctx.Done():
		// Closing the session first guarantees no late completion.
		m.session.Cancel()
		if !m.session.IsComplete() {
			return m.abort()
		}
		// The tick that met the quota is still queueing its frame.
		<-m.completed
	}

	return m.complete(ctx)
}

func (m *Manager) complete(ctx context.Context) error {
	m.sampler.Stop()
	if err := m.transition(StateCompleting); err != nil {
		return err
	}

	// Cancellation no longer applies once the quota is met; the training
	// request is bounded by its own timeout instead.
	timeout := m.opts.Target.Stream.AckTimeout + m.opts.Target.Stream.DrainTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer ccancel()

	if err := m.deps.Publisher.EmitCompletion(cctx, m.opts.Label); err != nil {
		if m.opts.Target.Stream.RequireAck {
			return m.fail(fmt.Errorf("training request for %q: %w", m.opts.Label, err))
		}
		m.warnTransmission(err)
	}

	m.settle(true)
	if err := m.transition(StateDone); err != nil {
		return err
	}
	m.journalFinish(nil)
	m.notifyProgress()
	m.logger.Info("✅ %d images have been captured and sent to the server.", m.session.Count())
	return nil
}

func (m *Manager) fail(cause error) error {
	m.settle(false)
	if err := m.transition(StateFailed); err != nil {
		m.logger.Error("Dropping failure %v: %v", cause, err)
		return cause
	}
	m.journalFinish(cause)
	m.notifyProgress()
	m.logger.Error("Enrollment %s failed: %v", m.id, cause)
	return cause
}

func (m *Manager) abort() error {
	m.session.Cancel()
	m.settle(false)
	if err := m.transition(StateCancelled); err != nil {
		m.logger.Error("Dropping cancellation: %v", err)
	}
	m.journalFinish(ErrCancelled)
	m.notifyProgress()
	m.logger.Warning("Enrollment %s cancelled at %d/%d", m.id, m.session.Count(), m.opts.Quota)
	return ErrCancelled
}

// settle releases resources and waits for the tick loop to exit. Only a
// completed attempt also waits for the last detection, which has already
// resolved; otherwise an outstanding detection is left to be discarded.
func (m *Manager) settle(waitDetections bool) {
	m.lifecycle.Release()
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	if waitDetections {
		m.sampler.Wait()
	} else {
		m.sampler.WaitTicker()
	}
}

func (m *Manager) signalComplete() {
	m.completeOnce.Do(func() { close(m.completed) })
}

func (m *Manager) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	fns := append([]TransitionFunc(nil), m.onTransition...)
	m.mu.Unlock()

	m.logger.Info("🔄 Enrollment %s: %s -> %s", m.id, from, to)
	m.journalUpdate(to)
	for _, fn := range fns {
		fn(from, to)
	}
	return nil
}

func (m *Manager) onTick(t sampler.Tick) {
	if t.Outcome == sampler.CaptureFailed {
		m.captureFailures++
		m.logger.Warning("Frame capture failed (%d in a row): %v", m.captureFailures, t.Err)
		if m.opts.MaxCaptureFailures > 0 && m.captureFailures >= m.opts.MaxCaptureFailures {
			select {
			case m.lost <- fmt.Errorf("%w: %d consecutive failures, last: %v", ErrCaptureLost, m.captureFailures, t.Err):
			default:
			}
		}
		return
	}
	m.captureFailures = 0

	switch t.Outcome {
	case sampler.DetectFailed:
		m.logger.Warning("Face detection failed: %v", t.Err)
		m.session.SetWarning(enrollment.WarningDetectionError, t.Err.Error())
	case sampler.Rejected:
		m.session.SetWarning(enrollment.WarningDetectionMiss, enrollment.MsgFaceNotDetected)
	case sampler.Accepted:
		m.accept(t)
	}

	m.preview(t)
	m.notifyProgress()
}

func (m *Manager) accept(t sampler.Tick) {
	count, ok := m.session.Submit(t.Frame)
	if !ok {
		return
	}
	switch m.session.Warning().Kind {
	case enrollment.WarningDetectionMiss, enrollment.WarningDetectionError:
		m.session.ClearWarning()
	}

	// Only counted frames are sent. Run waits for the completion signal, so
	// the last frame is queued before "train".
	if err := m.deps.Publisher.EmitFrame(m.opts.Label, t.Frame); err != nil {
		m.warnTransmission(err)
	}
	m.logger.Debug("Captured Images: %d/%d", count, m.session.Quota())
	if count == m.session.Quota() {
		m.signalComplete()
	}
}

func (m *Manager) warnTransmission(err error) {
	m.session.SetWarning(enrollment.WarningTransmission, err.Error())
	m.logger.Warning("Transmission warning: %v", err)
}

func (m *Manager) notifyProgress() {
	p := m.Progress()

	m.mu.Lock()
	fns := append([]ProgressFunc(nil), m.onProgress...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}

	if m.deps.Hub == nil {
		return
	}
	msg, err := json.Marshal(dto.ViewerMessage{Type: "progress", Progress: &p})
	if err != nil {
		m.logger.Error("Failed to encode progress: %v", err)
		return
	}
	m.deps.Hub.Broadcast(msg)
}

// preview sends the annotated frame to local viewers.
func (m *Manager) preview(t sampler.Tick) {
	if m.deps.Hub == nil || len(t.Frame.Data) == 0 {
		return
	}

	frame := t.Frame
	if m.deps.Annotator != nil && t.Result.Count() > 0 {
		data, err := m.deps.Annotator.Annotate(t.Frame, t.Result)
		if err != nil {
			m.logger.Debug("Preview annotation failed: %v", err)
		} else {
			frame.Data = data
		}
	}

	msg, err := json.Marshal(dto.ViewerMessage{Type: "preview", Image: frame.DataURL(), Faces: t.Result.Count()})
	if err != nil {
		m.logger.Error("Failed to encode preview: %v", err)
		return
	}
	m.deps.Hub.Broadcast(msg)
}

func (m *Manager) journalStart() {
	if m.deps.Sessions == nil {
		return
	}
	m.journalMu.Lock()
	defer m.journalMu.Unlock()

	m.journal = &model.Session{
		ID:        m.id,
		Label:     m.opts.Label,
		State:     string(StateIdle),
		Quota:     m.opts.Quota,
		StartedAt: time.Now(),
	}
	if err := m.deps.Sessions.Insert(m.journal); err != nil {
		m.logger.Warning("Failed to record session %s: %v", m.id, err)
		m.journal = nil
	}
}

func (m *Manager) journalUpdate(state State) {
	m.journalMu.Lock()
	defer m.journalMu.Unlock()
	if m.journal == nil {
		return
	}

	st := m.sampler.Stats()
	m.journal.State = string(state)
	m.journal.Accepted = m.session.Count()
	m.journal.Rejected = int(st.Rejected)
	m.journal.Skipped = int(st.Skipped)
	if err := m.deps.Sessions.Update(m.journal); err != nil {
		m.logger.Warning("Failed to update session %s: %v", m.id, err)
	}
}

func (m *Manager) journalFinish(cause error) {
	m.journalMu.Lock()
	if m.journal == nil {
		m.journalMu.Unlock()
		return
	}
	now := time.Now()
	m.journal.FinishedAt = &now
	if cause != nil {
		m.journal.Error = cause.Error()
	}
	state := State(m.journal.State)
	m.journalMu.Unlock()

	m.journalUpdate(state)
}
