// Package enrollment holds the accepted-frame accumulator of one enrollment attempt.
package enrollment

import (
	"sync"

	"faceenroll/internal/dto"
)

// DefaultQuota is the number of accepted frames that completes a session.
const DefaultQuota = 25

// WarningKind classifies the recoverable conditions a session reports.
type WarningKind string

const (
	WarningNone           WarningKind = ""
	WarningDetectionMiss  WarningKind = "detection_miss"
	WarningDetectionError WarningKind = "detection_error"
	WarningTransmission   WarningKind = "transmission"
)

// MsgFaceNotDetected is the warning shown while no face is in view.
const MsgFaceNotDetected = "Face not detected"

// Warning is the current transient warning of a session.
type Warning struct {
	Kind    WarningKind
	Message string
}

// CompletionFunc is called once when the session reaches its quota.
type CompletionFunc func(label string, frames []dto.Frame)

// Session accumulates accepted frames for one label until the quota is met.
//
// The incomplete → complete transition is latched: subscribers registered
// with OnComplete run exactly once per session (Reset re-arms the latch).
type Session struct {
	label string
	quota int

	mu        sync.Mutex
	accepted  []dto.Frame
	complete  bool
	cancelled bool
	warning   Warning
	listeners []CompletionFunc
}

// NewSession creates a session for label. A quota below 1 falls back to DefaultQuota.
func NewSession(label string, quota int) *Session {
	if quota < 1 {
		quota = DefaultQuota
	}
	return &Session{
		label:    label,
		quota:    quota,
		accepted: make([]dto.Frame, 0, quota),
	}
}

// Label returns the identity label the session was built with.
func (s *Session) Label() string { return s.label }

// Quota returns the accepted-frame target.
func (s *Session) Quota() int { return s.quota }

// OnComplete registers fn with the completion latch.
func (s *Session) OnComplete(fn CompletionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Submit appends frame while the session is open and below quota, and returns
// the resulting count. ok is false when the frame was refused. The submit
// that reaches the quota trips the completion latch.
func (s *Session) Submit(frame dto.Frame) (count int, ok bool) {
	s.mu.Lock()
	if s.complete || s.cancelled || len(s.accepted) >= s.quota {
		count = len(s.accepted)
		s.mu.Unlock()
		return count, false
	}

	s.accepted = append(s.accepted, frame)
	count = len(s.accepted)

	var fire []CompletionFunc
	var frames []dto.Frame
	if count == s.quota {
		s.complete = true
		fire = append(fire, s.listeners...)
		frames = s.framesLocked()
	}
	s.mu.Unlock()

	for _, fn := range fire {
		fn(s.label, frames)
	}
	return count, true
}

// Accepting reports whether a Submit right now would be taken.
func (s *Session) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.complete && !s.cancelled && len(s.accepted) < s.quota
}

// IsComplete reports whether the quota has been reached.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Terminal reports whether the session will take no more frames.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete || s.cancelled
}

// Count returns the number of accepted frames.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

// Frames returns a copy of the accepted frames in acceptance order.
func (s *Session) Frames() []dto.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesLocked()
}

func (s *Session) framesLocked() []dto.Frame {
	out := make([]dto.Frame, len(s.accepted))
	copy(out, s.accepted)
	return out
}

// Cancel closes the session without completing it. Later submits are refused.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports whether Cancel was called since the last Reset.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Reset clears accepted frames, warnings and the completion latch for a restart.
// Subscribers stay registered.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = s.accepted[:0]
	s.complete = false
	s.cancelled = false
	s.warning = Warning{}
}

// SetWarning records a transient warning. A cancelled session keeps the
// warning it had.
func (s *Session) SetWarning(kind WarningKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.warning = Warning{Kind: kind, Message: message}
}

// ClearWarning removes any warning unless the session is cancelled.
func (s *Session) ClearWarning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.warning = Warning{}
}

// Warning returns the current warning; Kind is WarningNone when there is none.
func (s *Session) Warning() Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// Snapshot returns the progress view of the session.
func (s *Session) Snapshot() dto.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dto.Progress{
		Label:    s.label,
		Count:    len(s.accepted),
		Quota:    s.quota,
		Complete: s.complete,
		Warning:  s.warning.Message,
	}
}
