package service

import (
	"errors"
	"fmt"
	"strings"

	"faceenroll/internal/repository"
)

// ErrNoLabel is returned when no identity label is available from any source.
var ErrNoLabel = errors.New("no enrollment label: pass --label, set ENROLL_LABEL or run 'enroll label set'")

// ResolveLabel returns the first non-blank candidate, falling back to the
// label stored under repository.LabelKey. settings may be nil.
func ResolveLabel(settings repository.SettingsRepository, candidates ...string) (string, error) {
	for _, c := range candidates {
		if label := strings.TrimSpace(c); label != "" {
			return label, nil
		}
	}
	if settings == nil {
		return "", ErrNoLabel
	}

	stored, ok, err := settings.Get(repository.LabelKey)
	if err != nil {
		return "", fmt.Errorf("reading stored label: %w", err)
	}
	if label := strings.TrimSpace(stored); ok && label != "" {
		return label, nil
	}
	return "", ErrNoLabel
}
