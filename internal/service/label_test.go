package service

import (
	"errors"
	"testing"

	"faceenroll/internal/model"
)

type memSettings struct {
	values map[string]string
	err    error
}

func (m *memSettings) Get(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memSettings) Delete(key string) error {
	delete(m.values, key)
	return nil
}

func (m *memSettings) GetAll() ([]model.Setting, error) { return nil, nil }

func TestResolveLabel(t *testing.T) {
	stored := &memSettings{values: map[string]string{"name": "stored-user"}}
	empty := &memSettings{values: map[string]string{}}

	tests := []struct {
		name       string
		settings   *memSettings
		candidates []string
		want       string
		wantErr    error
	}{
		{"flag wins", stored, []string{"flag-user", "env-user"}, "flag-user", nil},
		{"env when flag blank", stored, []string{"  ", "env-user"}, "env-user", nil},
		{"stored fallback", stored, []string{"", ""}, "stored-user", nil},
		{"nothing anywhere", empty, []string{""}, "", ErrNoLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveLabel(tt.settings, tt.candidates...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveLabel_NilSettings(t *testing.T) {
	if _, err := ResolveLabel(nil); !errors.Is(err, ErrNoLabel) {
		t.Errorf("Expected ErrNoLabel, got %v", err)
	}
}

func TestResolveLabel_StoreError(t *testing.T) {
	broken := &memSettings{err: errors.New("database is locked")}
	if _, err := ResolveLabel(broken); err == nil || errors.Is(err, ErrNoLabel) {
		t.Errorf("Expected store error, got %v", err)
	}
}
