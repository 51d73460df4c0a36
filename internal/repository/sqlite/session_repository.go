package sqlite

import (
	"database/sql"
	"fmt"

	"faceenroll/internal/model"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session journal.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert adds a new session record.
func (r *SessionRepository) Insert(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO sessions (id, label, state, quota, accepted, rejected, skipped, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Label, s.State, s.Quota, s.Accepted, s.Rejected, s.Skipped, s.Error, s.StartedAt, s.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing session.
func (r *SessionRepository) Update(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE sessions
		SET state = ?, accepted = ?, rejected = ?, skipped = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, s.State, s.Accepted, s.Rejected, s.Skipped, s.Error, s.FinishedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", s.ID)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, label, state, quota, accepted, rejected, skipped, error, started_at, finished_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetAll retrieves sessions, newest first, based on filter criteria.
func (r *SessionRepository) GetAll(filter *model.SessionFilter) ([]model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, label, state, quota, accepted, rejected, skipped, error, started_at, finished_at
		FROM sessions
		WHERE 1=1
	`
	args := []interface{}{}

	if filter != nil && filter.Label != "" {
		query += " AND label = ?"
		args = append(args, filter.Label)
	}

	if filter != nil && filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}

	query += " ORDER BY started_at DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	return sessions, rows.Err()
}

// DeleteAll clears the journal.
func (r *SessionRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var finished sql.NullTime
	if err := row.Scan(&s.ID, &s.Label, &s.State, &s.Quota, &s.Accepted, &s.Rejected, &s.Skipped,
		&s.Error, &s.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		s.FinishedAt = &t
	}
	return &s, nil
}
