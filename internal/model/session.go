package model

import "time"

// Session is the journal record of one enrollment attempt. It holds counters
// and the outcome only, never image data.
type Session struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	State      string     `json:"state"`
	Quota      int        `json:"quota"`
	Accepted   int        `json:"accepted"`
	Rejected   int        `json:"rejected"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// SessionFilter narrows a journal listing.
type SessionFilter struct {
	Label string
	State string
	Limit int
}

// Setting is one entry of the durable key-value store.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
