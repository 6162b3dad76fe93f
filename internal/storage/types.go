package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (build tag "sqlite")
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one dispatch outcome. Message text is never stored.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Outcome  string    `json:"outcome"`
	Source   string    `json:"source"`
	Type     string    `json:"type,omitempty"`
	Title    string    `json:"title,omitempty"`
	ChatID   string    `json:"chat_id,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms,omitempty"`
}
