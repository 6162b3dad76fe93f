// Package storage keeps an append-only audit trail of relay dispatch outcomes.
//
// Rate-limit and dedup state are deliberately not persisted; only the audit
// trail survives restarts.
package storage
