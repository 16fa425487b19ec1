package interview

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned for a backward status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists sessions, transcript entries, and reports. Implementations
// live in storage/memory and storage/postgres. Entries are written at
// per-session granularity; no row is ever mutated from two sessions, so
// implementations only need per-session write ordering.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	// UpdateSession replaces mutable session fields. The status change must
	// be a legal forward transition or ErrInvalidTransition is returned.
	UpdateSession(ctx context.Context, s Session) error

	// AppendEntry assigns entry.Sequence = current entry count for the
	// session, atomically, and persists the entry. The assigned sequence is
	// returned.
	AppendEntry(ctx context.Context, e TranscriptEntry) (int, error)
	// Entries returns all entries for a session ordered by ascending
	// sequence number, independent of insertion or wall-clock order.
	Entries(ctx context.Context, sessionID uuid.UUID) ([]TranscriptEntry, error)

	// CreateReport stores the report for a session unless one already
	// exists; the stored report is returned either way (idempotent
	// get-or-create).
	CreateReport(ctx context.Context, sessionID uuid.UUID, r Report) (Report, error)
	GetReport(ctx context.Context, sessionID uuid.UUID) (Report, bool, error)

	Close()
}
