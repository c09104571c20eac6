// Package queue provides the durable work queues behind the scheduler.
// Every backend enforces the same idempotency invariant: at most one live
// entry (queued or processing) per (queue, ownerKey, rowID).
package queue

import (
	"context"
	"time"
)

// Name identifies a logical queue.
type Name string

// The two logical queues.
const (
	Parse Name = "parse"
	Notes Name = "notes"
)

// Status of a queue entry. Terminal outcomes remove the entry instead of
// leaving a status behind; StatusError only exists between SetError and the
// post-pass removal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// Entry is one unit of work.
type Entry struct {
	ID            int64
	Queue         Name
	OwnerKey      string
	RowID         string
	Payload       string
	Status        Status
	Tries         int
	EnqueuedAt    time.Time
	NextAttemptAt time.Time
	LastError     string
}

// Store is the durable queue contract shared by all backends.
type Store interface {
	// EnqueueIfAbsent appends a queued entry unless a live entry already
	// exists for the same (queue, ownerKey, rowID). Reports whether an
	// entry was added.
	EnqueueIfAbsent(ctx context.Context, e Entry) (bool, error)

	// ListQueued returns up to max queued entries of one queue,
	// oldest-first.
	ListQueued(ctx context.Context, queue Name, max int) ([]Entry, error)

	// Remove deletes entries by id. Missing ids are ignored.
	Remove(ctx context.Context, ids []int64) error

	// SetError marks an entry failed and records a short message.
	SetError(ctx context.Context, id int64, msg string) error

	// Depth returns the number of queued entries in one queue.
	Depth(ctx context.Context, queue Name) (int, error)

	// Close releases backend resources.
	Close() error
}

// live reports whether a status counts against the idempotency gate.
func live(s Status) bool {
	return s == StatusQueued || s == StatusProcessing
}
