package store

import (
	"context"
	"errors"

	"studyhall/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Field names a top-level field of the session document.
type Field string

const (
	FieldHostID       Field = "hostId"
	FieldParticipants Field = "participants"
	FieldPermissions  Field = "permissions"
	FieldChatMessages Field = "chatMessages"
	FieldSharedNotes  Field = "sharedNotes"
	FieldQuizState    Field = "quizState"
)

type Op int

const (
	// OpSet replaces the field with Value.
	OpSet Op = iota
	// OpAppend appends Value to a sequence field.
	OpAppend
	// OpDelete removes the field entirely.
	OpDelete
)

// Mutation is one independent field-level edit. Mutations are applied
// last-write-wins per field with no cross-field transaction and no version
// check; concurrent read-modify-write callers can lose updates.
type Mutation struct {
	Field Field
	Op    Op
	Value interface{}
}

func Set(f Field, v interface{}) Mutation    { return Mutation{Field: f, Op: OpSet, Value: v} }
func Append(f Field, v interface{}) Mutation { return Mutation{Field: f, Op: OpAppend, Value: v} }
func Delete(f Field) Mutation                { return Mutation{Field: f, Op: OpDelete} }

// UnsubscribeFunc tears down a change feed.
type UnsubscribeFunc func()

// OnChangeFunc receives full-document snapshots. A nil document means the
// session was deleted; no further calls follow it.
type OnChangeFunc func(doc *models.Session)

// SessionStore is the capability surface the coordinator consumes. The
// backing store is an external document store keyed by room code with
// per-document subscribe/notify.
type SessionStore interface {
	// CreateIfAbsent persists doc under code. It returns false with no
	// error when a session with that code already exists.
	CreateIfAbsent(ctx context.Context, code string, doc *models.Session) (bool, error)

	// ReadOnce returns the current document, or ErrNotFound.
	ReadOnce(ctx context.Context, code string) (*models.Session, error)

	// UpdateFields applies each mutation independently, then notifies
	// subscribers with a fresh snapshot. Returns ErrNotFound if the
	// session does not exist.
	UpdateFields(ctx context.Context, code string, muts ...Mutation) error

	// Delete removes the session record and notifies subscribers with a
	// nil snapshot. Deleting an absent session is not an error.
	Delete(ctx context.Context, code string) error

	// Subscribe delivers the current document once, synchronously, then
	// again on every subsequent write by any client until unsubscribed.
	Subscribe(ctx context.Context, code string, onChange OnChangeFunc) (UnsubscribeFunc, error)
}
