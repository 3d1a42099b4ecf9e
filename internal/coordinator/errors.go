package coordinator

import "errors"

var (
	// ErrRoomNotFound surfaces as a user-visible "room does not exist".
	ErrRoomNotFound = errors.New("room not found")

	// ErrPermissionDenied covers share actions without canShare and quiz
	// transitions attempted by anyone but the quiz master.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStoreWrite wraps transient backend failures. Operations are safe
	// to re-issue manually; the coordinator performs no automatic retry.
	ErrStoreWrite = errors.New("store write failed")

	// ErrNotParticipant rejects operations that name a user who is not a
	// current member of the room.
	ErrNotParticipant = errors.New("not a participant of this room")

	// ErrInvalidQuizTransition rejects quiz operations that are not valid
	// in the current quiz state (answering a revealed question, starting
	// a quiz over a running one, advancing a finished quiz).
	ErrInvalidQuizTransition = errors.New("invalid quiz transition")

	// ErrCodeSpaceExhausted means repeated room code collisions; with the
	// configured keyspace this indicates a misconfiguration, not load.
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
)
