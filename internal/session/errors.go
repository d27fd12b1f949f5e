package session

import "errors"

var (
	// ErrRoomUnavailable means the room is evicting or closed; the caller
	// may create a fresh room by joining again, it is not retried here.
	ErrRoomUnavailable = errors.New("room unavailable")

	// ErrStaleClient means a submission's base revision predates the oldest
	// retained log entry. Recoverable: the client refetches the snapshot.
	ErrStaleClient = errors.New("stale client state")

	// ErrInvalidOp rejects a malformed op before any mutation.
	ErrInvalidOp = errors.New("invalid op")

	// ErrNotMember rejects operations from sessions the room does not know.
	ErrNotMember = errors.New("session is not a room member")
)
