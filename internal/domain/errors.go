package domain

import "errors"

var (
	// ErrAuthentication means the credential was rejected. Fatal to the
	// session; the core never retries it.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConnection means the endpoint was unreachable or the transport
	// dropped. Recoverable; retry policy belongs to the caller.
	ErrConnection = errors.New("connection failed")

	// ErrEmptyMessage is returned for a send with neither text nor
	// attachments. No network call is issued.
	ErrEmptyMessage = errors.New("empty message")

	// ErrNotJoined is returned for a send while the transport session is
	// not in the joined state.
	ErrNotJoined = errors.New("not joined to a room")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)
