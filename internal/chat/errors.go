package chat

import "errors"

var (
	// ErrValidation reports a malformed or empty username, message text or payload.
	ErrValidation = errors.New("validation failed")

	// ErrSessionNotFound reports an action attempted without a prior successful login.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDelivery reports that a payload could not be queued for one connection.
	ErrDelivery = errors.New("delivery failed")

	// ErrAlreadyLoggedIn reports a second login on an active connection.
	ErrAlreadyLoggedIn = errors.New("already logged in")

	// ErrUnknownEvent reports an inbound event name the hub does not handle.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrHubClosed is returned by Hub methods once the hub has shut down.
	ErrHubClosed = errors.New("hub closed")
)
