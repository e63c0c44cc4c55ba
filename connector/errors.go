package connector

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called on a running
	// connector.
	ErrAlreadyStarted = errors.New("connector already started")

	// ErrStreamClosed indicates the event stream ended from the server side.
	ErrStreamClosed = errors.New("event stream closed")
)
