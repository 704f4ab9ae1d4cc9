package trickle

import "errors"

var (
	// ErrEntropyUnavailable is returned when no suppression window could be
	// drawn. The interval keeps running but nothing is transmitted in it.
	ErrEntropyUnavailable = errors.New("trickle: entropy unavailable")

	// ErrTransmitFailed wraps a transport failure. Engine state is unaffected.
	ErrTransmitFailed = errors.New("trickle: transmit failed")

	// ErrStaleTimer marks a firing from a timer superseded by a newer
	// interval start. It is discarded and is not a fault.
	ErrStaleTimer = errors.New("trickle: stale timer firing")

	ErrNotStarted     = errors.New("trickle: engine not started")
	ErrAlreadyStarted = errors.New("trickle: engine already started")
)
