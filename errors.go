package serial

import (
	"errors"
	"fmt"
)

// Errors reported by transports and the Manager. Use errors.Is to test for them;
// most are returned wrapped in an *OpError.
var (
	// ErrDeviceAbsent indicates the serial device could not be opened.
	ErrDeviceAbsent = errors.New("serial: device absent")

	// ErrWriteTimeout indicates a write did not complete within the configured write timeout.
	ErrWriteTimeout = errors.New("serial: write timeout")

	// ErrReadTimeout indicates no byte arrived within a single read's timeout.
	ErrReadTimeout = errors.New("serial: read timeout")

	// ErrTransportClosed indicates an operation on a transport after Close.
	ErrTransportClosed = errors.New("serial: transport closed")

	// ErrProtocolStall indicates the delimiter was not observed before the response deadline.
	ErrProtocolStall = errors.New("serial: protocol stall")

	// ErrFrameTooLarge indicates a response grew past MaxResponseSize without a delimiter.
	ErrFrameTooLarge = errors.New("serial: response frame too large")

	// ErrStopped indicates the Manager no longer accepts commands or has no more responses.
	ErrStopped = errors.New("serial: manager stopped")
)

// OpError records a failed serial operation and the device it was issued against.
type OpError struct {
	Op     string
	Device string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("serial %s %q: %v", e.Op, e.Device, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *OpError) Unwrap() error {
	return e.Err
}
