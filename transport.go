package serial

import "time"

// Transport is a byte-oriented handle to an open serial device.
//
// A Transport is owned by exactly one goroutine at a time; only Close may be
// called concurrently with the other methods, and it must unblock any
// pending Write or ReadByteTimeout.
type Transport interface {
	// Write writes p to the device. It returns ErrWriteTimeout if the device
	// does not accept the bytes within the transport's write timeout.
	Write(p []byte) (int, error)

	// ReadByteTimeout blocks until one byte arrives. A timeout <= 0 blocks
	// indefinitely; otherwise ErrReadTimeout is returned when it elapses.
	ReadByteTimeout(timeout time.Duration) (byte, error)

	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Opener opens a Transport for the given configuration. Config has already
// been normalized when the Manager calls it.
type Opener func(cfg Config) (Transport, error)

// Backend names accepted in Config.Backend.
const (
	BackendAuto   = ""
	BackendNative = "native"
	BackendBugst  = "bugst"
)

// OpenTransport opens the transport selected by cfg.Backend. The native
// backend is only available on Linux; BackendAuto prefers it there and falls
// back to go.bug.st/serial elsewhere.
func OpenTransport(cfg Config) (Transport, error) {
	switch cfg.Backend {
	case BackendBugst:
		return OpenBugst(cfg)
	case BackendNative:
		return OpenNative(cfg)
	default:
		if nativeSupported {
			return OpenNative(cfg)
		}
		return OpenBugst(cfg)
	}
}
