package serial

import (
	"errors"
	"fmt"
	"time"
)

// readFrame reads from t one byte at a time until delim is seen and returns
// the accumulated bytes including delim.
//
// With timeout <= 0 there is no deadline: a device that never sends delim
// blocks the caller until the transport is closed. Otherwise the whole frame
// must arrive within timeout, or the partial frame is returned with
// ErrProtocolStall.
func readFrame(t Transport, delim byte, timeout time.Duration, maxSize int) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var frame []byte
	for {
		var wait time.Duration
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return frame, fmt.Errorf("%w: no delimiter after %d bytes", ErrProtocolStall, len(frame))
			}
		}

		b, err := t.ReadByteTimeout(wait)
		if errors.Is(err, ErrReadTimeout) {
			if deadline.IsZero() {
				// transport-level timeout without a frame deadline; keep waiting
				continue
			}
			return frame, fmt.Errorf("%w: no delimiter after %d bytes", ErrProtocolStall, len(frame))
		}
		if err != nil {
			return frame, err
		}

		frame = append(frame, b)
		if b == delim {
			return frame, nil
		}
		if maxSize > 0 && len(frame) >= maxSize {
			return frame, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
		}
	}
}
