package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gobug "go.bug.st/serial"
)

// BugstPort adapts a go.bug.st/serial port to Transport. It works on every
// platform that library supports, but a write cannot be bounded: go.bug.st
// writes block until the OS accepts the bytes, so Config.WriteTimeout is not
// enforced by this backend.
type BugstPort struct {
	port      gobug.Port
	closed    atomic.Bool
	closeOnce sync.Once

	readTimeout time.Duration
	timeoutSet  bool
}

// OpenBugst opens cfg.Device through go.bug.st/serial.
func OpenBugst(cfg Config) (Transport, error) {
	mode, err := cfg.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := gobug.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	return &BugstPort{port: port}, nil
}

// ListPorts returns the serial ports found on the system.
func ListPorts() ([]string, error) {
	return gobug.GetPortsList()
}

func (b *BugstPort) Write(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrTransportClosed
	}
	n, err := b.port.Write(p)
	if err != nil {
		return n, b.mapErr(err)
	}
	return n, nil
}

func (b *BugstPort) ReadByteTimeout(timeout time.Duration) (byte, error) {
	var want time.Duration = gobug.NoTimeout
	if timeout > 0 {
		want = timeout
	}
	if !b.timeoutSet || b.readTimeout != want {
		if err := b.port.SetReadTimeout(want); err != nil {
			return 0, b.mapErr(err)
		}
		b.readTimeout = want
		b.timeoutSet = true
	}

	var buf [1]byte
	for {
		if b.closed.Load() {
			return 0, ErrTransportClosed
		}
		n, err := b.port.Read(buf[:])
		if err != nil {
			return 0, b.mapErr(err)
		}
		if n == 1 {
			return buf[0], nil
		}
		if timeout > 0 {
			return 0, ErrReadTimeout
		}
	}
}

func (b *BugstPort) ResetInputBuffer() error {
	if b.closed.Load() {
		return ErrTransportClosed
	}
	return b.mapErr(b.port.ResetInputBuffer())
}

// Close closes the underlying port; later calls are no-ops.
func (b *BugstPort) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.port.Close()
	})
	return err
}

func (b *BugstPort) mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *gobug.PortError
	if errors.As(err, &pe) && pe.Code() == gobug.PortClosed {
		return ErrTransportClosed
	}
	if b.closed.Load() {
		return ErrTransportClosed
	}
	return err
}
