package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const nativeSupported = true

// Port is a raw-mode Linux serial port driven directly through termios and
// poll(2). Close may be called from any goroutine and wakes a blocked
// Write or ReadByteTimeout through a self-pipe.
type Port struct {
	fd        int
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
	done      chan struct{}
	closeOnce sync.Once
	config    Config

	buf     [256]byte
	pending []byte // bytes read from fd but not yet returned by ReadByteTimeout
}

// OpenNative opens cfg.Device in raw mode with the configured line settings.
func OpenNative(cfg Config) (Transport, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	baud, ok := baudToUnix(cfg.BaudRate)
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	if err := configureTermios(fd, cfg, baud); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
		done:   make(chan struct{}),
		config: cfg,
	}, nil
}

func configureTermios(fd int, cfg Config, baud uint32) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= unix.CREAD | unix.CLOCAL

	switch cfg.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}
	switch cfg.Parity {
	case "E":
		termios.Cflag |= unix.PARENB
	case "O":
		termios.Cflag |= unix.PARENB | unix.PARODD
	}
	if cfg.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Write writes all of p, waiting for the device to drain its output queue
// when it pushes back. It gives up with ErrWriteTimeout once the configured
// write timeout has elapsed.
func (s *Port) Write(p []byte) (int, error) {
	deadline := time.Now().Add(s.config.WriteTimeout)
	written := 0
	for len(p) > 0 {
		if s.isClosed() {
			return written, ErrTransportClosed
		}
		n, err := unix.Write(s.fd, p)
		if n > 0 {
			written += n
			p = p[n:]
			continue
		}
		switch {
		case errors.Is(err, unix.EINTR):
		case err == nil, errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return written, ErrWriteTimeout
			}
			ready, err := s.wait(unix.POLLOUT, remaining)
			if err != nil {
				return written, err
			}
			if !ready {
				return written, ErrWriteTimeout
			}
		default:
			return written, err
		}
	}
	return written, nil
}

// ReadByteTimeout returns the next received byte. Reads from the device are
// batched; the remainder is handed out on subsequent calls.
func (s *Port) ReadByteTimeout(timeout time.Duration) (byte, error) {
	if len(s.pending) > 0 {
		b := s.pending[0]
		s.pending = s.pending[1:]
		return b, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if s.isClosed() {
			return 0, ErrTransportClosed
		}
		n, err := unix.Read(s.fd, s.buf[:])
		if n > 0 {
			s.pending = s.buf[1:n]
			return s.buf[0], nil
		}
		switch {
		case err == nil:
			// zero-length read: the other end hung up
			return 0, io.EOF
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			wait := time.Duration(-1)
			if !deadline.IsZero() {
				wait = time.Until(deadline)
				if wait <= 0 {
					return 0, ErrReadTimeout
				}
			}
			ready, err := s.wait(unix.POLLIN, wait)
			if err != nil {
				return 0, err
			}
			if !ready {
				return 0, ErrReadTimeout
			}
		default:
			return 0, err
		}
	}
}

// wait polls the device for events alongside the self-pipe. A negative
// timeout waits forever. It reports false when the timeout elapsed.
func (s *Port) wait(events int16, timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		// round up so sub-millisecond remainders still wait
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	for {
		pfd := []unix.PollFd{
			{Fd: int32(s.fd), Events: events},
			{Fd: int32(s.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		// Check killability
		select {
		case <-s.done:
			return false, ErrTransportClosed
		default:
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return false, ErrTransportClosed
		}
		if n == 0 {
			return false, nil
		}
		// POLLHUP/POLLERR are surfaced by the following read or write
		return true, nil
	}
}

// ResetInputBuffer discards everything received but not yet read.
func (s *Port) ResetInputBuffer() error {
	if s.isClosed() {
		return ErrTransportClosed
	}
	s.pending = nil
	if err := unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

func (s *Port) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close closes the serial port and unblocks any pending Write or ReadByteTimeout.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *Port) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// Wake up poll using self-pipe
		unix.Write(s.pipeW, []byte{1})
		err = unix.Close(s.fd)
		unix.Close(s.pipeR)
		unix.Close(s.pipeW)
	})
	return err
}

func baudToUnix(baud int) (uint32, bool) {
	switch baud {
	case 1200:
		return unix.B1200, true
	case 2400:
		return unix.B2400, true
	case 4800:
		return unix.B4800, true
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}
