package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"vawter.tech/stopper"
)

// Response is one framed reply from the device, or the reason there is none.
type Response struct {
	Data []byte
	Err  error
}

// Manager owns a serial Transport and serializes commands to it from any
// number of goroutines. A single worker goroutine writes each command, reads
// the reply up to the configured delimiter and publishes it. Replies come
// back in submission order; nothing else ties a reply to its command.
type Manager struct {
	cfg       Config
	transport Transport

	commands  chan []byte
	responses chan Response

	intakeMu sync.RWMutex
	stopped  bool
	stopReq  chan struct{}
	stopOnce sync.Once

	doMu     sync.Mutex
	orphaned int // responses owed to Do calls that gave up waiting

	state     atomic.Int32
	sctx      *stopper.Context
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	opener Opener
}

// Option customizes New.
type Option func(*options)

// WithOpener replaces the function used to open the transport, e.g. with a
// simulated device in tests.
func WithOpener(open Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// New opens the device described by cfg, waits cfg.SettleDelay for it to boot,
// discards stale input and starts the worker. An error means no device
// handle is held. Cancelling ctx while the worker runs has the same effect
// as Close.
func New(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, &OpError{Op: "configure", Device: cfg.Device, Err: err}
	}

	o := options{opener: OpenTransport}
	for _, opt := range opts {
		opt(&o)
	}

	t, err := o.opener(cfg)
	if err != nil {
		return nil, &OpError{Op: "open", Device: cfg.Device, Err: fmt.Errorf("%w: %w", ErrDeviceAbsent, err)}
	}

	if cfg.SettleDelay > 0 {
		timer := time.NewTimer(cfg.SettleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			t.Close()
			return nil, ctx.Err()
		}
	}
	if err := t.ResetInputBuffer(); err != nil {
		t.Close()
		return nil, &OpError{Op: "flush", Device: cfg.Device, Err: err}
	}

	m := &Manager{
		cfg:       cfg,
		transport: t,
		commands:  make(chan []byte, cfg.QueueSize),
		responses: make(chan Response, cfg.QueueSize),
		stopReq:   make(chan struct{}),
		done:      make(chan struct{}),
		sctx:      stopper.WithContext(context.WithoutCancel(ctx)),
	}
	m.sctx.Go(m.run)
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-m.done:
		}
	}()
	return m, nil
}

// Config returns the normalized configuration the Manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// State reports what the worker is doing right now.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Submit queues cmd for the worker. It blocks only while the queue is full.
// The bytes are copied, so the caller may reuse cmd.
func (m *Manager) Submit(ctx context.Context, cmd []byte) error {
	m.intakeMu.RLock()
	defer m.intakeMu.RUnlock()
	if m.stopped {
		return ErrStopped
	}

	c := make([]byte, len(cmd))
	copy(c, cmd)

	select {
	case m.commands <- c:
		return nil
	case <-m.stopReq:
		return ErrStopped
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next response in submission order, blocking until one
// is available. The returned error is the per-command failure, if any; the
// partial frame may accompany it. ErrStopped is returned once the worker
// has exited and every response has been received.
func (m *Manager) Receive(ctx context.Context) ([]byte, error) {
	select {
	case r, ok := <-m.responses:
		if !ok {
			return nil, ErrStopped
		}
		return r.Data, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits cmd and waits for its response while holding a lock, so
// concurrent Do calls each get their own reply. It only pairs correctly when
// nobody else calls Receive on the same Manager.
func (m *Manager) Do(ctx context.Context, cmd []byte) ([]byte, error) {
	m.doMu.Lock()
	defer m.doMu.Unlock()

	// Discard replies to earlier calls that timed out before they arrived.
	for m.orphaned > 0 {
		if _, err := m.Receive(ctx); isCtxErr(err) || errors.Is(err, ErrStopped) {
			return nil, err
		}
		m.orphaned--
	}

	if err := m.Submit(ctx, cmd); err != nil {
		return nil, err
	}
	resp, err := m.Receive(ctx)
	if isCtxErr(err) {
		m.orphaned++
	}
	return resp, err
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stop asks the worker to exit once every command already queued has been
// answered. Later Submit calls fail with ErrStopped. Stop is idempotent and
// does not release the device; call Close for that.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopReq)
		m.intakeMu.Lock()
		m.stopped = true
		close(m.commands)
		m.intakeMu.Unlock()
	})
}

// Wait blocks until the worker has exited.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker without draining the queue, interrupting a command
// that is mid-write or mid-read, and releases the device. It is safe to call
// more than once, and on the nil Manager returned by a failed New.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		m.sctx.Stop(0)
		if err := m.transport.Close(); err != nil {
			m.closeErr = &OpError{Op: "close", Device: m.cfg.Device, Err: err}
		}
		m.Stop()
		<-m.done
		if err := m.sctx.Wait(); err != nil && m.closeErr == nil {
			m.closeErr = err
		}
	})
	return m.closeErr
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// run is the worker loop. It is the only code that touches m.transport
// apart from Close.
func (m *Manager) run(sctx *stopper.Context) error {
	defer func() {
		// refuse new commands, then answer the ones already queued so the
		// response order still matches the submission order
		m.Stop()
		for cmd := range m.commands {
			err := &OpError{Op: "write", Device: m.cfg.Device, Err: ErrTransportClosed}
			Logf("serial %s: dropping %q, worker stopped", m.cfg.Device, cmd)
			if !m.publish(sctx, Response{Err: err}) {
				break
			}
		}
		m.setState(StateStopped)
		close(m.responses)
		close(m.done)
	}()

	for {
		m.setState(StateIdle)
		select {
		case cmd, ok := <-m.commands:
			if !ok {
				Logf("serial %s: command queue drained, worker stopped", m.cfg.Device)
				return nil
			}
			resp, fatal := m.exchange(cmd)

			m.setState(StatePublishing)
			if !m.publish(sctx, resp) {
				return nil
			}
			if fatal {
				Logf("serial %s: transport closed, worker stopped", m.cfg.Device)
				return nil
			}
		case <-sctx.Stopping():
			return nil
		}
	}
}

// publish hands resp to the response channel. It reports false if the
// Manager is closing before a receiver made room.
func (m *Manager) publish(sctx *stopper.Context, resp Response) bool {
	select {
	case m.responses <- resp:
		return true
	default:
	}
	select {
	case m.responses <- resp:
		return true
	case <-sctx.Stopping():
		return false
	}
}

// exchange writes one command and reads its framed response. It reports
// fatal when the transport is gone and the worker must stop.
func (m *Manager) exchange(cmd []byte) (Response, bool) {
	m.setState(StateSending)
	_, werr := m.transport.Write(cmd)
	if werr != nil {
		if errors.Is(werr, ErrTransportClosed) {
			return Response{Err: &OpError{Op: "write", Device: m.cfg.Device, Err: werr}}, true
		}
		// The command may have gone out partially; it counts as sent.
		Logf("serial %s: write %q failed, awaiting response anyway: %v", m.cfg.Device, cmd, werr)
	}

	m.setState(StateAwaitingResponse)
	data, rerr := readFrame(m.transport, m.cfg.Delimiter, m.cfg.ResponseTimeout, m.cfg.MaxResponseSize)
	if rerr == nil {
		return Response{Data: data}, false
	}

	fatal := errors.Is(rerr, ErrTransportClosed)
	if !fatal {
		Logf("serial %s: response to %q: %v", m.cfg.Device, cmd, rerr)
	}
	err := error(&OpError{Op: "read", Device: m.cfg.Device, Err: rerr})
	if werr != nil {
		err = errors.Join(&OpError{Op: "write", Device: m.cfg.Device, Err: werr}, err)
	}
	return Response{Data: data, Err: err}, fatal
}
