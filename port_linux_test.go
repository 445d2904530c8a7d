package serial

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPTY(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })
	return master, slave
}

func openNativeOn(t *testing.T, slave *os.File, mutate func(*Config)) *Port {
	t.Helper()
	cfg := Config{
		Device:    slave.Name(),
		BaudRate:  115200,
		Delimiter: '\n',
	}
	if mutate != nil {
		mutate(&cfg)
	}
	tr, err := OpenNative(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	port, ok := tr.(*Port)
	require.True(t, ok)
	return port
}

// readUntil reads from the master side until delim is seen.
func readUntil(f *os.File, delim byte) ([]byte, error) {
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return out, err
		}
		out = append(out, buf[:n]...)
		if bytes.IndexByte(out, delim) >= 0 {
			return out, nil
		}
	}
}

func TestPort_Read(t *testing.T) {
	master, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	_, err := master.Write([]byte("hello\n"))
	require.NoError(t, err)

	var got []byte
	for len(got) < len("hello\n") {
		b, err := port.ReadByteTimeout(time.Second)
		require.NoError(t, err)
		got = append(got, b)
	}
	require.Equal(t, "hello\n", string(got))
}

func TestPort_Write(t *testing.T) {
	master, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	line := "testline\r\n"
	n, err := port.Write([]byte(line))
	require.NoError(t, err)
	require.Equal(t, len(line), n)

	got, err := readUntil(master, '\n')
	require.NoError(t, err)
	require.Equal(t, line, string(got))
}

func TestPort_ReadTimeout(t *testing.T) {
	_, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	start := time.Now()
	_, err := port.ReadByteTimeout(30 * time.Millisecond)
	require.ErrorIs(t, err, ErrReadTimeout)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPort_WriteTimeout(t *testing.T) {
	// nobody reads the master side, so the pty buffer fills up
	_, slave := openPTY(t)
	port := openNativeOn(t, slave, func(c *Config) { c.WriteTimeout = 100 * time.Millisecond })

	n, err := port.Write(make([]byte, 4<<20))
	require.ErrorIs(t, err, ErrWriteTimeout)
	require.Less(t, n, 4<<20)
}

func TestPort_Killability(t *testing.T) {
	_, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	exitErr := make(chan error, 1)
	go func() {
		_, err := port.ReadByteTimeout(0)
		exitErr <- err
	}()

	// Give the goroutine a chance to block
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, port.Close())

	select {
	case err := <-exitErr:
		require.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadByteTimeout to return after Close")
	}

	require.NoError(t, port.Close())
	_, err := port.Write([]byte("x"))
	require.ErrorIs(t, err, ErrTransportClosed)
	require.ErrorIs(t, port.ResetInputBuffer(), ErrTransportClosed)
}

func TestPort_ErrorPropagation(t *testing.T) {
	master, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	_, err := port.ReadByteTimeout(100 * time.Millisecond)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrReadTimeout)
}

func TestPort_ResetInputBuffer(t *testing.T) {
	master, slave := openPTY(t)
	port := openNativeOn(t, slave, nil)

	_, err := master.Write([]byte("stale bytes"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, port.ResetInputBuffer())
	_, err = port.ReadByteTimeout(50 * time.Millisecond)
	require.ErrorIs(t, err, ErrReadTimeout)
}

func TestOpenNative_Errors(t *testing.T) {
	_, err := OpenNative(Config{Device: "/dev/serial-manager-missing"})
	require.ErrorIs(t, err, unix.ENOENT)

	_, slave := openPTY(t)
	_, err = OpenNative(Config{Device: slave.Name(), BaudRate: 12345})
	require.Error(t, err)
}

func TestNew_NativeDeviceAbsent(t *testing.T) {
	m, err := New(context.Background(), Config{
		Device:      "/dev/serial-manager-missing",
		Backend:     BackendNative,
		SettleDelay: NoSettleDelay,
	})
	require.ErrorIs(t, err, ErrDeviceAbsent)
	require.ErrorIs(t, err, unix.ENOENT)
	require.NoError(t, m.Close())
}

// A device on the master side of a pty answering Aquos-style commands.
func TestManager_NativeRoundTrip(t *testing.T) {
	master, slave := openPTY(t)

	m, err := New(context.Background(), Config{
		Device:          slave.Name(),
		BaudRate:        9600,
		Delimiter:       '\r',
		Backend:         BackendNative,
		SettleDelay:     10 * time.Millisecond,
		ResponseTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	deviceErr := make(chan error, 1)
	go func() {
		for _, reply := range []string{"1\r", "OK\r"} {
			if _, err := readUntil(master, '\r'); err != nil {
				deviceErr <- err
				return
			}
			if _, err := master.Write([]byte(reply)); err != nil {
				deviceErr <- err
				return
			}
		}
		deviceErr <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := m.Do(ctx, []byte("POWR????\r"))
	require.NoError(t, err)
	require.Equal(t, "1\r", string(resp))

	resp, err = m.Do(ctx, []byte("IAVD   1\r"))
	require.NoError(t, err)
	require.Equal(t, "OK\r", string(resp))

	require.NoError(t, <-deviceErr)
	require.NoError(t, m.Close())
}

func TestBugstPort_RoundTrip(t *testing.T) {
	master, slave := openPTY(t)

	tr, err := OpenBugst(Config{Device: slave.Name(), BaudRate: 115200})
	if err != nil {
		t.Skipf("go.bug.st/serial cannot drive a pty here: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	_, err = tr.Write([]byte("ping\n"))
	require.NoError(t, err)
	got, err := readUntil(master, '\n')
	require.NoError(t, err)
	require.Equal(t, "ping\n", string(got))

	_, err = master.Write([]byte("pong\n"))
	require.NoError(t, err)
	frame, err := readFrame(tr, '\n', time.Second, 0)
	require.NoError(t, err)
	require.Equal(t, "pong\n", string(frame))

	_, err = tr.ReadByteTimeout(30 * time.Millisecond)
	require.ErrorIs(t, err, ErrReadTimeout)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, err = tr.ReadByteTimeout(0)
	require.ErrorIs(t, err, ErrTransportClosed)
}
