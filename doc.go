// Package serial shares one serial device between many goroutines using a
// command/response protocol.
//
// A Manager owns the device. A single worker goroutine takes commands from a
// queue, writes each one, reads the reply up to a delimiter byte (inclusive)
// and queues the reply for Receive. Commands are never pipelined: the next
// write starts only after the previous reply has been read.
//
// Features:
//   - Raw termios + poll(2) transport on Linux with write and read timeouts
//   - go.bug.st/serial transport for other platforms
//   - Stale input discarded after a configurable settle delay on open
//   - Graceful Stop (drains the queue) and hard Close (interrupts I/O)
//   - Optional response deadline reporting ErrProtocolStall
//
// Replies carry no identifier. They come back in the order commands were
// submitted, so a goroutine that needs its own reply must hold a lock across
// Submit and Receive; Do does exactly that.
//
// With ResponseTimeout left at zero a device that never sends the delimiter
// blocks the worker, and every Receive after it, until Close.
//
// Example usage:
//
//	cfg := serial.DefaultConfig("/dev/ttyUSB0")
//	cfg.BaudRate = 9600
//	cfg.Delimiter = '\r'
//	cfg.ResponseTimeout = time.Second
//
//	m, err := serial.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	resp, err := m.Do(ctx, []byte("POWR????\r"))
//	if err != nil {
//	    log.Println("command failed:", err)
//	}
//	fmt.Printf("%q\n", resp)
package serial
