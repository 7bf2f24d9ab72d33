// Package serialport is the contract between the channel supervisor and the
// serial device: power-feeding the receivers over DTR/RTS, reading the
// current DCD/CTS/DSR modem-status bits, and blocking until one changes.
// The daemon never reads serial data bytes.
package serialport

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by Wait when no modem-status bit changed within
// the requested window.
var ErrTimeout = errors.New("serialport: no status change within timeout")

// Status is a snapshot of the three modem-status bits the receivers drive.
type Status struct {
	DCD bool
	CTS bool
	DSR bool
}

// Port is the interface the channel supervisor depends on. Production code
// uses Linux; tests use a Fake.
type Port interface {
	// PowerOn asserts DTR and RTS so the passive receivers are powered.
	PowerOn() error
	// Read returns the current state of DCD, CTS and DSR.
	Read() (Status, error)
	// Wait blocks until any of DCD, CTS or DSR changes, or ctx is done.
	// It returns the new status and the instant the change was observed.
	Wait(ctx context.Context) (Status, time.Time, error)
	Close() error
}

// pollInterval and pollWindow implement spec.md §5's polling-mode
// alternative to TIOCMIWAIT: check every 5ms, give up after 10s.
const (
	pollInterval = 5 * time.Millisecond
	pollWindow   = 10 * time.Second
)

// Linux is a Port backed by the TIOCM* ioctls on an opened tty device.
type Linux struct {
	fd   int
	poll bool
}

// Open opens path as a serial device and wraps its file descriptor. Wait
// uses the kernel's TIOCMIWAIT primitive.
func Open(path string) (*Linux, error) {
	return open(path, false)
}

// OpenPolling is like Open but Wait polls the modem-status bits every 5ms
// instead of blocking in TIOCMIWAIT, per spec.md §5's polling-mode option.
func OpenPolling(path string) (*Linux, error) {
	return open(path, true)
}

func open(path string, poll bool) (*Linux, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NDELAY, 0)
	if err != nil {
		return nil, err
	}
	return &Linux{fd: fd, poll: poll}, nil
}

func (l *Linux) PowerOn() error {
	return unix.IoctlSetPointerInt(l.fd, unix.TIOCMBIS, unix.TIOCM_DTR|unix.TIOCM_RTS)
}

func (l *Linux) Read() (Status, error) {
	bits, err := unix.IoctlGetInt(l.fd, unix.TIOCMGET)
	if err != nil {
		return Status{}, err
	}
	return statusFromBits(bits), nil
}

// Wait blocks until a modem-status bit changes or the suspension point
// (spec.md §5) times out: either TIOCMIWAIT or 5ms polling, selected at
// Open/OpenPolling time.
func (l *Linux) Wait(ctx context.Context) (Status, time.Time, error) {
	if l.poll {
		return l.waitPolling(ctx)
	}
	return l.waitBlocking(ctx)
}

// waitBlocking uses TIOCMIWAIT, which blocks in the kernel until one of the
// given lines changes. It is cancelled by running the ioctl in a goroutine
// and racing it against ctx.Done; the ioctl itself has no timeout
// argument, so an already-expired ctx still costs one goroutine until the
// next edge.
func (l *Linux) waitBlocking(ctx context.Context) (Status, time.Time, error) {
	type result struct {
		status Status
		t      time.Time
		err    error
	}
	done := make(chan result, 1)

	go func() {
		err := unix.IoctlSetInt(l.fd, unix.TIOCMIWAIT, unix.TIOCM_CD|unix.TIOCM_CTS|unix.TIOCM_DSR)
		t := time.Now()
		if err != nil {
			done <- result{err: err}
			return
		}
		status, err := l.Read()
		done <- result{status: status, t: t, err: err}
	}()

	select {
	case <-ctx.Done():
		return Status{}, time.Time{}, ErrTimeout
	case r := <-done:
		return r.status, r.t, r.err
	}
}

// waitPolling reads the modem-status bits every pollInterval for up to
// pollWindow, returning as soon as the status differs from the value seen
// at entry, or ErrTimeout if the window or ctx elapses first.
func (l *Linux) waitPolling(ctx context.Context) (Status, time.Time, error) {
	prev, err := l.Read()
	if err != nil {
		return Status{}, time.Time{}, err
	}

	deadline := time.NewTimer(pollWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Status{}, time.Time{}, ErrTimeout
		case <-deadline.C:
			return Status{}, time.Time{}, ErrTimeout
		case t := <-ticker.C:
			cur, err := l.Read()
			if err != nil {
				return Status{}, time.Time{}, err
			}
			if cur != prev {
				return cur, t, nil
			}
		}
	}
}

func (l *Linux) Close() error {
	return unix.Close(l.fd)
}

func statusFromBits(bits int) Status {
	return Status{
		DCD: bits&unix.TIOCM_CD != 0,
		CTS: bits&unix.TIOCM_CTS != 0,
		DSR: bits&unix.TIOCM_DSR != 0,
	}
}
