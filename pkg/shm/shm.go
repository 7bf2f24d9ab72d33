// Package shm publishes decoded time samples to the SysV shared-memory
// segments read by ntpd's shared-memory reference clock driver. One segment
// per channel, keyed by a fixed base plus the channel's unit number.
package shm

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// baseKey is the fixed SysV IPC key ntpd's shared-memory driver expects;
// the channel unit (0, 1, 2) is added to it.
const baseKey = 0x4E545030

// LeapInSync and LeapNotInSync are the values the leap field accepts.
const (
	LeapInSync    int32 = 0
	LeapNotInSync int32 = 3
)

// Precision is accuracy reported to ntpd, log2 seconds. -10 is ~980 microseconds.
const Precision int32 = -10

// ErrAttach is returned when the shared-memory segment cannot be created or
// attached.
var ErrAttach = errors.New("shm: failed to attach shared memory segment")

// Sample is one (local timestamp, decoded timestamp, leap, precision) tuple
// ready for publication.
type Sample struct {
	Leap        int32
	Precision   int32
	ClockSec    int64
	ClockUsec   int32
	ReceiveSec  int64
	ReceiveUsec int32
}

// rawSegment mirrors ntpd's struct shmTime byte-for-byte: field order and
// width (not count) control the wire layout read by a C consumer on the
// same platform, so this must not be reordered or have fields added.
type rawSegment struct {
	Mode                 int32
	Count                int32
	ClockTimeStampSec    int64
	ClockTimeStampUSec   int32
	ReceiveTimeStampSec  int64
	ReceiveTimeStampUSec int32
	Leap                 int32
	Precision            int32
	NSamples             int32
	Valid                int32
	Reserved             [10]int32
}

// Channel is a tear-free publication target for one receiver's decoded
// samples.
type Channel struct {
	raw *rawSegment
	buf []byte
}

// Attach creates (if necessary) and attaches the shared-memory segment for
// the given channel unit (0, 1 or 2).
func Attach(unit int) (*Channel, error) {
	size := int(unsafe.Sizeof(rawSegment{}))
	id, err := unix.SysvShmGet(baseKey+unit, size, unix.IPC_CREAT|0700)
	if err != nil {
		return nil, ErrAttach
	}
	buf, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, ErrAttach
	}
	return newChannel(buf), nil
}

// newChannel views buf, which must be at least sizeof(rawSegment) and
// naturally aligned, as a Channel. Separated from Attach so the
// publication protocol can be exercised against a plain byte slice in
// tests, without real shared memory.
func newChannel(buf []byte) *Channel {
	return &Channel{raw: (*rawSegment)(unsafe.Pointer(&buf[0])), buf: buf}
}

// NewInMemory returns a Channel backed by a plain heap buffer instead of a
// real SysV segment, for tests in other packages that need something to
// Publish into without attaching real shared memory.
func NewInMemory() *Channel {
	return newChannel(make([]byte, unsafe.Sizeof(rawSegment{})))
}

// Publish writes s using the tear-free protocol: mode=1, valid=0, write
// payload, count++, valid=1. A consumer polling valid/count can detect and
// discard a torn read.
func (c *Channel) Publish(s Sample) {
	atomic.StoreInt32(&c.raw.Mode, 1)
	atomic.StoreInt32(&c.raw.Valid, 0)

	c.raw.Leap = s.Leap
	c.raw.Precision = s.Precision
	c.raw.ClockTimeStampSec = s.ClockSec
	c.raw.ClockTimeStampUSec = s.ClockUsec
	c.raw.ReceiveTimeStampSec = s.ReceiveSec
	c.raw.ReceiveTimeStampUSec = s.ReceiveUsec

	atomic.AddInt32(&c.raw.Count, 1)
	atomic.StoreInt32(&c.raw.Valid, 1)
}

// Snapshot is a plain read of the segment, used by tests and diagnostics.
// It does not check valid/count for a torn read and does not retry.
type Snapshot struct {
	Mode, Count, Valid int32
	Sample             Sample
}

func (c *Channel) Snapshot() Snapshot {
	return Snapshot{
		Mode:  atomic.LoadInt32(&c.raw.Mode),
		Count: atomic.LoadInt32(&c.raw.Count),
		Valid: atomic.LoadInt32(&c.raw.Valid),
		Sample: Sample{
			Leap:        c.raw.Leap,
			Precision:   c.raw.Precision,
			ClockSec:    c.raw.ClockTimeStampSec,
			ClockUsec:   c.raw.ClockTimeStampUSec,
			ReceiveSec:  c.raw.ReceiveTimeStampSec,
			ReceiveUsec: c.raw.ReceiveTimeStampUSec,
		},
	}
}

// Close detaches the shared-memory segment. It does not destroy it; the
// segment persists for ntpd to read until the system is rebooted or it is
// removed with ipcrm.
func (c *Channel) Close() error {
	return unix.SysvShmDetach(c.buf)
}
