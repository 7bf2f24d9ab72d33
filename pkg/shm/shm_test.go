package shm

import (
	"testing"
	"unsafe"
)

func newTestChannel() *Channel {
	buf := make([]byte, unsafe.Sizeof(rawSegment{}))
	return newChannel(buf)
}

func TestPublishSetsModeAndValid(t *testing.T) {
	c := newTestChannel()
	c.Publish(Sample{Leap: LeapInSync, Precision: Precision, ClockSec: 1017536340})

	snap := c.Snapshot()
	if snap.Mode != 1 {
		t.Errorf("Mode = %d, want 1", snap.Mode)
	}
	if snap.Valid != 1 {
		t.Errorf("Valid = %d, want 1", snap.Valid)
	}
	if snap.Sample.ClockSec != 1017536340 {
		t.Errorf("ClockSec = %d, want 1017536340", snap.Sample.ClockSec)
	}
}

func TestPublishIncrementsCountMonotonically(t *testing.T) {
	c := newTestChannel()
	for i := int32(1); i <= 5; i++ {
		c.Publish(Sample{ClockSec: int64(i)})
		if got := c.Snapshot().Count; got != i {
			t.Fatalf("Count after publish %d = %d, want %d", i, got, i)
		}
	}
}

func TestPublishLeavesValidSetAfterReturn(t *testing.T) {
	// Publish always returns with valid=1; a consumer that reads after
	// Publish has returned never observes the valid=0 window.
	c := newTestChannel()
	for i := 0; i < 10; i++ {
		c.Publish(Sample{ClockSec: int64(i)})
		if c.Snapshot().Valid != 1 {
			t.Fatalf("iteration %d: Valid != 1 after Publish returned", i)
		}
	}
}

func TestPublishOverwritesPreviousPayload(t *testing.T) {
	c := newTestChannel()
	c.Publish(Sample{Leap: LeapNotInSync, ClockSec: 1, ReceiveSec: 2})
	c.Publish(Sample{Leap: LeapInSync, ClockSec: 100, ReceiveSec: 200})

	snap := c.Snapshot()
	if snap.Sample.Leap != LeapInSync {
		t.Errorf("Leap = %d, want %d", snap.Sample.Leap, LeapInSync)
	}
	if snap.Sample.ClockSec != 100 || snap.Sample.ReceiveSec != 200 {
		t.Errorf("stale payload fields survived: %+v", snap.Sample)
	}
}
