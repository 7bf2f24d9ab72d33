package serialport

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestStatusFromBits(t *testing.T) {
	cases := []struct {
		bits int
		want Status
	}{
		{0, Status{}},
		{unix.TIOCM_CD, Status{DCD: true}},
		{unix.TIOCM_CTS, Status{CTS: true}},
		{unix.TIOCM_DSR, Status{DSR: true}},
		{unix.TIOCM_CD | unix.TIOCM_CTS | unix.TIOCM_DSR, Status{DCD: true, CTS: true, DSR: true}},
	}
	for _, c := range cases {
		if got := statusFromBits(c.bits); got != c.want {
			t.Errorf("statusFromBits(%#x) = %+v, want %+v", c.bits, got, c.want)
		}
	}
}

func TestFakeWaitDeliversFeed(t *testing.T) {
	f := NewFake(Status{})
	f.Feed(Status{DCD: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, _, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != (Status{DCD: true}) {
		t.Errorf("got %+v, want DCD=true", got)
	}
	if cur, _ := f.Read(); cur != got {
		t.Errorf("Read() = %+v after Wait, want %+v", cur, got)
	}
}

func TestFakeWaitTimesOut(t *testing.T) {
	f := NewFake(Status{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, _, err := f.Wait(ctx); err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestFakePowerOn(t *testing.T) {
	f := NewFake(Status{})
	if f.PoweredOn {
		t.Fatal("PoweredOn true before PowerOn")
	}
	if err := f.PowerOn(); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	if !f.PoweredOn {
		t.Fatal("PoweredOn false after PowerOn")
	}
}
