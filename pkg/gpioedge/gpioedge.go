// Package gpioedge is an alternate receiver transport: instead of reading
// DCD/CTS/DSR modem-status bits off a serial port, a receiver module is
// wired directly to a GPIO input line and watched for edges with gpiod.
// Both transports feed the same pulse.Edge shape into the classifier.
package gpioedge

import (
	"errors"
	"time"

	"github.com/warthog618/gpiod"

	"radioclkd/pkg/pulse"
)

// ErrInvalidPull is returned for an unrecognized pull-resistor mode.
var ErrInvalidPull = errors.New("gpioedge: invalid pull mode")

// Chip is a single GPIO chip device.
type Chip struct {
	chip *gpiod.Chip
}

// Open opens the named GPIO character device (e.g. "gpiochip0").
func Open(name string) (*Chip, error) {
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, err
	}
	return &Chip{chip: c}, nil
}

func (c *Chip) Close() error {
	return c.chip.Close()
}

// Line is a requested GPIO input line wired to a receiver module.
//
// Unlike the teacher's raspberry.Line, edges are forwarded on C as soon as
// gpiod reports them, with no debounce stage: a receiver's low pulse can be
// as short as 60ms (the classifier's narrowest symbol band), which is well
// inside the range a generic debounce timer would treat as contact bounce.
// Suppressing it here would corrupt the very widths the classifier reads.
type Line struct {
	line *gpiod.Line
	C    chan pulse.Edge

	refWall time.Time
	refMono time.Duration
	haveRef bool
}

// NewLine requests gpio as an input, delivering both-edge events on the
// returned Line's C channel.
func (c *Chip) NewLine(gpio int, pull string) (*Line, error) {
	l := &Line{C: make(chan pulse.Edge, 100)}

	handler := func(evt gpiod.LineEvent) {
		// gpiod timestamps events against CLOCK_MONOTONIC, which shares no
		// fixed offset with Go's wall clock. Anchor the first event to
		// time.Now() and derive the rest from the kernel-measured delta,
		// so interval precision between pulses is preserved even though
		// the absolute anchor carries a dispatch-latency error of a few
		// hundred microseconds (within the offset estimator's trust window).
		if !l.haveRef {
			l.refWall = time.Now()
			l.refMono = evt.Timestamp
			l.haveRef = true
		}
		level := pulse.Low
		if evt.Type == gpiod.LineEventRisingEdge {
			level = pulse.High
		}
		l.C <- pulse.Edge{Level: level, At: l.refWall.Add(evt.Timestamp - l.refMono)}
	}

	opts := []gpiod.LineReqOption{gpiod.WithEventHandler(handler), gpiod.WithBothEdges, gpiod.AsInput}
	switch pull {
	case "pullup":
		opts = append(opts, gpiod.WithPullUp)
	case "pulldown":
		opts = append(opts, gpiod.WithPullDown)
	case "none":
	default:
		return nil, ErrInvalidPull
	}

	var err error
	l.line, err = c.chip.RequestLine(gpio, opts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Close releases the line and closes C.
func (l *Line) Close() error {
	err := l.line.Close()
	close(l.C)
	return err
}
