// Package supervisor owns the Channel state for up to three status lines,
// routes edge events into the pulse classifier, invokes the frame decoders
// on a minute-marker trigger, and publishes successful decodes while
// tracking the no-signal latch.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/womat/debug"

	"radioclkd/pkg/decode"
	"radioclkd/pkg/mqttpublish"
	"radioclkd/pkg/offset"
	"radioclkd/pkg/pulse"
	"radioclkd/pkg/serialport"
	"radioclkd/pkg/shm"
)

// noSignalThreshold and grossSkewThreshold are the §7 error-taxonomy
// boundaries: no-signal warnings latch after five quiet minutes, and a
// decoded time more than 1000s from the receive timestamp is discarded as
// gross clock skew rather than published.
const (
	noSignalThreshold  = 300 * time.Second
	grossSkewThreshold = 1000 * time.Second
)

// AttachFunc opens the shared-memory segment for a channel unit. A field so
// tests can substitute an in-memory fake instead of real shared memory.
type AttachFunc func(unit int) (*shm.Channel, error)

// Channel owns one status line's decode state.
type Channel struct {
	LineName string
	Unit     int

	buf *pulse.Buffer

	attach    AttachFunc
	segment   *shm.Channel
	telemetry *mqttpublish.Handler

	noSignalThreshold  time.Duration
	grossSkewThreshold time.Duration

	// status guards the fields Snapshot reports, since the status HTTP
	// handler reads them from a different goroutine than Run mutates
	// them from — the same concurrent-read/single-writer split the
	// teacher guards with a sync.Mutex around its DataFrame.
	status       sync.Mutex
	hasDecoded   bool
	lastDecoded  time.Time
	errorLatched bool
}

// NewChannel returns a Channel for the given status line and shared-memory
// unit (0, 1 or 2), ready to attach shared memory lazily via shm.Attach.
func NewChannel(lineName string, unit int) *Channel {
	return &Channel{
		LineName:           lineName,
		Unit:               unit,
		buf:                pulse.NewBuffer(),
		attach:             shm.Attach,
		noSignalThreshold:  noSignalThreshold,
		grossSkewThreshold: grossSkewThreshold,
	}
}

// WithTelemetry enables best-effort MQTT publication alongside shared memory.
func (c *Channel) WithTelemetry(h *mqttpublish.Handler) *Channel {
	c.telemetry = h
	return c
}

// WithThresholds overrides the §7 no-signal and gross-skew boundaries for
// this channel. A zero value leaves the corresponding default in place.
func (c *Channel) WithThresholds(noSignal, grossSkew time.Duration) *Channel {
	if noSignal > 0 {
		c.noSignalThreshold = noSignal
	}
	if grossSkew > 0 {
		c.grossSkewThreshold = grossSkew
	}
	return c
}

// Status is a read-only snapshot of a Channel's decode state, for the
// diagnostic HTTP surface.
type Status struct {
	LineName     string
	Unit         int
	HasDecoded   bool
	LastDecoded  time.Time
	ErrorLatched bool
	PulseCount   int
}

// Snapshot returns the channel's current state for diagnostics. Safe to
// call from the status web server's goroutine while Run mutates the same
// Channel from the supervisor loop, guarded the same way the teacher
// guards its concurrently-read DataFrame.
func (c *Channel) Snapshot() Status {
	c.status.Lock()
	defer c.status.Unlock()
	return Status{
		LineName:     c.LineName,
		Unit:         c.Unit,
		HasDecoded:   c.hasDecoded,
		LastDecoded:  c.lastDecoded,
		ErrorLatched: c.errorLatched,
		PulseCount:   c.buf.Count,
	}
}

// OnEdge routes one edge event through the classifier. now is the
// supervisor's unified timestamp for this wait-return; decode itself
// prefers the triggering pulse's own falling-edge timestamp (spec.md
// §4.D), since for MSF/WWVB the marker trigger fires on a rising edge and
// now would lag the actual second-mark by that pulse's low-duration.
func (c *Channel) OnEdge(e pulse.Edge, now time.Time) {
	station := c.buf.OnEdge(e)
	if station == pulse.None {
		return
	}
	c.decode(station, now)
}

// CheckNoSignal emits at most one warning per quiet period once more than
// the channel's no-signal threshold has elapsed since the last successful
// decode.
func (c *Channel) CheckNoSignal(now time.Time) {
	c.status.Lock()
	defer c.status.Unlock()
	if !c.hasDecoded || c.errorLatched {
		return
	}
	if now.Sub(c.lastDecoded) > c.noSignalThreshold {
		c.errorLatched = true
		debug.InfoLog.Printf("no valid time received in last %s for %s line", c.noSignalThreshold, c.LineName)
	}
}

// decode runs the named frame decoder against the buffered symbols and, on
// success, publishes a sample. receivedAt is the supervisor's wait-return
// timestamp for the edge that triggered this decode; it is kept for call
// symmetry with OnEdge but the clock math below deliberately uses the
// triggering pulse's own falling-edge time instead (see fallTime).
func (c *Channel) decode(station pulse.Station, receivedAt time.Time) {
	frame := decode.FrameFromBuffer(c.buf)

	var decoded int64
	var err error
	switch station {
	case pulse.DCF77:
		decoded, err = decode.DCF77(frame)
	case pulse.MSF:
		decoded, err = decode.MSF(frame)
	case pulse.WWVB:
		decoded, err = decode.WWVB(frame)
	}
	if err != nil {
		// Frame-corruption is silent: reset and wait for the next minute.
		c.buf.Reset()
		return
	}

	// fallTime is the falling edge of the most recent second-mark -- the
	// raw second-mark timestamp spec.md §4.D names as the publisher's
	// fallback, and the only correct basis for the gross-skew check. The
	// DCF77 trigger is itself that falling edge, recorded by the classifier
	// at PulseTimes[Count], so receivedAt agrees. The MSF/WWVB triggers
	// fire on a rising edge, so fallTime is the falling edge that opened
	// the triggering pulse (PulseTimes[Count-1]); receivedAt would lag the
	// second-mark by that pulse's own low-duration (up to ~850ms).
	fallTime := c.buf.PulseTimes[c.buf.Count-1]
	if station == pulse.DCF77 {
		fallTime = c.buf.PulseTimes[c.buf.Count]
	}

	if skew := fallTime.Unix() - decoded; abs64(skew) > int64(c.grossSkewThreshold/time.Second) {
		debug.ErrorLog.Printf("%s: decoded time differs from system time by more than %s, ignored",
			c.LineName, c.grossSkewThreshold)
		c.buf.Reset()
		return
	}

	if c.segment == nil {
		seg, err := c.attach(c.Unit)
		if err != nil {
			debug.ErrorLog.Printf("unable to attach shared memory for %s: %v", c.LineName, err)
			c.buf.Reset()
			return
		}
		c.segment = seg
	}

	clockSec, clockUsec := decoded, int32(0)
	if usec, err := offset.Estimate(c.buf.PulseTimes[:c.buf.Count]); err != nil {
		clockSec, clockUsec = fallTime.Unix(), int32(fallTime.Nanosecond()/1000)
	} else if usec < 0 {
		clockSec, clockUsec = decoded-1, int32(usec+1000000)
	} else {
		clockSec, clockUsec = decoded, int32(usec)
	}

	c.segment.Publish(shm.Sample{
		Leap:        shm.LeapInSync,
		Precision:   shm.Precision,
		ClockSec:    clockSec,
		ClockUsec:   clockUsec,
		ReceiveSec:  decoded,
		ReceiveUsec: 0,
	})

	if c.telemetry != nil {
		c.telemetry.C <- mqttpublish.Sample{
			Station:     stationName(station),
			Unit:        c.Unit,
			DecodedUnix: decoded,
			Leap:        shm.LeapInSync,
		}
	}

	decodedAt := time.Unix(decoded, 0).UTC()
	c.status.Lock()
	if c.errorLatched {
		logRecovery(c.LineName, decodedAt.Sub(c.lastDecoded))
	}
	c.errorLatched = false
	c.lastDecoded = decodedAt
	c.hasDecoded = true
	c.status.Unlock()

	c.buf.Reset()
}

func logRecovery(line string, gap time.Duration) {
	if gap <= 300*time.Second {
		return
	}
	if gap > time.Hour {
		debug.InfoLog.Printf("%dh %dm since previous valid time for %s line",
			int(gap.Hours()), int(gap.Minutes())%60, line)
		return
	}
	debug.InfoLog.Printf("%dm since previous valid time for %s line", int(gap.Minutes()), line)
}

func stationName(s pulse.Station) string {
	switch s {
	case pulse.DCF77:
		return "dcf77"
	case pulse.MSF:
		return "msf"
	case pulse.WWVB:
		return "wwvb"
	default:
		return "unknown"
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Supervisor owns up to three status-line Channels. Each channel gets its
// edges from either the shared serial port's modem-status bits or its own
// independently-wired GPIO line (pkg/gpioedge); both transports feed the
// same pulse.Edge shape, so dispatch and decode are transport-agnostic.
type Supervisor struct {
	Port serialport.Port

	DCD, CTS, DSR *Channel

	// gpioDCD, gpioCTS, gpioDSR carry edges for any channel configured to
	// use the GPIO transport instead of the serial port. A nil channel
	// here means that line is driven by Port instead; select on a nil
	// channel simply never fires, so Run needs no extra branching.
	gpioDCD, gpioCTS, gpioDSR <-chan pulse.Edge

	prev serialport.Status
}

// New builds a Supervisor with the conventional DCD=0, CTS=1, DSR=2 unit
// assignment.
func New(port serialport.Port) *Supervisor {
	return &Supervisor{
		Port: port,
		DCD:  NewChannel("DCD", 0),
		CTS:  NewChannel("CTS", 1),
		DSR:  NewChannel("DSR", 2),
	}
}

// WithGPIO switches one line from the serial port to an independently
// wired GPIO line, whose edges arrive on edges (see pkg/gpioedge.Line.C).
// line must be "DCD", "CTS" or "DSR".
func (s *Supervisor) WithGPIO(line string, edges <-chan pulse.Edge) *Supervisor {
	switch line {
	case "DCD":
		s.gpioDCD = edges
	case "CTS":
		s.gpioCTS = edges
	case "DSR":
		s.gpioDSR = edges
	}
	return s
}

// ErrEnvironmentFatal wraps an unrecoverable edge-wait failure, the only
// condition that should stop Run.
var ErrEnvironmentFatal = errors.New("supervisor: edge wait failed")

// noSignalPollInterval bounds how long a channel can go without a
// CheckNoSignal call when its only edge source is idle; it does not affect
// decode latency, only how promptly the 300s latch can fire.
const noSignalPollInterval = 5 * time.Second

// serialResult is one Port.Wait return, forwarded onto a channel so Run can
// select over it alongside any GPIO-wired lines.
type serialResult struct {
	status serialport.Status
	t      time.Time
	err    error
}

// Run blocks, dispatching status changes from the serial port and/or any
// GPIO-wired lines until ctx is cancelled or the serial port reports an
// environment-fatal error. This replaces the original's alarm/longjmp
// cancellation with a blocking wait that returns cleanly on ctx.Done.
func (s *Supervisor) Run(ctx context.Context) error {
	var serialEvents chan serialResult
	if s.Port != nil {
		serialEvents = make(chan serialResult)
		go s.pollSerial(ctx, serialEvents)
	}

	ticker := time.NewTicker(noSignalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case r, ok := <-serialEvents:
			if !ok {
				serialEvents = nil
				continue
			}
			if r.err != nil {
				return ErrEnvironmentFatal
			}
			s.dispatch(r.status, r.t)
			s.checkAllNoSignal(r.t)

		case e, ok := <-s.gpioDCD:
			if ok {
				s.DCD.OnEdge(e, e.At)
				s.checkAllNoSignal(e.At)
			}

		case e, ok := <-s.gpioCTS:
			if ok {
				s.CTS.OnEdge(e, e.At)
				s.checkAllNoSignal(e.At)
			}

		case e, ok := <-s.gpioDSR:
			if ok {
				s.DSR.OnEdge(e, e.At)
				s.checkAllNoSignal(e.At)
			}

		case <-ticker.C:
			s.checkAllNoSignal(time.Now())
		}
	}
}

func (s *Supervisor) checkAllNoSignal(now time.Time) {
	s.DCD.CheckNoSignal(now)
	s.CTS.CheckNoSignal(now)
	s.DSR.CheckNoSignal(now)
}

// pollSerial repeatedly waits on the serial port and forwards non-timeout
// results to out, stopping once ctx is done or the port reports a fatal
// error (one fatal result is sent, then pollSerial returns).
func (s *Supervisor) pollSerial(ctx context.Context, out chan<- serialResult) {
	for {
		status, t, err := s.Port.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, serialport.ErrTimeout) {
			continue
		}
		select {
		case out <- serialResult{status: status, t: t, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// dispatch routes the lines that actually changed since the previous
// wait-return to their Channel, all sharing the single timestamp t so
// coincident edges across lines are observed atomically. Lines switched to
// a GPIO source by WithGPIO are skipped.
func (s *Supervisor) dispatch(status serialport.Status, t time.Time) {
	if s.gpioDCD == nil && status.DCD != s.prev.DCD {
		s.DCD.OnEdge(edgeFor(status.DCD, t), t)
	}
	if s.gpioCTS == nil && status.CTS != s.prev.CTS {
		s.CTS.OnEdge(edgeFor(status.CTS, t), t)
	}
	if s.gpioDSR == nil && status.DSR != s.prev.DSR {
		s.DSR.OnEdge(edgeFor(status.DSR, t), t)
	}
	s.prev = status
}

func edgeFor(high bool, t time.Time) pulse.Edge {
	level := pulse.Low
	if high {
		level = pulse.High
	}
	return pulse.Edge{Level: level, At: t}
}
