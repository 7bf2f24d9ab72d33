package pulse

import (
	"testing"
	"time"
)

func TestOnEdgeSymbolClassification(t *testing.T) {
	cases := []struct {
		name       string
		lowMillis  int
		wantSymbol int
	}{
		{"band-a-zero", 100, 0},
		{"band-b-one", 200, 1},
		{"band-c-msf-ab", 300, 2},
		{"band-d-four", 500, 4},
		{"band-e-five", 800, 5},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// A fresh buffer starts Low, so the first real edge must be a
			// rising edge (establishing tRise) before a falling edge can
			// open a pulse that the next rising edge classifies.
			b := NewBuffer()
			at := time.Unix(1000, 0)
			at = at.Add(time.Millisecond)
			b.OnEdge(Edge{Level: High, At: at}) // establishes tRise baseline
			// The high period stays clear of the 60-150ms MSF bit-B window,
			// which would swallow the next rising edge.
			at = at.Add(800 * time.Millisecond)
			b.OnEdge(Edge{Level: Low, At: at}) // falling edge, opens the pulse
			at = at.Add(time.Duration(c.lowMillis) * time.Millisecond)
			trigger := b.OnEdge(Edge{Level: High, At: at}) // rising edge, classifies

			if trigger != None {
				t.Fatalf("unexpected trigger %v", trigger)
			}
			if b.Count != 2 {
				t.Fatalf("Count = %d, want 2", b.Count)
			}
			if got := b.Symbols[1]; got != c.wantSymbol {
				t.Errorf("Symbols[1] = %d, want %d", got, c.wantSymbol)
			}
		})
	}
}

func TestOnEdgeUnclassifiedDurationResets(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(2000, 0)
	b.OnEdge(Edge{Level: High, At: at})
	at = at.Add(50 * time.Millisecond)
	b.OnEdge(Edge{Level: Low, At: at})
	at = at.Add(5 * time.Millisecond) // 5ms: below every band
	trigger := b.OnEdge(Edge{Level: High, At: at})

	if trigger != None {
		t.Fatalf("unexpected trigger %v", trigger)
	}
	if b.Count != 1 {
		t.Errorf("Count = %d, want 1 after hard reset", b.Count)
	}
}

func TestOnEdgeMSFBitBRetrofit(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(3000, 0)
	b.OnEdge(Edge{Level: High, At: at})
	at = at.Add(200 * time.Millisecond)
	b.OnEdge(Edge{Level: Low, At: at}) // falling: opens pulse
	at = at.Add(200 * time.Millisecond)
	b.OnEdge(Edge{Level: High, At: at}) // rising: classifies symbol 1 at index 1

	if b.Symbols[1] != 1 {
		t.Fatalf("Symbols[1] = %d, want 1 before retrofit", b.Symbols[1])
	}

	// A short high period (bit-B flag window) then the retrofit fires on
	// the falling edge and the following rising edge is swallowed.
	at = at.Add(100 * time.Millisecond)
	trigger := b.OnEdge(Edge{Level: Low, At: at})
	if trigger != None {
		t.Fatalf("unexpected trigger %v on retrofit falling edge", trigger)
	}
	if b.Symbols[1] != 3 {
		t.Errorf("Symbols[1] = %d, want 3 after bit-B retrofit", b.Symbols[1])
	}

	countBefore := b.Count
	at = at.Add(10 * time.Millisecond)
	trigger = b.OnEdge(Edge{Level: High, At: at})
	if trigger != None {
		t.Fatalf("unexpected trigger %v on swallowed rising edge", trigger)
	}
	if b.Count != countBefore {
		t.Errorf("Count changed on swallowed rising edge: %d -> %d", countBefore, b.Count)
	}
}

func TestOnEdgeDCF77MarkerTrigger(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(4000, 0)
	b.OnEdge(Edge{Level: High, At: at})

	// Drive count above 44 with short band-a pulses (900ms high, 100ms low;
	// a 60-150ms high period would be taken as an MSF bit-B flag).
	for i := 0; i < 50; i++ {
		at = at.Add(900 * time.Millisecond)
		b.OnEdge(Edge{Level: Low, At: at})
		at = at.Add(100 * time.Millisecond)
		b.OnEdge(Edge{Level: High, At: at})
	}
	if b.Count <= 44 {
		t.Fatalf("Count = %d, want > 44 to exercise the marker check", b.Count)
	}

	// A long high period (missing 59th pulse) on the next falling edge
	// must trigger DCF77 decode.
	at = at.Add(1800 * time.Millisecond)
	trigger := b.OnEdge(Edge{Level: Low, At: at})
	if trigger != DCF77 {
		t.Fatalf("trigger = %v, want DCF77", trigger)
	}
}

func TestOnEdgeWWVBDoubleFiveTrigger(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(5000, 0)
	b.OnEdge(Edge{Level: High, At: at})

	// Drive count above 60 with band-a pulses (keeps frame counter at 0),
	// 900ms high so no high period falls in the MSF bit-B window.
	for i := 0; i < 65; i++ {
		at = at.Add(900 * time.Millisecond)
		b.OnEdge(Edge{Level: Low, At: at})
		at = at.Add(100 * time.Millisecond)
		b.OnEdge(Edge{Level: High, At: at})
	}

	// Two consecutive band-e (800ms) pulses should trigger WWVB.
	at = at.Add(800 * time.Millisecond)
	b.OnEdge(Edge{Level: Low, At: at})
	at = at.Add(800 * time.Millisecond)
	b.OnEdge(Edge{Level: High, At: at})

	at = at.Add(800 * time.Millisecond)
	b.OnEdge(Edge{Level: Low, At: at})
	at = at.Add(800 * time.Millisecond)
	trigger := b.OnEdge(Edge{Level: High, At: at})

	if trigger != WWVB {
		t.Fatalf("trigger = %v, want WWVB", trigger)
	}
}

func TestCountNeverExceedsBufferBound(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(6000, 0)
	b.OnEdge(Edge{Level: High, At: at})

	// 900ms high, 100ms low: each iteration adds one symbol, so Count
	// reaches bufferSize several times over.
	for i := 0; i < 300; i++ {
		at = at.Add(900 * time.Millisecond)
		b.OnEdge(Edge{Level: Low, At: at})
		at = at.Add(100 * time.Millisecond)
		b.OnEdge(Edge{Level: High, At: at})

		if b.Count < 1 || b.Count > bufferSize {
			t.Fatalf("Count = %d out of bounds [1, %d]", b.Count, bufferSize)
		}
	}
}

func TestResetClearsState(t *testing.T) {
	b := NewBuffer()
	at := time.Unix(7000, 0)
	b.OnEdge(Edge{Level: High, At: at})
	at = at.Add(200 * time.Millisecond)
	b.OnEdge(Edge{Level: Low, At: at})
	at = at.Add(200 * time.Millisecond)
	b.OnEdge(Edge{Level: High, At: at})

	b.Reset()
	if b.Count != 1 {
		t.Errorf("Count = %d, want 1 after Reset", b.Count)
	}
}
