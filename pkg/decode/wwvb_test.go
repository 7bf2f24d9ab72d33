package decode

import "testing"

// buildWWVBFrame returns an n-length symbol slice whose last 60 positions
// encode a WWVB frame: minute, hour and the raw transmitted day-of-year
// (1-indexed, as broadcast, before the decoder's internal -1 adjustment),
// year as (tens,ones) digits, and the leap-year flag. Marker positions and
// unused pad bits are filled to satisfy the framing check.
func buildWWVBFrame(n, minute, hour, dayOfYearTransmitted, yearTens, yearOnes int, leapFlag bool) []int {
	symbols := make([]int, n)
	start := n - 60

	for idx := n - 60; idx <= n-3; idx++ {
		symbols[idx] = 1 // valid framing filler; real fields overwrite their own offsets
	}
	for _, o := range []int{8, 18, 28, 38, 48} {
		symbols[start+o] = 5 // marker positions, every tenth second
	}

	put := func(value, width, offset int) {
		for j := 0; j < width; j++ {
			bit := (value >> (width - 1 - j)) & 1
			if bit == 1 {
				symbols[start+offset+j] = 4
			} else {
				symbols[start+offset+j] = 1
			}
		}
	}

	put(minute/10, 3, 0)
	put(minute%10, 4, 4)
	put(hour/10, 2, 11)
	put(hour%10, 4, 14)
	put(dayOfYearTransmitted/100, 2, 21)
	put((dayOfYearTransmitted/10)%10, 4, 24)
	put(dayOfYearTransmitted%10, 4, 29)
	put(yearTens, 4, 44)
	put(yearOnes, 4, 49)

	if leapFlag {
		symbols[n-6] = 4
	} else {
		symbols[n-6] = 1
	}

	return symbols
}

// TestWWVBS3 is the spec's WWVB leap-year scenario: day-of-year 60 of 2000
// with the leap flag set decodes to civil date 2000-02-29, and the
// published second is the decoded instant plus 60 (WWVB broadcasts the
// minute just gone).
func TestWWVBS3(t *testing.T) {
	const n = 70
	symbols := buildWWVBFrame(n, 0, 0, 60, 0, 0, true)

	got, err := WWVB(Frame{Symbols: symbols, Count: n})
	if err != nil {
		t.Fatalf("WWVB: %v", err)
	}
	const want = 951782460 // 2000-02-29T00:01:00Z
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestWWVBNonLeapYear(t *testing.T) {
	const n = 70
	// Day-of-year 45 of 2001 (non-leap) is 2001-02-14.
	symbols := buildWWVBFrame(n, 30, 18, 45, 0, 1, false)

	got, err := WWVB(Frame{Symbols: symbols, Count: n})
	if err != nil {
		t.Fatalf("WWVB: %v", err)
	}

	base, err := utcTime(2001, 2, 14, 18, 30)
	if err != nil {
		t.Fatalf("utcTime: %v", err)
	}
	want := base + 60
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestWWVBFramingFailure(t *testing.T) {
	const n = 70
	symbols := buildWWVBFrame(n, 0, 0, 60, 0, 0, true)
	symbols[n-60] = 2 // not a marker position, but not a valid data symbol either

	_, err := WWVB(Frame{Symbols: symbols, Count: n})
	if err != ErrFraming {
		t.Fatalf("got err %v, want ErrFraming", err)
	}
}
