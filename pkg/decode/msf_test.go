package decode

import "testing"

// buildMSFFrame returns an n-length symbol slice whose last 44 positions
// encode the given civil fields as a self-consistent (correct-parity) MSF
// frame, with the DST-in-effect flag set per bst.
func buildMSFFrame(n, year, month, day, dow, hour, minute int, bst bool) []int {
	symbols := make([]int, n)
	start := n - 44

	type field struct {
		value, width int
	}
	fields := [11]field{
		{(year - 2000) / 10, 4}, {(year - 2000) % 10, 4},
		{month / 10, 1}, {month % 10, 4},
		{day / 10, 2}, {day % 10, 4},
		{dow, 3},
		{hour / 10, 2}, {hour % 10, 4},
		{minute / 10, 3}, {minute % 10, 4},
	}

	k := start
	for _, f := range fields {
		for j := 0; j < f.width; j++ {
			bit := (f.value >> (f.width - 1 - j)) & 1
			symbols[k] = bit
			k++
		}
	}

	// The four B-flag positions sit past the parity/BCD block; they are
	// free variables used only to satisfy each group's required parity.
	for i, width := range msfParityWidths {
		groupStart := start + sumInts(msfParityWidths[:i])
		sum := 0
		for idx := groupStart; idx < groupStart+width; idx++ {
			sum += symbols[idx]
		}
		if sum%2 == 1 {
			symbols[n-7+i] = 0 // seed 0 keeps the group odd
		} else {
			symbols[n-7+i] = 2 // seed 1 (isB) flips the group to odd
		}
	}

	if bst {
		symbols[n-3] = 2
	} else {
		symbols[n-3] = 0
	}

	return symbols
}

func sumInts(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}

// TestMSFS2 is the spec's MSF DST scenario: "2002-03-31 02:00 BST" decodes
// to UTC 2002-03-31 01:00:00.
func TestMSFS2(t *testing.T) {
	const n = 50
	symbols := buildMSFFrame(n, 2002, 3, 31, 0, 2, 0, true)

	got, err := MSF(Frame{Symbols: symbols, Count: n})
	if err != nil {
		t.Fatalf("MSF: %v", err)
	}
	const want = 1017536400
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMSFNoDST(t *testing.T) {
	const n = 50
	symbols := buildMSFFrame(n, 2002, 12, 1, 0, 9, 15, false)

	got, err := MSF(Frame{Symbols: symbols, Count: n})
	if err != nil {
		t.Fatalf("MSF: %v", err)
	}
	want, err := utcTime(2002, 12, 1, 9, 15)
	if err != nil {
		t.Fatalf("utcTime: %v", err)
	}
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMSFParityFailure(t *testing.T) {
	const n = 50
	symbols := buildMSFFrame(n, 2002, 3, 31, 0, 2, 0, true)
	symbols[n-44] ^= 1 // flip the top bit of the year-tens field

	_, err := MSF(Frame{Symbols: symbols, Count: n})
	if err != ErrParity {
		t.Fatalf("got err %v, want ErrParity", err)
	}
}
