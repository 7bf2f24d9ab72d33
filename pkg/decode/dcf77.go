package decode

// dcf77BCDWidths are the widths of the 13 BCD segments that make up a
// DCF77 frame, starting at Count-38.
var dcf77BCDWidths = [13]int{4, 3, 1, 4, 2, 1, 4, 2, 3, 4, 1, 4, 4}

// dcf77ParityWidths are the widths of the three even-parity groups, also
// starting at Count-38, spanning the full 38-position frame.
var dcf77ParityWidths = [3]int{8, 7, 23}

// DCF77 decodes the 38-position DCF77 frame ending at f.Count-1 into a UTC
// instant. It returns ErrParity if any of the three parity groups is odd,
// or ErrSanity if the decoded civil fields are out of range.
func DCF77(f Frame) (int64, error) {
	// Count-42 (the DST flag, see below) is the lowest index this decoder
	// reads; a shorter frame than the classifier's count>44 trigger
	// implies is a corrupt buffer, not a valid shorter marker.
	if f.Count < 42 {
		return 0, ErrSanity
	}
	start := f.Count - 38

	k := start
	for _, width := range dcf77ParityWidths {
		sum := 0
		for j := 0; j < width; j++ {
			sum += f.Symbols[k]
			k++
		}
		if sum%2 != 0 {
			return 0, ErrParity
		}
	}

	var segment [13]int
	k = start
	for i, width := range dcf77BCDWidths {
		var v int
		v, k = f.bitsLSB(k, width, isOne)
		segment[i] = v
	}

	year := 2000 + segment[11] + segment[12]*10
	month := segment[9] + segment[10]*10 - 1
	day := segment[6] + segment[7]*10
	hour := segment[3] + segment[4]*10
	minute := segment[0] + segment[1]*10

	if minute > 59 || hour > 23 || day > 31 || month < 0 || month > 11 {
		return 0, ErrSanity
	}

	sec, err := utcTime(year, month+1, day, hour, minute)
	if err != nil {
		return 0, ErrSanity
	}

	// The symbol at Count-42 flags CEST; subtract 7200s for CEST, 3600s
	// for CET. This is four positions before the parity/BCD window
	// starts at Count-38 -- the DST flag precedes the start-of-time
	// marker in the transmitted frame.
	if f.Symbols[f.Count-42] == 1 {
		return sec - 7200, nil
	}
	return sec - 3600, nil
}
