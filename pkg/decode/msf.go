package decode

// msfBCDWidths are the widths of the 11 BCD segments that make up an MSF
// frame, starting at Count-44, packed MSB-first.
var msfBCDWidths = [11]int{4, 4, 1, 4, 2, 4, 3, 2, 4, 3, 4}

// msfParityWidths are the widths of the four odd-parity groups, running
// contiguously from Count-44.
var msfParityWidths = [4]int{8, 11, 3, 13}

// isB reports whether a symbol is the MSF bit-B flag, the band-c symbol 2.
// The falling-edge retrofit value 3 is not counted.
func isB(symbol int) bool { return symbol == 2 }

// MSF decodes the 44-position MSF frame ending at f.Count-1 into a UTC
// instant: 35 BCD positions from Count-44, the four bit-B parity seeds at
// Count-7..Count-4 and the DST flag at Count-3. It returns ErrParity if any of the four parity groups is even,
// or ErrSanity if the decoded civil fields are out of range.
func MSF(f Frame) (int64, error) {
	// The classifier's marker trigger only guarantees count>42; that is
	// one short of the 44-position frame this decoder reads.
	if f.Count < 44 {
		return 0, ErrSanity
	}
	start := f.Count - 44

	k := start
	for i, width := range msfParityWidths {
		sum := 0
		if isB(f.Symbols[f.Count-7+i]) {
			sum = 1
		}
		for j := 0; j < width; j++ {
			sum += f.Symbols[k]
			k++
		}
		if sum%2 != 1 {
			return 0, ErrParity
		}
	}

	var segment [11]int
	k = start
	for i, width := range msfBCDWidths {
		var v int
		v, k = f.bitsMSB(k, width, isOne)
		segment[i] = v
	}

	year := 2000 + segment[0]*10 + segment[1]
	month := segment[2]*10 + segment[3] - 1
	day := segment[4]*10 + segment[5]
	hour := segment[7]*10 + segment[8]
	minute := segment[9]*10 + segment[10]

	if minute > 59 || hour > 23 || day > 31 || month < 0 || month > 11 {
		return 0, ErrSanity
	}

	sec, err := utcTime(year, month+1, day, hour, minute)
	if err != nil {
		return 0, ErrSanity
	}

	if f.Symbols[f.Count-3] == 2 {
		return sec - 3600, nil
	}
	return sec, nil
}
