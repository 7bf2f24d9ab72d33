package decode

// wwvbBCDWidths are the widths of the 17 BCD segments that make up a WWVB
// frame, starting at Count-60, packed MSB-first with a 1 bit encoded as
// the long-pulse symbol 4.
var wwvbBCDWidths = [17]int{3, 1, 4, 3, 2, 1, 4, 3, 2, 1, 4, 1, 4, 11, 4, 1, 4}

// monthStartDay is the cumulative day-of-year at the start of each month in
// a non-leap year, month 0 first.
var monthStartDay = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// WWVB decodes the 60-position WWVB frame ending at f.Count-1 into a UTC
// instant. It returns ErrFraming if the marker/data positions don't match
// the expected pattern, or ErrSanity if the decoded civil fields are out
// of range.
func WWVB(f Frame) (int64, error) {
	if f.Count < 60 {
		return 0, ErrFraming
	}
	for i := 2; i < 60; i++ {
		symbol := f.Symbols[f.Count-i-1]
		if (i-1)%10 == 0 {
			if symbol != 5 {
				return 0, ErrFraming
			}
		} else if symbol != 1 && symbol != 4 {
			return 0, ErrFraming
		}
	}

	var segment [17]int
	k := f.Count - 60
	for i, width := range wwvbBCDWidths {
		var v int
		v, k = f.bitsMSB(k, width, isFour)
		segment[i] = v
	}

	year := 2000 + segment[16] + segment[14]*10
	dayOfYear := segment[12] + segment[10]*10 + segment[8]*100 - 1
	hour := segment[6] + segment[4]*10
	minute := segment[2] + segment[0]*10

	if minute > 59 || hour > 23 || dayOfYear > 365 || year > 2199 {
		return 0, ErrSanity
	}

	month := -1
	day := 0
	for i := 11; i >= 0; i-- {
		if monthStartDay[i] <= dayOfYear {
			month = i
			day = 1 + dayOfYear - monthStartDay[i]
			break
		}
	}

	if f.Symbols[f.Count-6] == 4 {
		switch {
		case dayOfYear > 59:
			day--
		case dayOfYear == 59:
			month = 1
			day = 29
		}
	}
	if month == -1 {
		return 0, ErrSanity
	}

	sec, err := utcTime(year, month+1, day, hour, minute)
	if err != nil {
		return 0, ErrSanity
	}

	// WWVB transmits the time for the minute just gone.
	return sec + 60, nil
}
