package engine

// ColorAssignment is who plays which side in one game of a series.
type ColorAssignment struct {
	White   string
	Black   string
	Swapped bool
}

// AssignColors gives a the white pieces on even-indexed games and swaps the
// sides on odd-indexed ones when alternate is set.
func AssignColors(a, b string, game int, alternate bool) ColorAssignment {
	if alternate && game%2 == 1 {
		return ColorAssignment{White: b, Black: a, Swapped: true}
	}
	return ColorAssignment{White: a, Black: b}
}

// Credit converts a game result into points for the series players a and b,
// undoing any colour swap.
func (c ColorAssignment) Credit(result string) (a, b float64) {
	var w, bl float64
	switch result {
	case "1-0":
		w = 1
	case "0-1":
		bl = 1
	case "1/2-1/2":
		w, bl = 0.5, 0.5
	}
	if c.Swapped {
		return bl, w
	}
	return w, bl
}
