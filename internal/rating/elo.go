// Package rating implements Elo updates and the process-wide rating book.
package rating

import (
	"fmt"
	"math"
)

const (
	DefaultK      = 32
	DefaultRating = 1500
)

// Expected is the expected score of a player rated a against one rated b.
func Expected(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// Score returns the actual scores of white and black for a game result.
// The second return value is false for unfinished games ("*").
func Score(result string) (white, black float64, decided bool, err error) {
	switch result {
	case "1-0":
		return 1, 0, true, nil
	case "0-1":
		return 0, 1, true, nil
	case "1/2-1/2":
		return 0.5, 0.5, true, nil
	case "*", "":
		return 0, 0, false, nil
	default:
		return 0, 0, false, fmt.Errorf("unknown result %q", result)
	}
}

// Update returns the new ratings of white and black after result, rounded to
// the nearest integer. k <= 0 selects DefaultK. Unfinished games leave both
// ratings unchanged.
func Update(white, black int, result string, k float64) (int, int, error) {
	sw, sb, decided, err := Score(result)
	if err != nil {
		return white, black, err
	}
	if !decided {
		return white, black, nil
	}
	if k <= 0 {
		k = DefaultK
	}
	ew := Expected(float64(white), float64(black))
	eb := Expected(float64(black), float64(white))
	nw := int(math.Round(float64(white) + k*(sw-ew)))
	nb := int(math.Round(float64(black) + k*(sb-eb)))
	return nw, nb, nil
}
