// Package book turns opening labels such as "1. e4 e5 2. Nf3" into playable
// move sequences.
package book

import (
	"strings"

	"github.com/notnil/chess"
)

var defaults = []string{"1. e4", "1. d4", "1. c4", "1. Nf3"}

// Defaults returns the built-in opening rotation.
func Defaults() []string {
	return append([]string(nil), defaults...)
}

// Pick returns the opening for game i when cycling through openings.
// An empty list yields no opening.
func Pick(openings []string, i int) string {
	if len(openings) == 0 || i < 0 {
		return ""
	}
	return openings[i%len(openings)]
}

// Parse splits a label into SAN tokens, dropping move numbers, ellipses
// and result markers.
func Parse(label string) []string {
	fields := strings.Fields(strings.ReplaceAll(label, ",", " "))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		// "1.e4" and "12...Nf6" carry the move glued to its number.
		if i := strings.LastIndex(f, "."); i >= 0 {
			if isMoveNumber(f[:i+1]) {
				f = f[i+1:]
			}
		}
		if f == "" || isResult(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isMoveNumber(s string) bool {
	s = strings.TrimRight(s, ".")
	if s == "" {
		return true
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isResult(s string) bool {
	switch s {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}

// Apply plays the moves of label on game. Moves the position does not allow
// are skipped rather than aborting the line.
func Apply(game *chess.Game, label string) (applied, skipped []string) {
	n := chess.AlgebraicNotation{}
	for _, tok := range Parse(label) {
		mv, err := n.Decode(game.Position(), tok)
		if err != nil {
			skipped = append(skipped, tok)
			continue
		}
		san := n.Encode(game.Position(), mv)
		if err := game.Move(mv); err != nil {
			skipped = append(skipped, tok)
			continue
		}
		applied = append(applied, san)
	}
	return applied, skipped
}

// FEN returns the position reached after label from the standard start.
func FEN(label string) (fen string, applied, skipped []string) {
	g := chess.NewGame()
	applied, skipped = Apply(g, label)
	return g.Position().String(), applied, skipped
}
