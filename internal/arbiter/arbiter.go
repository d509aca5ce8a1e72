// Package arbiter maps free-text move proposals onto the legal moves of a position.
package arbiter

import (
	"regexp"
	"strings"

	"github.com/notnil/chess"
)

var (
	declared  = regexp.MustCompile(`(?i)my move:\s*"([^"]+)"`)
	sanToken  = regexp.MustCompile(`[NBRQK]?[a-h]?[1-8]?x?[a-h][1-8](?:=[NBRQ])?[+#]?|O-O(?:-O)?`)
	stripJunk = regexp.MustCompile(`[^A-Za-z0-9_\s+#=\-]`)
)

// Arbiter resolves proposals. The zero value matches legal moves as plain
// substrings of the cleaned proposal.
type Arbiter struct {
	// WordBoundary requires substring matches to be delimited by
	// non-alphanumeric characters (or the ends of the text).
	WordBoundary bool
}

// Resolve runs the default arbiter.
func Resolve(raw string, legal []string) (string, bool) {
	return Arbiter{}.Resolve(raw, legal)
}

// Resolve returns the first legal move found in raw, trying in order an
// explicit `My move: "X"` declaration, a substring scan over the cleaned text
// and a SAN token scan. It returns false when nothing matches.
func (a Arbiter) Resolve(raw string, legal []string) (string, bool) {
	if len(legal) == 0 {
		return "", false
	}

	if m := declared.FindStringSubmatch(raw); m != nil {
		if mv, ok := lookup(strings.TrimSpace(m[1]), legal); ok {
			return mv, true
		}
	}

	cleaned := strings.TrimSpace(stripJunk.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return "", false
	}
	for _, mv := range legal {
		if a.contains(cleaned, mv) {
			return mv, true
		}
	}

	for _, tok := range sanToken.FindAllString(cleaned, -1) {
		if mv, ok := lookup(tok, legal); ok {
			return mv, true
		}
	}
	return "", false
}

func (a Arbiter) contains(text, mv string) bool {
	if !a.WordBoundary {
		return strings.Contains(text, mv)
	}
	from := 0
	for {
		i := strings.Index(text[from:], mv)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(mv)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// lookup finds candidate in legal, tolerating a missing or extra check
// suffix and castling written with zeros.
func lookup(candidate string, legal []string) (string, bool) {
	if candidate == "" {
		return "", false
	}
	for _, mv := range legal {
		if mv == candidate {
			return mv, true
		}
	}
	want := normalize(candidate)
	for _, mv := range legal {
		if normalize(mv) == want {
			return mv, true
		}
	}
	return "", false
}

func normalize(san string) string {
	san = strings.ReplaceAll(san, "0", "O")
	return strings.TrimRight(san, "+#")
}

// LegalSAN lists the legal moves of pos in standard algebraic notation, in
// the order the rules oracle generates them.
func LegalSAN(pos *chess.Position) []string {
	moves := pos.ValidMoves()
	out := make([]string, 0, len(moves))
	n := chess.AlgebraicNotation{}
	for _, mv := range moves {
		out = append(out, n.Encode(pos, mv))
	}
	return out
}
