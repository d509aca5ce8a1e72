package arbiter

import (
	"testing"

	"github.com/notnil/chess"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		legal []string
		want  string
		ok    bool
	}{
		{
			name:  "prose substring",
			raw:   "I think the best move here is e4 because it opens lines.",
			legal: []string{"e4", "Nf3", "d4"},
			want:  "e4",
			ok:    true,
		},
		{
			name:  "illegal proposal",
			raw:   "Qh5",
			legal: []string{"e4", "Nf3", "d4"},
			ok:    false,
		},
		{
			name:  "declaration wins over earlier substring",
			raw:   `d4 looks tempting. My move: "Nf3"`,
			legal: []string{"d4", "Nf3"},
			want:  "Nf3",
			ok:    true,
		},
		{
			name:  "declaration with surrounding spaces",
			raw:   `my move: " e5 "`,
			legal: []string{"e5", "d5"},
			want:  "e5",
			ok:    true,
		},
		{
			name:  "declaration missing mate suffix",
			raw:   `My move: "Qxf7"`,
			legal: []string{"Qxf7#", "Qe2"},
			want:  "Qxf7#",
			ok:    true,
		},
		{
			name:  "castling with zeros",
			raw:   `My move: "0-0"`,
			legal: []string{"Kh1", "O-O"},
			want:  "O-O",
			ok:    true,
		},
		{
			name:  "illegal declaration falls through to substring",
			raw:   `My move: "Ke2" or maybe d5`,
			legal: []string{"d5", "c5"},
			want:  "d5",
			ok:    true,
		},
		{
			name:  "token scan adds check suffix",
			raw:   "Knight to f3: Nf3!",
			legal: []string{"Nf3+", "e4"},
			want:  "Nf3+",
			ok:    true,
		},
		{
			name:  "punctuation stripped",
			raw:   "**e4**",
			legal: []string{"d4", "e4"},
			want:  "e4",
			ok:    true,
		},
		{
			name:  "first legal in oracle order",
			raw:   "either d4 or e4",
			legal: []string{"e4", "d4"},
			want:  "e4",
			ok:    true,
		},
		{
			name:  "empty proposal",
			raw:   "",
			legal: []string{"e4"},
			ok:    false,
		},
		{
			name:  "no legal moves",
			raw:   "e4",
			legal: nil,
			ok:    false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolve(tc.raw, tc.legal)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v (got %q)", ok, tc.ok, got)
			}
			if got != tc.want {
				t.Fatalf("move = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveWordBoundary(t *testing.T) {
	legal := []string{"e4"}

	if got, ok := Resolve("Bee4", legal); !ok || got != "e4" {
		t.Fatalf("substring arbiter: got %q ok=%v, want e4", got, ok)
	}

	strict := Arbiter{WordBoundary: true}
	if got, ok := strict.Resolve("Bee4", legal); ok {
		t.Fatalf("word-boundary arbiter matched %q inside a word", got)
	}
	if got, ok := strict.Resolve("play e4, then castle", legal); !ok || got != "e4" {
		t.Fatalf("word-boundary arbiter: got %q ok=%v, want e4", got, ok)
	}
	if got, ok := strict.Resolve("e4", legal); !ok || got != "e4" {
		t.Fatalf("word-boundary arbiter on bare token: got %q ok=%v", got, ok)
	}
}

func TestResolveDeterministic(t *testing.T) {
	legal := []string{"Nc3", "e4", "d4", "Nf3"}
	raw := "Candidates: Nf3, d4 and e4. I'll go with the knight."
	first, ok := Resolve(raw, legal)
	if !ok {
		t.Fatalf("expected a match")
	}
	for i := 0; i < 10; i++ {
		got, _ := Resolve(raw, legal)
		if got != first {
			t.Fatalf("run %d: got %q, want %q", i, got, first)
		}
	}
}

func TestResolveContainedLegalMoveAlwaysFound(t *testing.T) {
	pos := chess.StartingPosition()
	legal := LegalSAN(pos)
	for _, mv := range legal {
		raw := "after some thought I choose " + mv + " here"
		got, ok := Resolve(raw, legal)
		if !ok {
			t.Fatalf("%s: no match", mv)
		}
		if !containsString(legal, got) {
			t.Fatalf("%s: resolved to non-legal %q", mv, got)
		}
	}
}

func TestLegalSANStartingPosition(t *testing.T) {
	legal := LegalSAN(chess.StartingPosition())
	if len(legal) != 20 {
		t.Fatalf("expected 20 legal moves, got %d", len(legal))
	}
	for _, want := range []string{"e4", "d4", "Nf3", "Nc3", "a3"} {
		if !containsString(legal, want) {
			t.Fatalf("missing %s in %v", want, legal)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
