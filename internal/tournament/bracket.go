package tournament

import (
	"math/rand"
)

// Bracket tracks who is still alive in a knockout event. With double set a
// player drops to the losers bracket on the first loss and is out on the
// second; the winners and losers bracket champions then meet once in a grand
// final.
type Bracket struct {
	double   bool
	winners  []string
	losers   []string
	out      []string
	champion string
}

func NewBracket(players []string, double bool) *Bracket {
	return &Bracket{double: double, winners: append([]string(nil), players...)}
}

func (b *Bracket) Done() bool {
	if b.champion != "" {
		return true
	}
	if len(b.winners) == 1 && (!b.double || len(b.losers) == 0) {
		b.champion = b.winners[0]
		return true
	}
	return len(b.winners) == 0
}

func (b *Bracket) Champion() string {
	b.Done()
	return b.champion
}

// Eliminated lists knocked-out players, earliest first.
func (b *Bracket) Eliminated() []string {
	return append([]string(nil), b.out...)
}

func (b *Bracket) Winners() []string { return append([]string(nil), b.winners...) }
func (b *Bracket) Losers() []string  { return append([]string(nil), b.losers...) }

// EstimatedRounds is the number of rounds a bracket of n players needs when
// nobody gets lucky with byes.
func EstimatedRounds(n int, double bool) int {
	r := SwissRoundCount(n)
	if double && n > 1 {
		return 2*r + 1
	}
	return r
}

// Next returns the matches of the coming round and the players sitting it
// out. It returns no matches once the bracket is decided.
func (b *Bracket) Next(rng *rand.Rand) (matches []Match, byes []string) {
	if b.Done() {
		return nil, nil
	}
	if b.double && len(b.winners) == 1 && len(b.losers) == 1 {
		return []Match{{A: b.winners[0], B: b.losers[0], Bracket: GrandFinal}}, nil
	}
	if len(b.winners) > 1 {
		m, bye := KnockoutMatches(b.winners, WinnersBracket, rng)
		matches = append(matches, m...)
		if bye != "" {
			byes = append(byes, bye)
		}
	} else {
		byes = append(byes, b.winners...)
	}
	if b.double {
		if len(b.losers) > 1 {
			m, bye := KnockoutMatches(b.losers, LosersBracket, rng)
			matches = append(matches, m...)
			if bye != "" {
				byes = append(byes, bye)
			}
		} else {
			byes = append(byes, b.losers...)
		}
	}
	return matches, byes
}

// Advance applies the outcome of every match of a round. decide names the
// winner and loser of a match.
func (b *Bracket) Advance(matches []Match, decide func(Match) (winner, loser string)) {
	inMatch := make(map[string]bool)
	for _, m := range matches {
		inMatch[m.A], inMatch[m.B] = true, true
	}
	var winners, losers, dropped []string
	for _, p := range b.winners {
		if !inMatch[p] {
			winners = append(winners, p)
		}
	}
	for _, p := range b.losers {
		if !inMatch[p] {
			losers = append(losers, p)
		}
	}
	for _, m := range matches {
		w, l := decide(m)
		switch m.Bracket {
		case GrandFinal:
			b.champion = w
			b.out = append(b.out, l)
		case LosersBracket:
			losers = append(losers, w)
			b.out = append(b.out, l)
		default:
			winners = append(winners, w)
			if b.double {
				dropped = append(dropped, l)
			} else {
				b.out = append(b.out, l)
			}
		}
	}
	if b.champion != "" {
		b.winners, b.losers = []string{b.champion}, nil
		return
	}
	b.winners = winners
	b.losers = append(losers, dropped...)
}
