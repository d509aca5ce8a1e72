package tournament

import (
	"math"
	"math/rand"
)

// matchGames emits gamesPerPairing games between a and b, alternating colours
// with a white in even-indexed games.
func matchGames(round int, a, b string, gamesPerPairing int, bracket string) []Pairing {
	if gamesPerPairing <= 0 {
		gamesPerPairing = 1
	}
	out := make([]Pairing, 0, gamesPerPairing)
	for g := 0; g < gamesPerPairing; g++ {
		white, black := a, b
		if g%2 == 1 {
			white, black = b, a
		}
		out = append(out, Pairing{
			Round:   round,
			Game:    g + 1,
			White:   white,
			Black:   black,
			Status:  Pending,
			Bracket: bracket,
		})
	}
	return out
}

// RoundRobinRounds returns the full schedule built with the circle method:
// the first entry stays fixed and the rest rotate one seat per round. An odd
// field gets a Bye slot whose pairings are left out and recorded as byes.
func RoundRobinRounds(participants []string, gamesPerPairing int) []Round {
	seats := append([]string(nil), participants...)
	if len(seats)%2 == 1 {
		seats = append(seats, Bye)
	}
	n := len(seats)
	if n < 2 {
		return nil
	}
	rounds := make([]Round, 0, n-1)
	for r := 0; r < n-1; r++ {
		rd := Round{Number: r + 1}
		for i := 0; i < n/2; i++ {
			a, b := seats[i], seats[n-1-i]
			switch {
			case a == Bye:
				rd.Byes = append(rd.Byes, b)
			case b == Bye:
				rd.Byes = append(rd.Byes, a)
			default:
				rd.Pairings = append(rd.Pairings, matchGames(r+1, a, b, gamesPerPairing, "")...)
			}
		}
		rounds = append(rounds, rd)

		last := seats[n-1]
		copy(seats[2:], seats[1:n-1])
		seats[1] = last
	}
	return rounds
}

// RoundRobinSchedule returns the schedule as a list of pairings per round.
func RoundRobinSchedule(participants []string, gamesPerPairing int) [][]Pairing {
	rounds := RoundRobinRounds(participants, gamesPerPairing)
	out := make([][]Pairing, len(rounds))
	for i, rd := range rounds {
		out[i] = rd.Pairings
	}
	return out
}

// SwissRoundCount is ceil(log2(n)), at least one round.
func SwissRoundCount(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// PlayedBefore reports whether a and b met anywhere in history.
func PlayedBefore(a, b string, history []Pairing) bool {
	for _, p := range history {
		if p.involves(a, b) {
			return true
		}
	}
	return false
}

// SwissRound pairs the table greedily: the top unpaired entry meets the
// highest-ranked unpaired entry it has not played yet. Entries left without
// an opponent receive a bye.
func SwissRound(round int, standings []Standing, history []Pairing, gamesPerPairing int) Round {
	order := ByPointsAndRating(standings)
	rd := Round{Number: round}
	paired := make(map[string]bool, len(order))
	for i := range order {
		a := order[i].Participant
		if paired[a] {
			continue
		}
		for j := i + 1; j < len(order); j++ {
			b := order[j].Participant
			if paired[b] || PlayedBefore(a, b, history) {
				continue
			}
			paired[a], paired[b] = true, true
			rd.Pairings = append(rd.Pairings, matchGames(round, a, b, gamesPerPairing, "")...)
			break
		}
	}
	for _, s := range order {
		if !paired[s.Participant] {
			rd.Byes = append(rd.Byes, s.Participant)
		}
	}
	return rd
}

// ArenaRound shuffles the field and pairs neighbours, one game each.
func ArenaRound(round int, players []string, rng *rand.Rand) Round {
	shuffled := shuffle(players, rng)
	rd := Round{Number: round}
	for i := 0; i+1 < len(shuffled); i += 2 {
		rd.Pairings = append(rd.Pairings, matchGames(round, shuffled[i], shuffled[i+1], 1, "")...)
	}
	if len(shuffled)%2 == 1 {
		rd.Byes = append(rd.Byes, shuffled[len(shuffled)-1])
	}
	return rd
}

// Match is a knockout pairing of two players; A is white in the first game.
type Match struct {
	A, B    string
	Bracket string
}

// KnockoutMatches shuffles players and pairs neighbours. With an odd count
// the last player after shuffling gets a bye.
func KnockoutMatches(players []string, bracket string, rng *rand.Rand) (matches []Match, bye string) {
	shuffled := shuffle(players, rng)
	for i := 0; i+1 < len(shuffled); i += 2 {
		matches = append(matches, Match{A: shuffled[i], B: shuffled[i+1], Bracket: bracket})
	}
	if len(shuffled)%2 == 1 {
		bye = shuffled[len(shuffled)-1]
	}
	return matches, bye
}

// EliminationRound builds one single-elimination round.
func EliminationRound(round int, players []string, gamesPerPairing int, rng *rand.Rand) (Round, []Match) {
	matches, bye := KnockoutMatches(players, WinnersBracket, rng)
	rd := Round{Number: round}
	for _, m := range matches {
		rd.Pairings = append(rd.Pairings, matchGames(round, m.A, m.B, gamesPerPairing, m.Bracket)...)
	}
	if bye != "" {
		rd.Byes = []string{bye}
	}
	return rd, matches
}

// MatchScore sums the points of a and b over their decided games in pairings
// of the given bracket.
func MatchScore(m Match, pairings []Pairing) (a, b float64, games int) {
	for _, p := range pairings {
		if p.Bracket != m.Bracket || !p.involves(m.A, m.B) || !p.decided() {
			continue
		}
		games++
		switch p.Result {
		case "1-0":
			if p.White == m.A {
				a++
			} else {
				b++
			}
		case "0-1":
			if p.Black == m.A {
				a++
			} else {
				b++
			}
		case "1/2-1/2":
			a += 0.5
			b += 0.5
		}
	}
	return a, b, games
}

// Rematch is the extra game of a drawn match, with A playing black.
func Rematch(round int, m Match, game int) Pairing {
	return Pairing{
		Round:   round,
		Game:    game,
		White:   m.B,
		Black:   m.A,
		Status:  Pending,
		Bracket: m.Bracket,
		Rematch: true,
	}
}

// Decide picks the winner of a finished match. A tied score goes to the
// higher tournament rating, then the better seed.
func Decide(m Match, pairings []Pairing, table *Standings) (winner, loser string) {
	a, b, _ := MatchScore(m, pairings)
	switch {
	case a > b:
		return m.A, m.B
	case b > a:
		return m.B, m.A
	}
	sa, _ := table.Get(m.A)
	sb, _ := table.Get(m.B)
	if sa.Rating != sb.Rating {
		if sa.Rating > sb.Rating {
			return m.A, m.B
		}
		return m.B, m.A
	}
	if sb.Seed < sa.Seed {
		return m.B, m.A
	}
	return m.A, m.B
}

func shuffle(players []string, rng *rand.Rand) []string {
	out := append([]string(nil), players...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
