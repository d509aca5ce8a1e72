package tournament

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llmarena/internal/engine"
	"llmarena/internal/events"
	"llmarena/internal/rating"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('A' + i))
	}
	return out
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

func TestRoundRobinCompleteness(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 8, 9} {
		rounds := RoundRobinRounds(players(n), 1)
		seen := map[string]int{}
		for _, rd := range rounds {
			inRound := map[string]bool{}
			for _, p := range rd.Pairings {
				require.NotEqual(t, p.White, p.Black)
				require.False(t, inRound[p.White] || inRound[p.Black], "player twice in round %d (n=%d)", rd.Number, n)
				inRound[p.White], inRound[p.Black] = true, true
				seen[pairKey(p.White, p.Black)]++
			}
			if n%2 == 1 {
				require.Len(t, rd.Byes, 1)
			}
		}
		require.Len(t, seen, n*(n-1)/2, "n=%d", n)
		for k, c := range seen {
			require.Equal(t, 1, c, "pair %s met %d times", k, c)
		}
		if n%2 == 0 {
			require.Len(t, rounds, n-1)
		} else {
			require.Len(t, rounds, n)
		}
	}
}

func TestRoundRobinAlternatesColoursWithinPairing(t *testing.T) {
	rounds := RoundRobinSchedule([]string{"A", "B"}, 3)
	require.Len(t, rounds, 1)
	ps := rounds[0]
	require.Len(t, ps, 3)
	require.Equal(t, "A", ps[0].White)
	require.Equal(t, "B", ps[1].White)
	require.Equal(t, "A", ps[2].White)
	require.Equal(t, []int{1, 2, 3}, []int{ps[0].Game, ps[1].Game, ps[2].Game})
}

func TestSwissAvoidsRepeatsAndGivesByes(t *testing.T) {
	table := NewStandings([]string{"A", "B", "C", "D", "E"}, func(string) int { return 1500 }, 32)
	table.Apply("A", "B", "1-0")
	table.Apply("C", "D", "1-0")

	history := []Pairing{
		{White: "A", Black: "B", Status: Done, Result: "1-0"},
		{White: "C", Black: "D", Status: Done, Result: "1-0"},
	}
	rd := SwissRound(2, table.Sorted(), history, 1)

	for _, p := range rd.Pairings {
		require.False(t, PlayedBefore(p.White, p.Black, history), "repeat pairing %s-%s", p.White, p.Black)
	}
	require.Len(t, rd.Pairings, 2)
	require.Len(t, rd.Byes, 1)
	// leaders meet first
	require.Equal(t, pairKey("A", "C"), pairKey(rd.Pairings[0].White, rd.Pairings[0].Black))
	require.Equal(t, 3, SwissRoundCount(5))
	require.Equal(t, 1, SwissRoundCount(2))
}

func TestSwissUnpairableLeftoverGetsBye(t *testing.T) {
	table := NewStandings([]string{"A", "B"}, nil, 32)
	history := []Pairing{{White: "A", Black: "B", Status: Done, Result: "1/2-1/2"}}
	rd := SwissRound(2, table.Sorted(), history, 1)
	require.Empty(t, rd.Pairings)
	require.ElementsMatch(t, []string{"A", "B"}, rd.Byes)
}

func TestStandingsConsistency(t *testing.T) {
	names := players(4)
	table := NewStandings(names, nil, 32)
	rng := rand.New(rand.NewSource(3))
	results := []string{"1-0", "0-1", "1/2-1/2", "*"}
	for i := 0; i < 200; i++ {
		a, b := names[rng.Intn(4)], names[rng.Intn(4)]
		if a == b {
			continue
		}
		table.Apply(a, b, results[rng.Intn(len(results))])
	}
	for _, s := range table.Sorted() {
		require.Equal(t, float64(s.Wins)+0.5*float64(s.Draws), s.Points, s.Participant)
		require.Equal(t, s.Wins+s.Draws+s.Losses, s.Games, s.Participant)
	}
}

func TestBuchholzAndSortOrder(t *testing.T) {
	table := NewStandings([]string{"A", "B", "C", "D"}, func(n string) int {
		return map[string]int{"A": 1500, "B": 1500, "C": 1600, "D": 1500}[n]
	}, 32)
	history := []Pairing{
		{White: "A", Black: "C", Status: Done, Result: "1-0"},
		{White: "B", Black: "D", Status: Done, Result: "1-0"},
		{White: "C", Black: "D", Status: Done, Result: "1-0"},
	}
	for _, p := range history {
		table.Apply(p.White, p.Black, p.Result)
	}
	table.RecomputeBuchholz(history)

	a, _ := table.Get("A")
	b, _ := table.Get("B")
	require.Equal(t, 1.0, a.Points)
	require.Equal(t, 1.0, b.Points)
	// A beat C (1 point), B beat D (0 points)
	require.Equal(t, 1.0, a.Buchholz)
	require.Equal(t, 0.0, b.Buchholz)

	// A and C tie on points and Buchholz; C keeps the higher rating.
	sorted := table.Sorted()
	require.Equal(t, []string{"C", "A", "B", "D"}, []string{
		sorted[0].Participant, sorted[1].Participant, sorted[2].Participant, sorted[3].Participant,
	})
}

func TestBracketSingleElimination(t *testing.T) {
	b := NewBracket(players(5), false)
	rng := rand.New(rand.NewSource(1))
	rounds := 0
	for !b.Done() {
		matches, byes := b.Next(rng)
		require.NotEmpty(t, matches)
		require.LessOrEqual(t, len(byes), 1)
		b.Advance(matches, func(m Match) (string, string) { return m.A, m.B })
		rounds++
		require.Less(t, rounds, 10)
	}
	require.Equal(t, 3, rounds)
	require.NotEmpty(t, b.Champion())
	require.Len(t, b.Eliminated(), 4)
}

func TestBracketDoubleEliminationNeedsTwoLosses(t *testing.T) {
	names := players(6)
	b := NewBracket(names, true)
	rng := rand.New(rand.NewSource(2))
	losses := map[string]int{}
	sawFinal := false
	for i := 0; !b.Done(); i++ {
		require.Less(t, i, 30)
		matches, _ := b.Next(rng)
		require.NotEmpty(t, matches)
		for _, m := range matches {
			if m.Bracket == GrandFinal {
				sawFinal = true
			}
		}
		// the alphabetically later player always wins
		b.Advance(matches, func(m Match) (string, string) {
			if m.A > m.B {
				losses[m.B]++
				return m.A, m.B
			}
			losses[m.A]++
			return m.B, m.A
		})
	}
	require.True(t, sawFinal)
	require.Equal(t, "F", b.Champion())
	for _, p := range b.Eliminated() {
		require.Equal(t, 2, losses[p], "player %s eliminated with %d losses", p, losses[p])
	}
	require.Len(t, b.Eliminated(), 5)
}

func TestDecideTieBreaks(t *testing.T) {
	table := NewStandings([]string{"A", "B"}, func(n string) int {
		if n == "B" {
			return 1700
		}
		return 1500
	}, 32)
	m := Match{A: "A", B: "B", Bracket: WinnersBracket}
	drawn := []Pairing{
		{White: "A", Black: "B", Bracket: WinnersBracket, Status: Done, Result: "1/2-1/2"},
	}
	w, l := Decide(m, drawn, table)
	require.Equal(t, "B", w)
	require.Equal(t, "A", l)

	won := append(drawn, Pairing{White: "B", Black: "A", Bracket: WinnersBracket, Status: Done, Result: "0-1", Rematch: true})
	w, _ = Decide(m, won, table)
	require.Equal(t, "A", w)

	even := NewStandings([]string{"A", "B"}, nil, 32)
	w, _ = Decide(m, drawn, even)
	require.Equal(t, "A", w, "better seed advances")
}

// resultPlayer decides games with a fixed rule: the alphabetically earlier
// model wins, except pairs listed in draws.
type resultPlayer struct {
	mu      sync.Mutex
	played  []engine.GameSpec
	draws   map[string]bool
	running int
	peak    int
}

func (p *resultPlayer) Play(ctx context.Context, spec engine.GameSpec) engine.GameRecord {
	p.mu.Lock()
	p.played = append(p.played, spec)
	p.running++
	if p.running > p.peak {
		p.peak = p.running
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	p.running--
	p.mu.Unlock()

	rec := engine.GameRecord{ID: spec.ID, White: spec.White, Black: spec.Black, Termination: engine.Checkmate}
	switch {
	case p.draws[pairKey(spec.White, spec.Black)]:
		rec.Result = "1/2-1/2"
		rec.Termination = engine.Draw
	case spec.White < spec.Black:
		rec.Result = "1-0"
	default:
		rec.Result = "0-1"
	}
	rec.Moves = make([]engine.Move, 10)
	return rec
}

type memStore struct {
	mu    sync.Mutex
	saves []Record
}

func (m *memStore) SaveTournament(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, rec)
	return nil
}

type topicCounter struct {
	mu     sync.Mutex
	topics map[string]int
}

func (c *topicCounter) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics == nil {
		c.topics = map[string]int{}
	}
	c.topics[ev.Topic]++
}

func newOrchestrator(p Player) (*Orchestrator, *memStore, *topicCounter, *rating.Book) {
	store := &memStore{}
	pub := &topicCounter{}
	book := rating.NewBook(discardLogger(), nil, 32)
	o := NewOrchestrator(discardLogger(), Deps{
		Player:    p,
		Ratings:   book,
		Store:     store,
		Publisher: pub,
	})
	o.SetDelays(0, 0)
	return o, store, pub, book
}

func TestCreateRejectsBadConfig(t *testing.T) {
	o, _, _, _ := newOrchestrator(&resultPlayer{})
	_, err := o.Create(context.Background(), Config{Type: RoundRobin, Participants: []string{"A"}})
	require.ErrorIs(t, err, ErrTooFewParticipants)

	_, err = o.Create(context.Background(), Config{Type: "ladder", Participants: []string{"A", "B"}})
	require.ErrorIs(t, err, ErrUnknownType)
	require.Equal(t, 0, o.Registry().Len())
}

func TestRunRoundRobin(t *testing.T) {
	p := &resultPlayer{}
	o, store, pub, book := newOrchestrator(p)
	tour, err := o.Create(context.Background(), Config{
		Type:            RoundRobin,
		Participants:    []string{"A", "B", "C", "D"},
		GamesPerPairing: 2,
		ConcurrentGames: 2,
		Openings:        []string{"1. e4", "1. d4"},
	})
	require.NoError(t, err)

	rec, err := o.Run(context.Background(), tour)
	require.NoError(t, err)
	require.Equal(t, Completed, rec.Status)
	require.Len(t, rec.Rounds, 3)
	require.Len(t, p.played, 12)
	require.LessOrEqual(t, p.peak, 2)
	require.Equal(t, 12, rec.Statistics.TotalGames)
	require.Equal(t, 120, rec.Statistics.TotalMoves)
	require.InDelta(t, 100, rec.Statistics.WhiteWinPercent+rec.Statistics.BlackWinPercent+rec.Statistics.DrawPercent, 0.2)

	// A beats everyone twice
	require.Equal(t, "A", rec.Winner)
	require.Equal(t, "A", rec.Standings[0].Participant)
	require.Equal(t, 6.0, rec.Standings[0].Points)
	require.Greater(t, book.Rating("A"), 1500)

	require.Equal(t, 12, pub.topics[events.TopicTournamentUpdate])
	require.Equal(t, 3, pub.topics[events.TopicTournamentRound])
	require.Equal(t, 1, pub.topics[events.TopicTournamentCompleted])
	// created + one per round + final
	require.Len(t, store.saves, 5)

	openings := map[string]int{}
	for _, s := range p.played {
		openings[s.Opening]++
		require.Equal(t, tour.ID(), s.TournamentID)
	}
	require.Equal(t, 6, openings["1. e4"])

	_, err = o.Run(context.Background(), tour)
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestRunSwiss(t *testing.T) {
	o, _, _, _ := newOrchestrator(&resultPlayer{})
	tour, err := o.Create(context.Background(), Config{Type: Swiss, Participants: players(6), GamesPerPairing: 1})
	require.NoError(t, err)
	rec, err := o.Run(context.Background(), tour)
	require.NoError(t, err)
	require.Len(t, rec.Rounds, 3)

	seen := map[string]bool{}
	for _, p := range rec.History() {
		k := pairKey(p.White, p.Black)
		require.False(t, seen[k], "swiss repeated %s", k)
		seen[k] = true
	}
	require.Equal(t, "A", rec.Winner)
}

func TestRunEliminationWithDrawnMatchRematch(t *testing.T) {
	p := &resultPlayer{draws: map[string]bool{}}
	for _, a := range players(4) {
		for _, b := range players(4) {
			if a != b {
				p.draws[pairKey(a, b)] = true
			}
		}
	}
	o, _, _, _ := newOrchestrator(p)
	tour, err := o.Create(context.Background(), Config{
		Type:            Elimination,
		Participants:    players(4),
		GamesPerPairing: 1,
		Seed:            9,
	})
	require.NoError(t, err)
	rec, err := o.Run(context.Background(), tour)
	require.NoError(t, err)
	require.Equal(t, Completed, rec.Status)
	require.Len(t, rec.Rounds, 2)

	rematches := 0
	for _, p := range rec.History() {
		if p.Rematch {
			rematches++
		}
	}
	// every match is drawn, so every match gets exactly one rematch
	require.Equal(t, 3, rematches)
	// all equal ratings after draws, so the first seed wins every tie
	require.Equal(t, "A", rec.Winner)
}

func TestRunDoubleElimination(t *testing.T) {
	o, _, _, _ := newOrchestrator(&resultPlayer{})
	tour, err := o.Create(context.Background(), Config{
		Type:            DoubleElimination,
		Participants:    players(5),
		GamesPerPairing: 1,
		Seed:            4,
	})
	require.NoError(t, err)
	rec, err := o.Run(context.Background(), tour)
	require.NoError(t, err)
	require.Equal(t, "A", rec.Winner)

	final := 0
	losers := 0
	for _, p := range rec.History() {
		switch p.Bracket {
		case GrandFinal:
			final++
		case LosersBracket:
			losers++
		}
	}
	require.Equal(t, 1, final)
	require.Greater(t, losers, 0)
}

func TestRunArena(t *testing.T) {
	o, _, _, _ := newOrchestrator(&resultPlayer{})
	tour, err := o.Create(context.Background(), Config{Type: Arena, Participants: players(5), ArenaRounds: 4, Seed: 5})
	require.NoError(t, err)
	rec, err := o.Run(context.Background(), tour)
	require.NoError(t, err)
	require.Len(t, rec.Rounds, 4)
	for _, rd := range rec.Rounds {
		require.Len(t, rd.Pairings, 2)
		require.Len(t, rd.Byes, 1)
	}
	total := 0
	for _, s := range rec.Standings {
		total += s.Games
	}
	require.Equal(t, 16, total)
}

// gatedPlayer blocks every game until released.
type gatedPlayer struct {
	release chan struct{}
	mu      sync.Mutex
	started int
}

func (g *gatedPlayer) Play(ctx context.Context, spec engine.GameSpec) engine.GameRecord {
	g.mu.Lock()
	g.started++
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-spec.Stop:
		return engine.GameRecord{ID: spec.ID, White: spec.White, Black: spec.Black, Result: "*", Termination: engine.Stopped}
	}
	return engine.GameRecord{ID: spec.ID, White: spec.White, Black: spec.Black, Result: "1/2-1/2", Termination: engine.Draw}
}

func (g *gatedPlayer) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

func TestPauseResumeStop(t *testing.T) {
	g := &gatedPlayer{release: make(chan struct{})}
	o, _, _, _ := newOrchestrator(g)
	tour, err := o.Create(context.Background(), Config{Type: RoundRobin, Participants: players(4), GamesPerPairing: 1, ConcurrentGames: 1})
	require.NoError(t, err)
	require.ErrorIs(t, tour.Pause(), ErrBadTransition)

	require.NoError(t, o.Start(context.Background(), tour))
	require.Eventually(t, func() bool { return g.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tour.Pause())
	require.Equal(t, Paused, tour.Status())
	g.release <- struct{}{}
	// paused at the batch boundary: no second game
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, g.count())

	require.NoError(t, tour.Resume())
	require.Eventually(t, func() bool { return g.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	tour.Stop()
	select {
	case <-tour.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tournament did not stop")
	}
	o.Wait()
	rec := tour.Snapshot()
	require.Equal(t, Cancelled, rec.Status)
	require.Equal(t, 1, rec.Statistics.TotalGames)
}

func TestStopBeforeStart(t *testing.T) {
	o, _, _, _ := newOrchestrator(&resultPlayer{})
	tour, err := o.Create(context.Background(), Config{Type: Arena, Participants: players(2)})
	require.NoError(t, err)
	tour.Stop()
	require.True(t, tour.Finished())
	require.Equal(t, Cancelled, tour.Status())
	require.ErrorIs(t, o.Start(context.Background(), tour), ErrBadTransition)
}

func TestStatisticsPercentages(t *testing.T) {
	rounds := []Round{{Pairings: []Pairing{
		{Status: Done, Result: "1-0", Moves: 40, Fallbacks: 2},
		{Status: Done, Result: "1-0", Moves: 20},
		{Status: Done, Result: "1/2-1/2", Moves: 60, Fallbacks: 1},
		{Status: Errored, Result: "*"},
		{Status: Pending},
	}}}
	s := computeStatistics(rounds, nil, nil)
	require.Equal(t, 3, s.TotalGames)
	require.Equal(t, 1, s.Errors)
	require.Equal(t, 66.7, s.WhiteWinPercent)
	require.Equal(t, 33.3, s.DrawPercent)
	require.Equal(t, 40.0, s.AverageMoves)
	require.Equal(t, 3, s.FallbackMoves)
}
