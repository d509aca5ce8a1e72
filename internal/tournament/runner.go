package tournament

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"llmarena/internal/book"
	"llmarena/internal/engine"
	"llmarena/internal/events"
	"llmarena/internal/rating"
	"llmarena/internal/registry"
)

type Player interface {
	Play(ctx context.Context, spec engine.GameSpec) engine.GameRecord
}

type Ratings interface {
	Rating(name string) int
	Apply(ctx context.Context, gameID, white, black, result string) (rating.Change, error)
}

type Store interface {
	SaveTournament(ctx context.Context, rec Record) error
}

type Deps struct {
	Player    Player
	Ratings   Ratings
	Recorder  engine.Recorder
	Store     Store
	Publisher engine.Publisher
	Registry  *registry.Registry[*Tournament]
}

// Tournament is one event and its live state. All fields behind mu are
// shared between the runner and API readers.
type Tournament struct {
	cfg Config
	rng *rand.Rand

	mu      sync.Mutex
	rec     Record
	table   *Standings
	bracket *Bracket
	matches []Match
	games   int
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func (t *Tournament) ID() string {
	return t.rec.ID
}

func (t *Tournament) Config() Config {
	return t.cfg
}

func (t *Tournament) Snapshot() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tournament) snapshotLocked() Record {
	out := t.rec
	out.Participants = append([]string(nil), t.rec.Participants...)
	out.Rounds = make([]Round, len(t.rec.Rounds))
	for i, rd := range t.rec.Rounds {
		rd.Pairings = append([]Pairing(nil), rd.Pairings...)
		rd.Byes = append([]string(nil), rd.Byes...)
		out.Rounds[i] = rd
	}
	out.Standings = t.table.Sorted()
	out.Statistics = computeStatistics(t.rec.Rounds, t.rec.StartedAt, t.rec.EndedAt)
	return out
}

func (t *Tournament) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.Status
}

// Pause holds the tournament at the next batch boundary. Games in flight
// finish normally.
func (t *Tournament) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec.Status != Running {
		return errors.Wrapf(ErrBadTransition, "pause from %s", t.rec.Status)
	}
	t.rec.Status = Paused
	t.resume = make(chan struct{})
	return nil
}

func (t *Tournament) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec.Status != Paused {
		return errors.Wrapf(ErrBadTransition, "resume from %s", t.rec.Status)
	}
	t.rec.Status = Running
	close(t.resume)
	t.resume = nil
	return nil
}

// Stop cancels the tournament. Plies in flight complete; nothing further is
// scheduled.
func (t *Tournament) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.mu.Lock()
	notStarted := t.rec.Status == Created
	if notStarted {
		t.rec.Status = Cancelled
		now := time.Now().UTC()
		t.rec.EndedAt = &now
	}
	t.mu.Unlock()
	if notStarted {
		t.doneOnce.Do(func() { close(t.done) })
	}
}

func (t *Tournament) Done() <-chan struct{} {
	return t.done
}

func (t *Tournament) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// FinishedAt reports when the tournament ended, or false while it is still
// pending or running.
func (t *Tournament) FinishedAt() (time.Time, bool) {
	if !t.Finished() {
		return time.Time{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec.EndedAt == nil {
		return time.Time{}, true
	}
	return *t.rec.EndedAt, true
}

func (t *Tournament) stopped(ctx context.Context) bool {
	select {
	case <-t.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitIfPaused blocks while the tournament is paused. It reports false when
// the tournament was stopped meanwhile.
func (t *Tournament) waitIfPaused(ctx context.Context) bool {
	t.mu.Lock()
	ch := t.resume
	t.mu.Unlock()
	if ch == nil {
		return !t.stopped(ctx)
	}
	select {
	case <-ch:
		return !t.stopped(ctx)
	case <-t.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

type Orchestrator struct {
	log  *slog.Logger
	deps Deps

	mu            sync.RWMutex
	batchDelay    time.Duration
	roundInterval time.Duration

	wg sync.WaitGroup
}

func NewOrchestrator(log *slog.Logger, deps Deps) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard{}
	}
	if deps.Registry == nil {
		deps.Registry = registry.New[*Tournament]()
	}
	return &Orchestrator{
		log:           log.With(slog.String("component", "tournament")),
		deps:          deps,
		batchDelay:    DefaultBatchDelay,
		roundInterval: DefaultRoundInterval,
	}
}

// SetDelays changes the defaults used by tournaments created afterwards.
func (o *Orchestrator) SetDelays(batch, round time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if batch >= 0 {
		o.batchDelay = batch
	}
	if round >= 0 {
		o.roundInterval = round
	}
}

func (o *Orchestrator) Registry() *registry.Registry[*Tournament] {
	return o.deps.Registry
}

// Create validates cfg, builds the initial schedule and registers the
// tournament in the created state.
func (o *Orchestrator) Create(ctx context.Context, cfg Config) (*Tournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	o.mu.RLock()
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = o.batchDelay
	}
	if cfg.RoundInterval <= 0 {
		cfg.RoundInterval = o.roundInterval
	}
	o.mu.RUnlock()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var ratingOf func(string) int
	if o.deps.Ratings != nil {
		ratingOf = o.deps.Ratings.Rating
	}
	t := &Tournament{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		table: NewStandings(cfg.Participants, ratingOf, cfg.K),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		rec: Record{
			ID:           registry.NewID("tourn"),
			Name:         cfg.Name,
			Description:  cfg.Description,
			Type:         cfg.Type,
			Participants: append([]string(nil), cfg.Participants...),
			Rounds:       []Round{},
			Status:       Created,
			CreatedAt:    time.Now().UTC(),
			StartAt:      cfg.StartAt,
		},
	}
	n := len(cfg.Participants)
	switch cfg.Type {
	case RoundRobin:
		t.rec.Rounds = RoundRobinRounds(cfg.Participants, cfg.GamesPerPairing)
		t.rec.TotalRounds = len(t.rec.Rounds)
	case Swiss:
		t.rec.TotalRounds = SwissRoundCount(n)
	case Arena:
		t.rec.TotalRounds = cfg.ArenaRounds
	case Elimination, DoubleElimination:
		t.bracket = NewBracket(cfg.Participants, cfg.Type == DoubleElimination)
		t.rec.TotalRounds = EstimatedRounds(n, cfg.Type == DoubleElimination)
	}

	o.deps.Registry.Put(t.rec.ID, t)
	o.save(ctx, t)
	o.log.Info("tournament_created",
		slog.String("tournament", t.rec.ID),
		slog.String("type", string(cfg.Type)),
		slog.Int("participants", n))
	return t, nil
}

// Start moves a created tournament to running and plays it in the
// background.
func (o *Orchestrator) Start(ctx context.Context, t *Tournament) error {
	if err := o.begin(t); err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.play(ctx, t)
	}()
	return nil
}

// Run starts t and blocks until it finishes.
func (o *Orchestrator) Run(ctx context.Context, t *Tournament) (Record, error) {
	if err := o.begin(t); err != nil {
		return Record{}, err
	}
	o.play(ctx, t)
	return t.Snapshot(), nil
}

func (o *Orchestrator) begin(t *Tournament) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rec.Status != Created {
		return errors.Wrapf(ErrBadTransition, "start from %s", t.rec.Status)
	}
	now := time.Now().UTC()
	t.rec.Status = Running
	t.rec.StartedAt = &now
	return nil
}

func (o *Orchestrator) play(ctx context.Context, t *Tournament) {
	defer t.doneOnce.Do(func() { close(t.done) })
	log := o.log.With(slog.String("tournament", t.rec.ID))
	log.Info("tournament_started", slog.String("type", string(t.cfg.Type)))

	for round := 1; ; round++ {
		if !t.waitIfPaused(ctx) {
			break
		}
		idx, ok := o.nextRound(t, round)
		if !ok {
			break
		}
		t.mu.Lock()
		t.rec.CurrentRound = round
		t.mu.Unlock()

		o.playPending(ctx, t, idx, log)
		if t.stopped(ctx) {
			break
		}
		if t.cfg.Type.knockout() {
			o.settleKnockout(ctx, t, idx, log)
			if t.stopped(ctx) {
				break
			}
		}
		o.finishRound(ctx, t, idx, log)

		if o.moreRounds(t, round) && !waitFor(ctx, t.stop, t.cfg.RoundInterval) {
			break
		}
	}

	t.mu.Lock()
	now := time.Now().UTC()
	t.rec.EndedAt = &now
	t.resume = nil
	if t.stopped(ctx) {
		t.rec.Status = Cancelled
	} else {
		t.rec.Status = Completed
		t.table.RecomputeBuchholz(t.rec.History())
		if t.bracket != nil {
			t.rec.Winner = t.bracket.Champion()
		} else if rows := t.table.Sorted(); len(rows) > 0 {
			t.rec.Winner = rows[0].Participant
		}
	}
	final := t.snapshotLocked()
	t.mu.Unlock()

	o.save(ctx, t)
	o.deps.Publisher.Publish(events.New(events.TopicTournamentCompleted, final.ID, final))
	log.Info("tournament_finished",
		slog.String("status", string(final.Status)),
		slog.String("winner", final.Winner),
		slog.Int("games", final.Statistics.TotalGames))
}

// nextRound makes sure round exists in the record and returns its index.
func (o *Orchestrator) nextRound(t *Tournament, round int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cfg := t.cfg
	var rd Round
	switch cfg.Type {
	case RoundRobin:
		if round > len(t.rec.Rounds) {
			return 0, false
		}
		return round - 1, true
	case Swiss:
		if round > t.rec.TotalRounds {
			return 0, false
		}
		t.table.RecomputeBuchholz(t.rec.History())
		rd = SwissRound(round, t.table.Sorted(), t.rec.History(), cfg.GamesPerPairing)
		if len(rd.Pairings) == 0 {
			return 0, false
		}
	case Arena:
		if round > cfg.ArenaRounds {
			return 0, false
		}
		rd = ArenaRound(round, cfg.Participants, t.rng)
	case Elimination, DoubleElimination:
		matches, byes := t.bracket.Next(t.rng)
		if len(matches) == 0 {
			return 0, false
		}
		t.matches = matches
		rd = Round{Number: round, Byes: byes}
		for _, m := range matches {
			rd.Pairings = append(rd.Pairings, matchGames(round, m.A, m.B, cfg.GamesPerPairing, m.Bracket)...)
		}
		if round > t.rec.TotalRounds {
			t.rec.TotalRounds = round
		}
	}
	t.rec.Rounds = append(t.rec.Rounds, rd)
	return len(t.rec.Rounds) - 1, true
}

func (o *Orchestrator) moreRounds(t *Tournament, round int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.cfg.Type {
	case Elimination, DoubleElimination:
		return !t.bracket.Done()
	default:
		return round < t.rec.TotalRounds
	}
}

// playPending plays every pending pairing of a round in batches of
// ConcurrentGames. A batch must finish before the next one starts.
func (o *Orchestrator) playPending(ctx context.Context, t *Tournament, idx int, log *slog.Logger) {
	t.mu.Lock()
	var pending []int
	for i, p := range t.rec.Rounds[idx].Pairings {
		if p.Status == Pending {
			pending = append(pending, i)
		}
	}
	t.mu.Unlock()

	size := t.cfg.ConcurrentGames
	for start := 0; start < len(pending); start += size {
		if start > 0 {
			if !waitFor(ctx, t.stop, t.cfg.BatchDelay) || !t.waitIfPaused(ctx) {
				return
			}
		} else if t.stopped(ctx) {
			return
		}
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		var wg sync.WaitGroup
		for _, pi := range pending[start:end] {
			wg.Add(1)
			go func(pi int) {
				defer wg.Done()
				o.playPairing(ctx, t, idx, pi, log)
			}(pi)
		}
		wg.Wait()
	}
}

func (o *Orchestrator) playPairing(ctx context.Context, t *Tournament, idx, pi int, log *slog.Logger) {
	t.mu.Lock()
	p := &t.rec.Rounds[idx].Pairings[pi]
	p.Status = Playing
	p.GameID = engine.NewGameID()
	opening := ""
	if len(t.cfg.Openings) > 0 {
		opening = book.Pick(t.cfg.Openings, t.games)
	}
	t.games++
	spec := engine.GameSpec{
		ID:           p.GameID,
		White:        p.White,
		Black:        p.Black,
		Opening:      opening,
		MaxMoves:     t.cfg.MaxMoves,
		TournamentID: t.rec.ID,
		Round:        p.Round,
		Stop:         t.stop,
	}
	t.mu.Unlock()

	g := o.deps.Player.Play(ctx, spec)

	if g.Termination == engine.Stopped {
		t.mu.Lock()
		t.rec.Rounds[idx].Pairings[pi].Status = Skipped
		t.mu.Unlock()
		return
	}

	pctx := context.WithoutCancel(ctx)
	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.RecordGame(pctx, g); err != nil {
			log.Error("game_record_failed", slog.String("game", g.ID), slog.Any("err", err))
		}
	}
	if g.Decided() && o.deps.Ratings != nil {
		if _, err := o.deps.Ratings.Apply(pctx, g.ID, g.White, g.Black, g.Result); err != nil {
			log.Error("rating_update_failed", slog.String("game", g.ID), slog.Any("err", err))
		}
	}

	t.mu.Lock()
	p = &t.rec.Rounds[idx].Pairings[pi]
	p.Result = g.Result
	p.Termination = string(g.Termination)
	p.Moves = len(g.Moves)
	p.Fallbacks = g.Fallbacks
	if g.Decided() {
		p.Status = Done
		t.table.Apply(g.White, g.Black, g.Result)
	} else {
		p.Status = Errored
	}
	done := *p
	standings := t.table.Sorted()
	t.mu.Unlock()

	o.deps.Publisher.Publish(events.New(events.TopicTournamentUpdate, t.rec.ID, map[string]any{
		"tournamentId": t.rec.ID,
		"round":        done.Round,
		"pairing":      done,
		"standings":    standings,
	}))
}

// settleKnockout gives every drawn match one rematch with colours reversed,
// then moves the winners on.
func (o *Orchestrator) settleKnockout(ctx context.Context, t *Tournament, idx int, log *slog.Logger) {
	t.mu.Lock()
	rd := &t.rec.Rounds[idx]
	added := 0
	for _, m := range t.matches {
		a, b, _ := MatchScore(m, rd.Pairings)
		if a != b {
			continue
		}
		game := 0
		for _, p := range rd.Pairings {
			if p.Bracket == m.Bracket && p.involves(m.A, m.B) {
				game++
			}
		}
		rd.Pairings = append(rd.Pairings, Rematch(rd.Number, m, game+1))
		added++
	}
	t.mu.Unlock()

	if added > 0 {
		log.Info("knockout_rematches", slog.Int("round", idx+1), slog.Int("matches", added))
		o.playPending(ctx, t, idx, log)
		if t.stopped(ctx) {
			return
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	pairings := t.rec.Rounds[idx].Pairings
	t.bracket.Advance(t.matches, func(m Match) (string, string) {
		return Decide(m, pairings, t.table)
	})
	t.matches = nil
}

func (o *Orchestrator) finishRound(ctx context.Context, t *Tournament, idx int, log *slog.Logger) {
	t.mu.Lock()
	t.table.RecomputeBuchholz(t.rec.History())
	snap := t.snapshotLocked()
	t.mu.Unlock()

	o.save(ctx, t)
	rd := snap.Rounds[idx]
	o.deps.Publisher.Publish(events.New(events.TopicTournamentRound, snap.ID, map[string]any{
		"tournamentId": snap.ID,
		"round":        rd.Number,
		"pairings":     rd.Pairings,
		"byes":         rd.Byes,
		"standings":    snap.Standings,
	}))
	log.Info("tournament_round_completed", slog.Int("round", rd.Number), slog.Int("games", len(rd.Pairings)))
}

func (o *Orchestrator) save(ctx context.Context, t *Tournament) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.SaveTournament(context.WithoutCancel(ctx), t.Snapshot()); err != nil {
		o.log.Error("tournament_save_failed", slog.String("tournament", t.rec.ID), slog.Any("err", err))
	}
}

// Wait blocks until every tournament started in the background finishes.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) StopAll() {
	for _, t := range o.deps.Registry.List() {
		t.Stop()
	}
}

func waitFor(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
