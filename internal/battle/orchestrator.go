package battle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"llmarena/internal/book"
	"llmarena/internal/engine"
	"llmarena/internal/events"
	"llmarena/internal/rating"
	"llmarena/internal/registry"
)

// Player plays one game to completion.
type Player interface {
	Play(ctx context.Context, spec engine.GameSpec) engine.GameRecord
}

// Ratings applies the rating change of a decided game.
type Ratings interface {
	Apply(ctx context.Context, gameID, white, black, result string) (rating.Change, error)
}

// Store persists battle aggregates.
type Store interface {
	SaveBattle(ctx context.Context, rec Record) error
}

type Deps struct {
	Player    Player
	Ratings   Ratings
	Recorder  engine.Recorder
	Store     Store
	Publisher engine.Publisher
	Registry  *registry.Registry[*Battle]
}

type Orchestrator struct {
	log  *slog.Logger
	deps Deps

	mu        sync.RWMutex
	gameDelay time.Duration

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
		deps.Registry = registry.New[*Battle]()
	}
	return &Orchestrator{
		log:       log.With(slog.String("component", "battle")),
		deps:      deps,
		gameDelay: DefaultGameDelay,
	}
}

// SetGameDelay changes the pause between games for battles that do not set
// their own.
func (o *Orchestrator) SetGameDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	o.mu.Lock()
	o.gameDelay = d
	o.mu.Unlock()
}

func (o *Orchestrator) Registry() *registry.Registry[*Battle] {
	return o.deps.Registry
}

// Create validates cfg and registers a battle without starting it.
func (o *Orchestrator) Create(cfg Config) (*Battle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	if cfg.GameDelay <= 0 {
		o.mu.RLock()
		cfg.GameDelay = o.gameDelay
		o.mu.RUnlock()
	}
	b := &Battle{
		cfg: cfg,
		rec: Record{
			ID:        registry.NewID("battle"),
			White:     cfg.White,
			Black:     cfg.Black,
			NumGames:  cfg.NumGames,
			Opening:   cfg.Opening,
			Games:     []GameRef{},
			Status:    Running,
			StartedAt: time.Now().UTC(),
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	o.deps.Registry.Put(b.rec.ID, b)
	return b, nil
}

// Start creates a battle and runs it in the background. Configuration errors
// are returned before anything is launched.
func (o *Orchestrator) Start(ctx context.Context, cfg Config) (*Battle, error) {
	b, err := o.Create(cfg)
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Run(ctx, b)
	}()
	return b, nil
}

// Run plays every game of b and returns the final record.
func (o *Orchestrator) Run(ctx context.Context, b *Battle) Record {
	defer close(b.done)
	cfg := b.cfg
	log := o.log.With(slog.String("battle", b.rec.ID), slog.String("white", cfg.White), slog.String("black", cfg.Black))
	log.Info("battle_started", slog.Int("games", cfg.NumGames), slog.Int("concurrency", cfg.Concurrency))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			played := false
			for i := range jobs {
				if played && !waitFor(ctx, b.stop, cfg.GameDelay) {
					return
				}
				o.playGame(ctx, b, i, log)
				played = true
			}
		}()
	}

dispatch:
	for i := 0; i < cfg.NumGames; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		case <-b.stop:
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	b.mu.Lock()
	now := time.Now().UTC()
	b.rec.EndedAt = &now
	if len(b.rec.Games) == cfg.NumGames {
		b.rec.Status = Completed
	} else {
		b.rec.Status = Stopped
	}
	b.mu.Unlock()
	final := b.Snapshot()

	if o.deps.Store != nil {
		if err := o.deps.Store.SaveBattle(context.WithoutCancel(ctx), final); err != nil {
			log.Error("battle_save_failed", slog.Any("err", err))
		}
	}
	o.deps.Publisher.Publish(events.New(events.TopicBattleCompleted, final.ID, final))
	log.Info("battle_completed",
		slog.String("status", string(final.Status)),
		slog.Int("white_wins", final.WhiteWins),
		slog.Int("black_wins", final.BlackWins),
		slog.Int("draws", final.Draws),
		slog.Int("errors", final.Errors))
	return final
}

func (o *Orchestrator) playGame(ctx context.Context, b *Battle, idx int, log *slog.Logger) {
	cfg := b.cfg
	assign := engine.AssignColors(cfg.White, cfg.Black, idx, cfg.alternate())
	opening := cfg.Opening
	if len(cfg.Openings) > 0 {
		opening = book.Pick(cfg.Openings, idx)
	}

	b.mu.Lock()
	if idx+1 > b.rec.CurrentGame {
		b.rec.CurrentGame = idx + 1
	}
	b.mu.Unlock()

	g := o.deps.Player.Play(ctx, engine.GameSpec{
		ID:       engine.NewGameID(),
		White:    assign.White,
		Black:    assign.Black,
		Opening:  opening,
		MaxMoves: cfg.MaxMoves,
		BattleID: b.rec.ID,
		Stop:     b.stop,
	})
	if g.Termination == engine.Stopped {
		log.Info("battle_game_stopped", slog.String("game", g.ID))
		return
	}

	// persistence outlives a stop request so finished games are never lost.
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

	b.mu.Lock()
	last := b.rec.tally(idx, assign, g)
	snap := b.rec
	b.mu.Unlock()

	o.deps.Publisher.Publish(events.New(events.TopicBattleUpdate, snap.ID, map[string]any{
		"battleId":    snap.ID,
		"currentGame": len(snap.Games),
		"totalGames":  snap.NumGames,
		"whiteWins":   snap.WhiteWins,
		"blackWins":   snap.BlackWins,
		"draws":       snap.Draws,
		"errors":      snap.Errors,
		"progress":    snap.Progress(),
		"lastGame":    last,
	}))
}

// Wait blocks until every battle started by o has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// StopAll stops every battle still running.
func (o *Orchestrator) StopAll() {
	for _, b := range o.deps.Registry.List() {
		b.Stop()
	}
}

func waitFor(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
