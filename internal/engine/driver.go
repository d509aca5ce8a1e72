package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"

	"llmarena/internal/arbiter"
	"llmarena/internal/book"
	"llmarena/internal/events"
)

const DefaultMaxMoves = 200

type Options struct {
	MaxMoves        int
	ProposalTimeout time.Duration
	MoveDelay       time.Duration
	MoveJitter      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxMoves:        DefaultMaxMoves,
		ProposalTimeout: 30 * time.Second,
		MoveDelay:       time.Second,
		MoveJitter:      500 * time.Millisecond,
	}
}

// Publisher receives game events.
type Publisher interface {
	Publish(ev events.Event)
}

// GameUpdate is the payload of game-update events.
type GameUpdate struct {
	GameID       string   `json:"gameId"`
	Move         Move     `json:"move"`
	FEN          string   `json:"fen"`
	Turn         Color    `json:"turn"`
	GameOver     bool     `json:"gameOver"`
	CurrentModel string   `json:"currentModel"`
	MoveCount    int      `json:"moveCount"`
	History      []string `json:"history"`
}

// Driver plays single games between two models. One Driver serves any number
// of concurrent games; per-game state lives on the stack of Play.
type Driver struct {
	log       *slog.Logger
	proposers ProposerSource
	pub       Publisher
	live      *LiveBoard
	arbiter   arbiter.Arbiter

	mu   sync.RWMutex
	opts Options

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewDriver(log *slog.Logger, proposers ProposerSource, pub Publisher, live *LiveBoard, opts Options) *Driver {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = events.Discard{}
	}
	if live == nil {
		live = NewLiveBoard()
	}
	return &Driver{
		log:       log.With(slog.String("component", "engine")),
		proposers: proposers,
		pub:       pub,
		live:      live,
		opts:      normalizeOptions(opts),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func normalizeOptions(o Options) Options {
	if o.MaxMoves <= 0 {
		o.MaxMoves = DefaultMaxMoves
	}
	if o.ProposalTimeout <= 0 {
		o.ProposalTimeout = 30 * time.Second
	}
	if o.MoveDelay < 0 {
		o.MoveDelay = 0
	}
	if o.MoveJitter < 0 {
		o.MoveJitter = 0
	}
	return o
}

func (d *Driver) SetOptions(o Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = normalizeOptions(o)
}

func (d *Driver) Options() Options {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.opts
}

func (d *Driver) SetArbiter(a arbiter.Arbiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arbiter = a
}

// Seed makes random fallback moves reproducible.
func (d *Driver) Seed(seed int64) {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	d.rng = rand.New(rand.NewSource(seed))
}

func (d *Driver) Live() *LiveBoard {
	return d.live
}

func (d *Driver) intn(n int) int {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.Intn(n)
}

func (d *Driver) moveDelay(o Options) time.Duration {
	if o.MoveJitter <= 0 {
		return o.MoveDelay
	}
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return o.MoveDelay + time.Duration(d.rng.Int63n(int64(o.MoveJitter)))
}

func NewGameID() string {
	return "game_" + uuid.NewString()
}

// Play drives one game to completion and returns its record. Proposal and
// arbitration failures fall back to a random legal move; only a move the
// rules oracle refuses ends the game early with an error termination.
// A closed spec.Stop or a cancelled ctx ends the game as stopped before the
// next ply is requested.
func (d *Driver) Play(ctx context.Context, spec GameSpec) GameRecord {
	d.mu.RLock()
	opts := d.opts
	arb := d.arbiter
	d.mu.RUnlock()

	maxMoves := spec.MaxMoves
	if maxMoves <= 0 {
		maxMoves = opts.MaxMoves
	}
	if spec.ID == "" {
		spec.ID = NewGameID()
	}

	rec := GameRecord{
		ID:           spec.ID,
		White:        spec.White,
		Black:        spec.Black,
		Opening:      spec.Opening,
		Result:       "*",
		StartedAt:    time.Now().UTC(),
		BattleID:     spec.BattleID,
		TournamentID: spec.TournamentID,
		Round:        spec.Round,
	}
	log := d.log.With(slog.String("game", rec.ID), slog.String("white", rec.White), slog.String("black", rec.Black))

	game := chess.NewGame()
	rec.Moves = append(rec.Moves, d.applyOpening(game, spec.Opening)...)

	d.live.Set(rec.ID, func(ls *LiveState) {
		ls.BattleID = rec.BattleID
		ls.TournamentID = rec.TournamentID
		ls.White = rec.White
		ls.Black = rec.Black
		ls.Opening = rec.Opening
		ls.Status = LiveStatusPlaying
		ls.Result = "*"
		ls.StartedAt = rec.StartedAt
		ls.MovesSAN = rec.SANs()
		ls.FEN = game.Position().String()
		ls.Board = boardFromPosition(game.Position())
	})
	d.pub.Publish(events.New(events.TopicGameStarted, rec.ID, map[string]any{
		"gameId":  rec.ID,
		"white":   rec.White,
		"black":   rec.Black,
		"opening": rec.Opening,
		"fen":     game.Position().String(),
	}))
	log.Info("game_started", slog.String("opening", rec.Opening), slog.Int("opening_plies", len(rec.Moves)))

	for {
		if game.Outcome() != chess.NoOutcome {
			rec.Result, rec.Termination = outcomeToResult(game)
			break
		}
		if stopped(ctx, spec.Stop) {
			rec.Termination = Stopped
			break
		}
		if len(rec.Moves) >= maxMoves {
			rec.Result = "1/2-1/2"
			rec.Termination = MoveLimit
			break
		}

		mv, err := d.playPly(ctx, opts, arb, game, &rec, log)
		if err != nil {
			rec.Termination = Errored
			rec.Error = err.Error()
			log.Error("game_aborted", slog.Any("err", err))
			break
		}

		over := game.Outcome() != chess.NoOutcome || claimDraw(game)
		rec.Moves = append(rec.Moves, mv)
		if mv.Fallback {
			rec.Fallbacks++
		}

		current := mv.Model
		if mv.Fallback {
			current += " (random)"
		}
		pos := game.Position()
		d.live.Set(rec.ID, func(ls *LiveState) {
			ls.MovesSAN = append(ls.MovesSAN, mv.SAN)
			ls.FEN = mv.FEN
			ls.Board = boardFromPosition(pos)
			ls.CurrentModel = current
		})
		d.pub.Publish(events.New(events.TopicGameUpdate, rec.ID, GameUpdate{
			GameID:       rec.ID,
			Move:         mv,
			FEN:          mv.FEN,
			Turn:         colorOf(pos.Turn()),
			GameOver:     over,
			CurrentModel: current,
			MoveCount:    len(rec.Moves),
			History:      rec.SANs(),
		}))

		if !over {
			sleep(ctx, spec.Stop, d.moveDelay(opts))
		}
	}

	rec.EndedAt = time.Now().UTC()
	rec.FinalFEN = game.Position().String()
	rec.PGN = FormatPGN(rec)

	d.live.Set(rec.ID, func(ls *LiveState) {
		ls.Status = LiveStatusFinished
		ls.Result = rec.Result
		ls.Termination = string(rec.Termination)
	})
	d.pub.Publish(events.New(events.TopicGameCompleted, rec.ID, map[string]any{
		"gameId":      rec.ID,
		"white":       rec.White,
		"black":       rec.Black,
		"result":      rec.Result,
		"termination": rec.Termination,
		"moveCount":   len(rec.Moves),
		"duration":    rec.Duration().Seconds(),
		"fallbacks":   rec.Fallbacks,
	}))
	log.Info("game_finished",
		slog.String("result", rec.Result),
		slog.String("termination", string(rec.Termination)),
		slog.Int("plies", len(rec.Moves)),
		slog.Int("fallbacks", rec.Fallbacks))
	return rec
}

// playPly asks the side to move for a proposal, arbitrates it and applies the
// resulting move to game.
func (d *Driver) playPly(ctx context.Context, opts Options, arb arbiter.Arbiter, game *chess.Game, rec *GameRecord, log *slog.Logger) (Move, error) {
	pos := game.Position()
	color := colorOf(pos.Turn())
	model := rec.White
	if color == Black {
		model = rec.Black
	}
	ply := len(rec.Moves) + 1

	valid := pos.ValidMoves()
	legal := make([]string, len(valid))
	n := chess.AlgebraicNotation{}
	for i, v := range valid {
		legal[i] = n.Encode(pos, v)
	}
	last := len(rec.Moves) - 1
	req := ProposalRequest{
		GameID:     rec.ID,
		Model:      model,
		Color:      color,
		FEN:        pos.String(),
		History:    rec.SANs(),
		Legal:      legal,
		InCheck:    last >= 0 && rec.Moves[last].Check,
		MoveNumber: moveNumber(ply),
	}

	raw, reason := d.propose(ctx, opts, req, log)
	idx := -1
	notation := ""
	if reason == "" {
		if san, ok := arb.Resolve(raw, legal); ok {
			notation = san
			idx = indexOf(legal, san)
		} else {
			reason = FallbackNoMatch
		}
	}
	if idx < 0 {
		idx = d.intn(len(valid))
		log.Warn("fallback_move",
			slog.String("model", model),
			slog.Int("ply", ply),
			slog.String("reason", reason),
			slog.String("move", legal[idx]))
	}

	mv := valid[idx]
	out := Move{
		Ply:            ply,
		Number:         moveNumber(ply),
		Color:          color,
		Model:          model,
		Raw:            raw,
		Notation:       notation,
		SAN:            legal[idx],
		UCI:            chess.UCINotation{}.Encode(pos, mv),
		Captured:       capturedBy(pos, mv),
		Check:          mv.HasTag(chess.Check),
		Fallback:       notation == "",
		FallbackReason: reason,
	}
	if err := game.Move(mv); err != nil {
		return Move{}, err
	}
	out.FEN = game.Position().String()
	out.Checkmate = game.Method() == chess.Checkmate
	out.Timestamp = time.Now().UTC()
	return out, nil
}

func (d *Driver) propose(ctx context.Context, opts Options, req ProposalRequest, log *slog.Logger) (string, string) {
	if d.proposers == nil {
		return "", FallbackNoProposer
	}
	p, err := d.proposers.Proposer(req.Model)
	if err != nil {
		log.Warn("proposer_missing", slog.String("model", req.Model), slog.Any("err", err))
		return "", FallbackNoProposer
	}
	pctx, cancel := context.WithTimeout(ctx, opts.ProposalTimeout)
	defer cancel()
	raw, err := p.Propose(pctx, req)
	if err != nil {
		log.Warn("proposal_failed", slog.String("model", req.Model), slog.Int("move", req.MoveNumber), slog.Any("err", err))
		return raw, FallbackProposalError
	}
	return raw, ""
}

// applyOpening plays label's moves and records them as opening plies.
func (d *Driver) applyOpening(game *chess.Game, label string) []Move {
	if label == "" {
		return nil
	}
	var out []Move
	n := chess.AlgebraicNotation{}
	for _, tok := range book.Parse(label) {
		pos := game.Position()
		mv, err := n.Decode(pos, tok)
		if err != nil {
			d.log.Warn("opening_move_skipped", slog.String("opening", label), slog.String("move", tok))
			continue
		}
		ply := len(out) + 1
		m := Move{
			Ply:      ply,
			Number:   moveNumber(ply),
			Color:    colorOf(pos.Turn()),
			Model:    "opening",
			Notation: n.Encode(pos, mv),
			SAN:      n.Encode(pos, mv),
			UCI:      chess.UCINotation{}.Encode(pos, mv),
			Captured: capturedBy(pos, mv),
			Check:    mv.HasTag(chess.Check),
			Opening:  true,
		}
		if err := game.Move(mv); err != nil {
			continue
		}
		m.FEN = game.Position().String()
		m.Timestamp = time.Now().UTC()
		out = append(out, m)
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// sleep waits for d unless ctx or stop fire first, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
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
