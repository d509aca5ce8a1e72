package app

import (
	"context"
	"log/slog"

	"llmarena/internal/engine"
)

// StartGame plays a single game in the background and returns its ID at
// once. The result is recorded and rated like any battle game.
func (a *App) StartGame(_ context.Context, white, black, opening string) (string, error) {
	spec := engine.GameSpec{
		ID:      engine.NewGameID(),
		White:   white,
		Black:   black,
		Opening: opening,
	}
	a.games.Add(1)
	go func() {
		defer a.games.Done()
		a.playGame(a.ctx, spec)
	}()
	return spec.ID, nil
}

func (a *App) playGame(ctx context.Context, spec engine.GameSpec) engine.GameRecord {
	log := a.log.With(slog.String("game", spec.ID))
	g := a.driver.Play(ctx, spec)
	if g.Termination == engine.Stopped {
		log.Info("game_stopped")
		return g
	}
	pctx := context.WithoutCancel(ctx)
	if err := a.recorder.RecordGame(pctx, g); err != nil {
		log.Error("game_record_failed", slog.Any("err", err))
	}
	if g.Decided() {
		if _, err := a.ratings.Apply(pctx, g.ID, g.White, g.Black, g.Result); err != nil {
			log.Error("rating_update_failed", slog.Any("err", err))
		}
	}
	return g
}
