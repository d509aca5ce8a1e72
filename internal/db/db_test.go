package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llmarena/internal/battle"
	"llmarena/internal/engine"
	"llmarena/internal/rating"
	"llmarena/internal/tournament"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "arena.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleGame(id, white, black, result string, ended time.Time) engine.GameRecord {
	return engine.GameRecord{
		ID:          id,
		White:       white,
		Black:       black,
		Result:      result,
		Termination: engine.Checkmate,
		Opening:     "1. e4",
		StartedAt:   ended.Add(-time.Minute),
		EndedAt:     ended,
		FinalFEN:    "8/8/8/8/8/8/8/8 w - - 0 1",
		PGN:         "1. e4 *",
		Fallbacks:   1,
		Moves: []engine.Move{
			{Ply: 1, Number: 1, Color: engine.White, Model: white, SAN: "e4", UCI: "e2e4", FEN: "fen1", Opening: true, Timestamp: ended.Add(-50 * time.Second)},
			{Ply: 2, Number: 1, Color: engine.Black, Model: black, Raw: "hmm", SAN: "e5", UCI: "e7e5", FEN: "fen2", Fallback: true, FallbackReason: engine.FallbackNoMatch, Timestamp: ended.Add(-40 * time.Second)},
			{Ply: 3, Number: 2, Color: engine.White, Model: white, Raw: `My move: "Qh5"`, Notation: "Qh5", SAN: "Qh5", UCI: "d1h5", FEN: "fen3", Check: true, Timestamp: ended.Add(-30 * time.Second)},
		},
	}
}

func TestRecordAndGetGame(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ended := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := sampleGame("game_1", "GPT-4o", "Claude-3.5-Sonnet", "1-0", ended)
	require.NoError(t, s.RecordGame(ctx, rec))

	got, err := s.GetGame(ctx, "game_1")
	require.NoError(t, err)
	require.Equal(t, rec.White, got.White)
	require.Equal(t, rec.Result, got.Result)
	require.Equal(t, engine.Checkmate, got.Termination)
	require.True(t, got.EndedAt.Equal(ended))
	require.Len(t, got.Moves, 3)
	require.Equal(t, []string{"e4", "e5", "Qh5"}, got.SANs())
	require.True(t, got.Moves[0].Opening)
	require.True(t, got.Moves[1].Fallback)
	require.Equal(t, engine.FallbackNoMatch, got.Moves[1].FallbackReason)
	require.True(t, got.Moves[2].Check)
	require.Equal(t, "Qh5", got.Moves[2].Notation)

	// saving again replaces rather than duplicating moves
	rec.Moves = rec.Moves[:2]
	require.NoError(t, s.RecordGame(ctx, rec))
	moves, err := s.GameMoves(ctx, "game_1")
	require.NoError(t, err)
	require.Len(t, moves, 2)

	_, err = s.GetGame(ctx, "game_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListGamesFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	games := []engine.GameRecord{
		sampleGame("g1", "A", "B", "1-0", base),
		sampleGame("g2", "B", "A", "1/2-1/2", base.Add(time.Minute)),
		sampleGame("g3", "A", "C", "0-1", base.Add(2*time.Minute)),
		sampleGame("g4", "C", "B", "*", base.Add(3*time.Minute)),
	}
	games[3].BattleID = "battle_x"
	for _, g := range games {
		require.NoError(t, s.RecordGame(ctx, g))
	}

	total, page, err := s.ListGames(ctx, GameFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, "g4", page[0].ID)

	total, page, err = s.ListGames(ctx, GameFilter{White: "A", Black: "B", AllowSwap: true})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "g2", page[0].ID)

	total, _, err = s.ListGames(ctx, GameFilter{White: "A", Black: "B"})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	total, _, err = s.ListGames(ctx, GameFilter{Model: "C"})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	total, page, err = s.ListGames(ctx, GameFilter{BattleID: "battle_x"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 3, page[0].MoveCount)

	total, page, err = s.ListGames(ctx, GameFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, page, 2)
	require.Equal(t, "g2", page[0].ID)
}

func TestResultsByPairAndStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, g := range []engine.GameRecord{
		sampleGame("g1", "A", "B", "1-0", base),
		sampleGame("g2", "B", "A", "1-0", base),
		sampleGame("g3", "B", "A", "0-1", base),
		sampleGame("g4", "A", "B", "1/2-1/2", base),
		sampleGame("g5", "A", "B", "*", base),
	} {
		g.EndedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordGame(ctx, g))
	}

	pairs, err := s.ResultsByPair(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, PairResult{A: "A", B: "B", WinsA: 2, WinsB: 1, Draws: 1}, pairs[0])

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, st.TotalGames)
	require.Equal(t, 2, st.WhiteWins)
	require.Equal(t, 1, st.BlackWins)
	require.Equal(t, 1, st.Draws)
	require.Equal(t, 1, st.Unfinished)
	require.Equal(t, 15, st.TotalMoves)
	require.Equal(t, 5, st.FallbackMoves)
	require.InDelta(t, 3.0, st.AvgGameLength, 1e-9)
	require.NotEmpty(t, st.ByTermination)
}

func TestModelsAndRatingChanges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertModel(ctx, ModelRow{Name: "GPT-4o", Provider: "openai", ModelID: "gpt-4o", InitialElo: 1850, Active: true}))
	require.NoError(t, s.UpsertModel(ctx, ModelRow{Name: "Random", Provider: "baseline", InitialElo: 1200, Active: true}))

	c := rating.Change{
		GameID: "g1", White: "GPT-4o", Black: "Random", Result: "1-0",
		WhiteBefore: 1850, BlackBefore: 1200, WhiteAfter: 1852, BlackAfter: 1198,
		At: time.Now(),
	}
	require.NoError(t, s.RecordRatingChange(ctx, c))
	c2 := rating.Change{
		GameID: "g2", White: "Random", Black: "GPT-4o", Result: "1/2-1/2",
		WhiteBefore: 1198, BlackBefore: 1852, WhiteAfter: 1213, BlackAfter: 1837,
		At: time.Now(),
	}
	require.NoError(t, s.RecordRatingChange(ctx, c2))

	// refreshing static details keeps the rating
	require.NoError(t, s.UpsertModel(ctx, ModelRow{Name: "GPT-4o", Provider: "openai", ModelID: "gpt-4o", InitialElo: 1850, Active: false}))

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "GPT-4o", models[0].Name)
	require.Equal(t, 1837, models[0].Rating)
	require.Equal(t, 2, models[0].Games)
	require.Equal(t, 1, models[0].Wins)
	require.Equal(t, 1, models[0].Draws)
	require.False(t, models[0].Active)

	random, err := s.GetModel(ctx, "Random")
	require.NoError(t, err)
	require.Equal(t, 1213, random.Rating)
	require.Equal(t, 1, random.Losses)

	hist, err := s.EloHistory(ctx, "GPT-4o", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "win", hist[0].Result)
	require.Equal(t, "draw", hist[1].Result)
	require.Equal(t, 1852, hist[1].RatingBefore)

	last, err := s.EloHistory(ctx, "GPT-4o", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	require.Equal(t, "g2", last[0].GameID)

	// unknown models are created on their first rated game
	require.NoError(t, s.RecordRatingChange(ctx, rating.Change{
		GameID: "g3", White: "New", Black: "Random", Result: "0-1",
		WhiteBefore: 1500, BlackBefore: 1213, WhiteAfter: 1480, BlackAfter: 1233,
	}))
	fresh, err := s.GetModel(ctx, "New")
	require.NoError(t, err)
	require.Equal(t, 1480, fresh.Rating)

	require.Error(t, s.RecordRatingChange(ctx, rating.Change{GameID: "g4", White: "A", Black: "B", Result: "*"}))
	_, err = s.GetModel(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBattlesAndTournaments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	b := battle.Record{ID: "battle_1", White: "A", Black: "B", NumGames: 2, Status: battle.Running, StartedAt: now}
	require.NoError(t, s.SaveBattle(ctx, b))
	b.Status = battle.Completed
	b.WhiteWins, b.Draws = 1, 1
	b.Games = []battle.GameRef{{Index: 0, ID: "g1", Result: "1-0"}, {Index: 1, ID: "g2", Result: "1/2-1/2"}}
	require.NoError(t, s.SaveBattle(ctx, b))

	got, err := s.GetBattle(ctx, "battle_1")
	require.NoError(t, err)
	require.Equal(t, battle.Completed, got.Status)
	require.Len(t, got.Games, 2)
	list, err := s.ListBattles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = s.GetBattle(ctx, "battle_2")
	require.ErrorIs(t, err, ErrNotFound)

	tr := tournament.Record{
		ID: "tourn_1", Name: "Spring", Type: tournament.RoundRobin,
		Participants: []string{"A", "B"}, Status: tournament.Completed, Winner: "A",
		CreatedAt: now,
	}
	require.NoError(t, s.SaveTournament(ctx, tr))
	tr2 := tr
	tr2.ID, tr2.Status, tr2.Winner, tr2.CreatedAt = "tourn_2", tournament.Running, "", now.Add(time.Second)
	require.NoError(t, s.SaveTournament(ctx, tr2))

	gotT, err := s.GetTournament(ctx, "tourn_1")
	require.NoError(t, err)
	require.Equal(t, "A", gotT.Winner)
	all, err := s.ListTournaments(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "tourn_2", all[0].ID)
	running, err := s.ListTournaments(ctx, tournament.Running, 0)
	require.NoError(t, err)
	require.Len(t, running, 1)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Battles)
	require.Equal(t, 2, st.Tournaments)
}

func TestSettingsAndInstanceID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Setting(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.PutSetting(ctx, "k", "v1"))
	require.NoError(t, s.PutSetting(ctx, "k", "v2"))
	v, err := s.Setting(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", v)

	id1, err := s.InstanceID(ctx)
	require.NoError(t, err)
	id2, err := s.InstanceID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
}
