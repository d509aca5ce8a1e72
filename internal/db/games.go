package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

// RecordGame stores a finished game and its moves in one transaction. Saving
// the same game ID again replaces the earlier copy.
func (s *Store) RecordGame(ctx context.Context, rec engine.GameRecord) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin record game")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result := rec.Result
	if result == "" {
		result = "*"
	}
	row := gameRow{
		ID:           rec.ID,
		White:        rec.White,
		Black:        rec.Black,
		Result:       result,
		Termination:  string(rec.Termination),
		Opening:      rec.Opening,
		BattleID:     rec.BattleID,
		TournamentID: rec.TournamentID,
		Round:        rec.Round,
		FinalFEN:     rec.FinalFEN,
		PGN:          rec.PGN,
		MoveCount:    len(rec.Moves),
		Fallbacks:    rec.Fallbacks,
		Error:        rec.Error,
		StartedAt:    formatTime(rec.StartedAt),
		EndedAt:      formatTime(rec.EndedAt),
	}
	if _, err = tx.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO games (id, white, black, result, termination, opening,
			battle_id, tournament_id, round, final_fen, pgn, move_count, fallbacks, error,
			started_at, ended_at)
		VALUES (:id, :white, :black, :result, :termination, :opening,
			:battle_id, :tournament_id, :round, :final_fen, :pgn, :move_count, :fallbacks, :error,
			:started_at, :ended_at)
	`, row); err != nil {
		return errors.Wrapf(err, "insert game %s", rec.ID)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM moves WHERE game_id = ?`, rec.ID); err != nil {
		return errors.Wrapf(err, "clear moves of %s", rec.ID)
	}
	for _, m := range rec.Moves {
		mr := moveRow{
			GameID:         rec.ID,
			Ply:            m.Ply,
			Number:         m.Number,
			Color:          string(m.Color),
			Model:          m.Model,
			Raw:            m.Raw,
			Notation:       m.Notation,
			SAN:            m.SAN,
			UCI:            m.UCI,
			FEN:            m.FEN,
			Captured:       m.Captured,
			Check:          m.Check,
			Checkmate:      m.Checkmate,
			Fallback:       m.Fallback,
			FallbackReason: m.FallbackReason,
			Opening:        m.Opening,
			PlayedAt:       formatTime(m.Timestamp),
		}
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO moves (game_id, ply, number, color, model, raw, notation, san, uci, fen,
				captured, is_check, is_checkmate, fallback, fallback_reason, opening, played_at)
			VALUES (:game_id, :ply, :number, :color, :model, :raw, :notation, :san, :uci, :fen,
				:captured, :is_check, :is_checkmate, :fallback, :fallback_reason, :opening, :played_at)
		`, mr); err != nil {
			return errors.Wrapf(err, "insert move %d of %s", m.Ply, rec.ID)
		}
	}
	err = tx.Commit()
	return errors.Wrap(err, "commit record game")
}

func (s *Store) GetGame(ctx context.Context, id string) (engine.GameRecord, error) {
	var row gameRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, white, black, result, termination, opening, battle_id, tournament_id,
			round, final_fen, pgn, move_count, fallbacks, error, started_at, ended_at
		FROM games
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.GameRecord{}, ErrNotFound
	}
	if err != nil {
		return engine.GameRecord{}, errors.Wrapf(err, "get game %s", id)
	}
	moves, err := s.GameMoves(ctx, id)
	if err != nil {
		return engine.GameRecord{}, err
	}
	return engine.GameRecord{
		ID:           row.ID,
		White:        row.White,
		Black:        row.Black,
		Moves:        moves,
		Result:       row.Result,
		Termination:  engine.Termination(row.Termination),
		Opening:      row.Opening,
		StartedAt:    parseTime(row.StartedAt),
		EndedAt:      parseTime(row.EndedAt),
		BattleID:     row.BattleID,
		TournamentID: row.TournamentID,
		Round:        row.Round,
		FinalFEN:     row.FinalFEN,
		PGN:          row.PGN,
		Fallbacks:    row.Fallbacks,
		Error:        row.Error,
	}, nil
}

// GameMoves lists the moves of a game in ply order.
func (s *Store) GameMoves(ctx context.Context, id string) ([]engine.Move, error) {
	var rows []moveRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT game_id, ply, number, color, model, raw, notation, san, uci, fen, captured,
			is_check, is_checkmate, fallback, fallback_reason, opening, played_at
		FROM moves
		WHERE game_id = ?
		ORDER BY ply ASC
	`, id); err != nil {
		return nil, errors.Wrapf(err, "moves of %s", id)
	}
	out := make([]engine.Move, len(rows))
	for i, r := range rows {
		out[i] = engine.Move{
			Ply:            r.Ply,
			Number:         r.Number,
			Color:          engine.Color(r.Color),
			Model:          r.Model,
			Raw:            r.Raw,
			Notation:       r.Notation,
			SAN:            r.SAN,
			UCI:            r.UCI,
			FEN:            r.FEN,
			Captured:       r.Captured,
			Check:          r.Check,
			Checkmate:      r.Checkmate,
			Fallback:       r.Fallback,
			FallbackReason: r.FallbackReason,
			Opening:        r.Opening,
			Timestamp:      parseTime(r.PlayedAt),
		}
	}
	return out, nil
}

// ListGames returns the total number of matching games and one page of them,
// most recent first.
func (s *Store) ListGames(ctx context.Context, filter GameFilter) (int, []GameSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var where []string
	var args []any
	switch {
	case filter.White != "" && filter.Black != "" && filter.AllowSwap:
		where = append(where, "((white = ? AND black = ?) OR (white = ? AND black = ?))")
		args = append(args, filter.White, filter.Black, filter.Black, filter.White)
	default:
		if filter.White != "" {
			where = append(where, "white = ?")
			args = append(args, filter.White)
		}
		if filter.Black != "" {
			where = append(where, "black = ?")
			args = append(args, filter.Black)
		}
	}
	if filter.Model != "" {
		where = append(where, "(white = ? OR black = ?)")
		args = append(args, filter.Model, filter.Model)
	}
	if filter.Result != "" {
		where = append(where, "result = ?")
		args = append(args, filter.Result)
	}
	if filter.Termination != "" {
		where = append(where, "termination = ?")
		args = append(args, filter.Termination)
	}
	if filter.BattleID != "" {
		where = append(where, "battle_id = ?")
		args = append(args, filter.BattleID)
	}
	if filter.TournamentID != "" {
		where = append(where, "tournament_id = ?")
		args = append(args, filter.TournamentID)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM games "+clause, args...); err != nil {
		return 0, nil, errors.Wrap(err, "count games")
	}

	var out []GameSummary
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, white, black, result, termination, opening, battle_id, tournament_id,
			round, move_count, fallbacks, started_at, ended_at
		FROM games
		`+clause+`
		ORDER BY ended_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, filter.Offset)...)
	if err != nil {
		return 0, nil, errors.Wrap(err, "list games")
	}
	return total, out, nil
}

// ResultsByPair folds decided games into one row per unordered pair of
// models, with A the lexically smaller name.
func (s *Store) ResultsByPair(ctx context.Context) ([]PairResult, error) {
	var rows []struct {
		White  string `db:"white"`
		Black  string `db:"black"`
		Result string `db:"result"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT white, black, result, COUNT(*) AS count
		FROM games
		WHERE result IN ('1-0', '0-1', '1/2-1/2') AND white <> black
		GROUP BY white, black, result
	`); err != nil {
		return nil, errors.Wrap(err, "results by pair")
	}

	counts := make(map[[2]string]*PairResult)
	var order [][2]string
	for _, row := range rows {
		a, b := row.White, row.Black
		swap := a > b
		if swap {
			a, b = b, a
		}
		key := [2]string{a, b}
		entry, ok := counts[key]
		if !ok {
			entry = &PairResult{A: a, B: b}
			counts[key] = entry
			order = append(order, key)
		}
		switch {
		case row.Result == "1/2-1/2":
			entry.Draws += row.Count
		case (row.Result == "1-0") != swap:
			entry.WinsA += row.Count
		default:
			entry.WinsB += row.Count
		}
	}

	out := make([]PairResult, 0, len(order))
	for _, key := range order {
		out = append(out, *counts[key])
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var agg struct {
		Total      int `db:"total"`
		WhiteWins  int `db:"white_wins"`
		BlackWins  int `db:"black_wins"`
		Draws      int `db:"draws"`
		Unfinished int `db:"unfinished"`
		Moves      int `db:"moves"`
		Fallbacks  int `db:"fallbacks"`
	}
	if err := s.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS total,
			COALESCE(SUM(result = '1-0'), 0) AS white_wins,
			COALESCE(SUM(result = '0-1'), 0) AS black_wins,
			COALESCE(SUM(result = '1/2-1/2'), 0) AS draws,
			COALESCE(SUM(result = '*'), 0) AS unfinished,
			COALESCE(SUM(move_count), 0) AS moves,
			COALESCE(SUM(fallbacks), 0) AS fallbacks
		FROM games
	`); err != nil {
		return Stats{}, errors.Wrap(err, "game stats")
	}
	st.TotalGames = agg.Total
	st.WhiteWins = agg.WhiteWins
	st.BlackWins = agg.BlackWins
	st.Draws = agg.Draws
	st.Unfinished = agg.Unfinished
	st.TotalMoves = agg.Moves
	st.FallbackMoves = agg.Fallbacks
	if agg.Total > 0 {
		st.AvgGameLength = float64(agg.Moves) / float64(agg.Total)
	}

	if err := s.db.SelectContext(ctx, &st.ByTermination, `
		SELECT result, termination, COUNT(*) AS count
		FROM games
		GROUP BY result, termination
		ORDER BY count DESC, result, termination
	`); err != nil {
		return Stats{}, errors.Wrap(err, "termination stats")
	}
	if err := s.db.GetContext(ctx, &st.Battles, `SELECT COUNT(*) FROM battles`); err != nil {
		return Stats{}, errors.Wrap(err, "count battles")
	}
	if err := s.db.GetContext(ctx, &st.Tournaments, `SELECT COUNT(*) FROM tournaments`); err != nil {
		return Stats{}, errors.Wrap(err, "count tournaments")
	}
	return st, nil
}
