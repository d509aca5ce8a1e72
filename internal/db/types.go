package db

import "github.com/pkg/errors"

// ErrNotFound is returned by lookups of a single row that does not exist.
var ErrNotFound = errors.New("not found")

type ModelRow struct {
	Name        string `db:"name" json:"name"`
	Provider    string `db:"provider" json:"provider"`
	ModelID     string `db:"model_id" json:"modelId"`
	Description string `db:"description" json:"description,omitempty"`
	InitialElo  int    `db:"initial_elo" json:"initialElo"`
	Rating      int    `db:"rating" json:"rating"`
	Games       int    `db:"games" json:"games"`
	Wins        int    `db:"wins" json:"wins"`
	Draws       int    `db:"draws" json:"draws"`
	Losses      int    `db:"losses" json:"losses"`
	Active      bool   `db:"active" json:"active"`
	UpdatedAt   string `db:"updated_at" json:"updatedAt"`
}

type gameRow struct {
	ID           string `db:"id"`
	White        string `db:"white"`
	Black        string `db:"black"`
	Result       string `db:"result"`
	Termination  string `db:"termination"`
	Opening      string `db:"opening"`
	BattleID     string `db:"battle_id"`
	TournamentID string `db:"tournament_id"`
	Round        int    `db:"round"`
	FinalFEN     string `db:"final_fen"`
	PGN          string `db:"pgn"`
	MoveCount    int    `db:"move_count"`
	Fallbacks    int    `db:"fallbacks"`
	Error        string `db:"error"`
	StartedAt    string `db:"started_at"`
	EndedAt      string `db:"ended_at"`
}

type moveRow struct {
	GameID         string `db:"game_id"`
	Ply            int    `db:"ply"`
	Number         int    `db:"number"`
	Color          string `db:"color"`
	Model          string `db:"model"`
	Raw            string `db:"raw"`
	Notation       string `db:"notation"`
	SAN            string `db:"san"`
	UCI            string `db:"uci"`
	FEN            string `db:"fen"`
	Captured       string `db:"captured"`
	Check          bool   `db:"is_check"`
	Checkmate      bool   `db:"is_checkmate"`
	Fallback       bool   `db:"fallback"`
	FallbackReason string `db:"fallback_reason"`
	Opening        bool   `db:"opening"`
	PlayedAt       string `db:"played_at"`
}

// GameSummary is a stored game without its moves.
type GameSummary struct {
	ID           string `db:"id" json:"id"`
	White        string `db:"white" json:"white"`
	Black        string `db:"black" json:"black"`
	Result       string `db:"result" json:"result"`
	Termination  string `db:"termination" json:"termination"`
	Opening      string `db:"opening" json:"opening,omitempty"`
	BattleID     string `db:"battle_id" json:"battleId,omitempty"`
	TournamentID string `db:"tournament_id" json:"tournamentId,omitempty"`
	Round        int    `db:"round" json:"round,omitempty"`
	MoveCount    int    `db:"move_count" json:"moveCount"`
	Fallbacks    int    `db:"fallbacks" json:"fallbacks"`
	StartedAt    string `db:"started_at" json:"startedAt"`
	EndedAt      string `db:"ended_at" json:"endedAt"`
}

// GameFilter narrows ListGames. Model matches either colour; White and Black
// match exactly unless AllowSwap also accepts the reversed pairing.
type GameFilter struct {
	Model        string
	White        string
	Black        string
	AllowSwap    bool
	Result       string
	Termination  string
	BattleID     string
	TournamentID string
	Limit        int
	Offset       int
}

type PairResult struct {
	A     string `json:"a"`
	B     string `json:"b"`
	WinsA int    `json:"winsA"`
	WinsB int    `json:"winsB"`
	Draws int    `json:"draws"`
}

type EloPoint struct {
	GameID       string `db:"game_id" json:"gameId"`
	Opponent     string `db:"opponent" json:"opponent"`
	Result       string `db:"result" json:"result"`
	RatingBefore int    `db:"rating_before" json:"ratingBefore"`
	RatingAfter  int    `db:"rating_after" json:"ratingAfter"`
	RecordedAt   string `db:"recorded_at" json:"recordedAt"`
}

type ResultCount struct {
	Result      string `db:"result" json:"result"`
	Termination string `db:"termination" json:"termination"`
	Count       int    `db:"count" json:"count"`
}

// Stats aggregates every stored game.
type Stats struct {
	TotalGames    int           `json:"totalGames"`
	WhiteWins     int           `json:"whiteWins"`
	BlackWins     int           `json:"blackWins"`
	Draws         int           `json:"draws"`
	Unfinished    int           `json:"unfinished"`
	TotalMoves    int           `json:"totalMoves"`
	FallbackMoves int           `json:"fallbackMoves"`
	AvgGameLength float64       `json:"avgGameLength"`
	Battles       int           `json:"battles"`
	Tournaments   int           `json:"tournaments"`
	ByTermination []ResultCount `json:"byTermination"`
}
