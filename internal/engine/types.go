package engine

import (
	"context"
	"time"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

type Termination string

const (
	Checkmate Termination = "checkmate"
	Stalemate Termination = "stalemate"
	Draw      Termination = "draw"
	MoveLimit Termination = "move-limit"
	Errored   Termination = "error"
	// Stopped games never finished; their result stays "*".
	Stopped Termination = "stopped"
)

// Fallback reasons recorded on moves chosen at random.
const (
	FallbackProposalError = "proposal_error"
	FallbackNoMatch       = "no_match"
	FallbackNoProposer    = "no_proposer"
)

// Move is one recorded ply. Notation is the arbitrated proposal and stays
// empty when the move was picked at random.
type Move struct {
	Ply            int       `json:"ply"`
	Number         int       `json:"number"`
	Color          Color     `json:"color"`
	Model          string    `json:"model"`
	Raw            string    `json:"raw,omitempty"`
	Notation       string    `json:"notation,omitempty"`
	SAN            string    `json:"san"`
	UCI            string    `json:"uci"`
	FEN            string    `json:"fen"`
	Captured       string    `json:"captured,omitempty"`
	Check          bool      `json:"check"`
	Checkmate      bool      `json:"checkmate"`
	Fallback       bool      `json:"fallback"`
	FallbackReason string    `json:"fallbackReason,omitempty"`
	Opening        bool      `json:"opening,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type GameRecord struct {
	ID           string      `json:"id"`
	White        string      `json:"white"`
	Black        string      `json:"black"`
	Moves        []Move      `json:"moves"`
	Result       string      `json:"result"`
	Termination  Termination `json:"termination,omitempty"`
	Opening      string      `json:"opening,omitempty"`
	StartedAt    time.Time   `json:"startedAt"`
	EndedAt      time.Time   `json:"endedAt"`
	BattleID     string      `json:"battleId,omitempty"`
	TournamentID string      `json:"tournamentId,omitempty"`
	Round        int         `json:"round,omitempty"`
	FinalFEN     string      `json:"finalFen"`
	PGN          string      `json:"pgn,omitempty"`
	Fallbacks    int         `json:"fallbacks"`
	Error        string      `json:"error,omitempty"`
}

// Decided reports whether the game reached a result other than "*".
func (g GameRecord) Decided() bool {
	return g.Result == "1-0" || g.Result == "0-1" || g.Result == "1/2-1/2"
}

func (g GameRecord) Duration() time.Duration {
	if g.EndedAt.IsZero() {
		return 0
	}
	return g.EndedAt.Sub(g.StartedAt)
}

func (g GameRecord) SANs() []string {
	out := make([]string, len(g.Moves))
	for i, m := range g.Moves {
		out[i] = m.SAN
	}
	return out
}

// GameSpec describes a game to play. Stop is observed before every ply.
type GameSpec struct {
	ID           string
	White        string
	Black        string
	Opening      string
	MaxMoves     int
	BattleID     string
	TournamentID string
	Round        int
	Stop         <-chan struct{}
}

// Recorder stores finished games.
type Recorder interface {
	RecordGame(ctx context.Context, rec GameRecord) error
}
