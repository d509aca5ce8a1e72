package engine

import (
	"sort"
	"sync"
	"time"
)

// Live game statuses.
const (
	LiveStatusPlaying  = "running"
	LiveStatusFinished = "finished"
)

type LiveState struct {
	GameID       string         `json:"gameId"`
	BattleID     string         `json:"battleId,omitempty"`
	TournamentID string         `json:"tournamentId,omitempty"`
	White        string         `json:"white"`
	Black        string         `json:"black"`
	Opening      string         `json:"opening,omitempty"`
	Status       string         `json:"status"`
	Result       string         `json:"result"`
	Termination  string         `json:"termination,omitempty"`
	CurrentModel string         `json:"currentModel,omitempty"`
	MovesSAN     []string       `json:"moves"`
	FEN          string         `json:"fen"`
	Board        [][]SquareView `json:"board"`
	StartedAt    time.Time      `json:"startedAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type SquareView struct {
	Glyph string `json:"glyph"`
	Class string `json:"class"`
}

// LiveBoard holds a snapshot of every game currently being played (and, until
// pruned, recently finished ones). Readers always get copies.
type LiveBoard struct {
	mu    sync.RWMutex
	games map[string]*LiveState
}

func NewLiveBoard() *LiveBoard {
	return &LiveBoard{games: make(map[string]*LiveState)}
}

func (l *LiveBoard) Set(id string, update func(*LiveState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ls, ok := l.games[id]
	if !ok {
		ls = &LiveState{GameID: id}
		l.games[id] = ls
	}
	update(ls)
	ls.UpdatedAt = time.Now()
}

func (l *LiveBoard) Get(id string) (LiveState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ls, ok := l.games[id]
	if !ok {
		return LiveState{}, false
	}
	return copyLive(ls), true
}

// List returns snapshots ordered by start time, newest first.
func (l *LiveBoard) List() []LiveState {
	l.mu.RLock()
	out := make([]LiveState, 0, len(l.games))
	for _, ls := range l.games {
		out = append(out, copyLive(ls))
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (l *LiveBoard) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.games, id)
}

// Prune drops finished games not updated within maxAge and returns how many
// were removed.
func (l *LiveBoard) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, ls := range l.games {
		if ls.Status == LiveStatusFinished && ls.UpdatedAt.Before(cutoff) {
			delete(l.games, id)
			n++
		}
	}
	return n
}

func copyLive(ls *LiveState) LiveState {
	out := *ls
	out.MovesSAN = append([]string(nil), ls.MovesSAN...)
	out.Board = make([][]SquareView, len(ls.Board))
	for i := range ls.Board {
		out.Board[i] = append([]SquareView(nil), ls.Board[i]...)
	}
	return out
}
