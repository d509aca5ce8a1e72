package battle

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

// ErrInvalidConfig marks a battle that was rejected before any game started.
var ErrInvalidConfig = errors.New("invalid battle config")

const DefaultGameDelay = 2 * time.Second

type Status string

const (
	Running   Status = "running"
	Completed Status = "completed"
	Stopped   Status = "stopped"
)

type Config struct {
	White    string   `json:"whiteModel"`
	Black    string   `json:"blackModel"`
	NumGames int      `json:"numGames"`
	Opening  string   `json:"opening,omitempty"`
	Openings []string `json:"openings,omitempty"`
	// AlternateColors swaps sides on odd-indexed games; nil means true.
	AlternateColors *bool         `json:"alternateColors,omitempty"`
	Concurrency     int           `json:"concurrency,omitempty"`
	MaxMoves        int           `json:"maxMoves,omitempty"`
	GameDelay       time.Duration `json:"-"`
}

func (c Config) alternate() bool {
	return c.AlternateColors == nil || *c.AlternateColors
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.White) == "" {
		errs = multierror.Append(errs, errors.Wrap(ErrInvalidConfig, "white model is required"))
	}
	if strings.TrimSpace(c.Black) == "" {
		errs = multierror.Append(errs, errors.Wrap(ErrInvalidConfig, "black model is required"))
	}
	if c.White != "" && c.White == c.Black {
		errs = multierror.Append(errs, errors.Wrap(ErrInvalidConfig, "a model cannot battle itself"))
	}
	if c.NumGames <= 0 {
		errs = multierror.Append(errs, errors.Wrapf(ErrInvalidConfig, "numGames must be positive, got %d", c.NumGames))
	}
	if c.Concurrency < 0 {
		errs = multierror.Append(errs, errors.Wrapf(ErrInvalidConfig, "concurrency must not be negative, got %d", c.Concurrency))
	}
	return errs
}

// GameRef is the part of a finished game a battle keeps.
type GameRef struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	White       string `json:"white"`
	Black       string `json:"black"`
	Opening     string `json:"opening,omitempty"`
	Result      string `json:"result"`
	Termination string `json:"termination"`
	Moves       int    `json:"moves"`
	Fallbacks   int    `json:"fallbacks"`
}

// Record is the battle aggregate. Tallies are kept from the point of view of
// the configured white and black models, whatever colours they had in each
// game.
type Record struct {
	ID          string     `json:"id"`
	White       string     `json:"whiteModel"`
	Black       string     `json:"blackModel"`
	NumGames    int        `json:"numGames"`
	Opening     string     `json:"opening,omitempty"`
	Games       []GameRef  `json:"games"`
	WhiteWins   int        `json:"whiteWins"`
	BlackWins   int        `json:"blackWins"`
	Draws       int        `json:"draws"`
	Errors      int        `json:"errors"`
	Status      Status     `json:"status"`
	CurrentGame int        `json:"currentGame"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// Progress is the share of games finished, in percent.
func (r Record) Progress() float64 {
	if r.NumGames == 0 {
		return 0
	}
	return float64(len(r.Games)) * 100 / float64(r.NumGames)
}

// tally adds g to the record, keeping Games ordered by index however the
// games complete.
func (r *Record) tally(idx int, assign engine.ColorAssignment, g engine.GameRecord) GameRef {
	ref := GameRef{
		Index:       idx,
		ID:          g.ID,
		White:       g.White,
		Black:       g.Black,
		Opening:     g.Opening,
		Result:      g.Result,
		Termination: string(g.Termination),
		Moves:       len(g.Moves),
		Fallbacks:   g.Fallbacks,
	}
	at := sort.Search(len(r.Games), func(i int) bool { return r.Games[i].Index > idx })
	r.Games = append(r.Games, GameRef{})
	copy(r.Games[at+1:], r.Games[at:])
	r.Games[at] = ref
	if !g.Decided() {
		r.Errors++
		return ref
	}
	a, b := assign.Credit(g.Result)
	switch {
	case a == 1:
		r.WhiteWins++
	case b == 1:
		r.BlackWins++
	default:
		r.Draws++
	}
	return ref
}

// Battle is one running or finished series between two models.
type Battle struct {
	cfg Config

	mu  sync.Mutex
	rec Record

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (b *Battle) ID() string {
	return b.rec.ID
}

func (b *Battle) Snapshot() Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.rec
	out.Games = append([]GameRef(nil), b.rec.Games...)
	return out
}

// Stop asks the battle to end after the plies in flight.
func (b *Battle) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *Battle) Done() <-chan struct{} {
	return b.done
}

func (b *Battle) Finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// FinishedAt reports when the battle ended, or false while it is running.
func (b *Battle) FinishedAt() (time.Time, bool) {
	if !b.Finished() {
		return time.Time{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec.EndedAt == nil {
		return time.Time{}, true
	}
	return *b.rec.EndedAt, true
}
