package tournament

import (
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type Type string

const (
	RoundRobin        Type = "round-robin"
	Swiss             Type = "swiss"
	Elimination       Type = "elimination"
	DoubleElimination Type = "double-elimination"
	Arena             Type = "arena"
)

func (t Type) Valid() bool {
	switch t {
	case RoundRobin, Swiss, Elimination, DoubleElimination, Arena:
		return true
	}
	return false
}

func (t Type) knockout() bool {
	return t == Elimination || t == DoubleElimination
}

type Status string

const (
	Created   Status = "created"
	Running   Status = "running"
	Paused    Status = "paused"
	Completed Status = "completed"
	Cancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == Completed || s == Cancelled
}

var (
	ErrInvalidConfig      = errors.New("invalid tournament config")
	ErrTooFewParticipants = errors.New("at least two participants are required")
	ErrUnknownType        = errors.New("unknown tournament type")
	ErrBadTransition      = errors.New("invalid tournament state transition")
)

const (
	DefaultGamesPerPairing = 2
	DefaultConcurrentGames = 4
	DefaultArenaRounds     = 10
	DefaultBatchDelay      = 2 * time.Second
	DefaultRoundInterval   = 5 * time.Second

	// Bye marks the empty slot in an odd round-robin field.
	Bye = "BYE"
)

type Config struct {
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Type            Type          `json:"type"`
	Participants    []string      `json:"participants"`
	GamesPerPairing int           `json:"gamesPerPairing,omitempty"`
	MaxMoves        int           `json:"maxMoves,omitempty"`
	ConcurrentGames int           `json:"concurrentGames,omitempty"`
	RoundInterval   time.Duration `json:"-"`
	BatchDelay      time.Duration `json:"-"`
	Openings        []string      `json:"openings,omitempty"`
	ArenaRounds     int           `json:"arenaRounds,omitempty"`
	StartAt         *time.Time    `json:"startAt,omitempty"`
	K               float64       `json:"-"`
	// Seed makes random pairings reproducible; zero means time-based.
	Seed int64 `json:"-"`
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs error
	if !c.Type.Valid() {
		errs = multierror.Append(errs, errors.Wrapf(ErrUnknownType, "%q", c.Type))
	}
	seen := make(map[string]bool, len(c.Participants))
	distinct := 0
	for _, p := range c.Participants {
		p = strings.TrimSpace(p)
		if p == "" || p == Bye {
			errs = multierror.Append(errs, errors.Wrapf(ErrInvalidConfig, "invalid participant name %q", p))
			continue
		}
		if seen[p] {
			errs = multierror.Append(errs, errors.Wrapf(ErrInvalidConfig, "duplicate participant %q", p))
			continue
		}
		seen[p] = true
		distinct++
	}
	if distinct < 2 {
		errs = multierror.Append(errs, ErrTooFewParticipants)
	}
	if c.GamesPerPairing < 0 || c.ConcurrentGames < 0 || c.ArenaRounds < 0 || c.MaxMoves < 0 {
		errs = multierror.Append(errs, errors.Wrap(ErrInvalidConfig, "counts must not be negative"))
	}
	return errs
}

func (c Config) withDefaults() Config {
	if c.GamesPerPairing == 0 {
		c.GamesPerPairing = DefaultGamesPerPairing
	}
	if c.ConcurrentGames == 0 {
		c.ConcurrentGames = DefaultConcurrentGames
	}
	if c.ArenaRounds == 0 {
		c.ArenaRounds = DefaultArenaRounds
	}
	if c.Name == "" {
		c.Name = string(c.Type) + " tournament"
	}
	ps := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		ps[i] = strings.TrimSpace(p)
	}
	c.Participants = ps
	return c
}

type PairingStatus string

const (
	Pending PairingStatus = "pending"
	Playing PairingStatus = "playing"
	Done    PairingStatus = "completed"
	Errored PairingStatus = "error"
	Skipped PairingStatus = "skipped"
)

// Bracket names for knockout pairings.
const (
	WinnersBracket = "winners"
	LosersBracket  = "losers"
	GrandFinal     = "final"
)

type Pairing struct {
	Round       int           `json:"round"`
	Game        int           `json:"game"`
	White       string        `json:"white"`
	Black       string        `json:"black"`
	Status      PairingStatus `json:"status"`
	Result      string        `json:"result,omitempty"`
	Termination string        `json:"termination,omitempty"`
	GameID      string        `json:"gameId,omitempty"`
	Moves       int           `json:"moves,omitempty"`
	Fallbacks   int           `json:"fallbacks,omitempty"`
	Bracket     string        `json:"bracket,omitempty"`
	Rematch     bool          `json:"rematch,omitempty"`
}

func (p Pairing) decided() bool {
	return p.Status == Done && p.Result != "*" && p.Result != ""
}

func (p Pairing) involves(a, b string) bool {
	return (p.White == a && p.Black == b) || (p.White == b && p.Black == a)
}

type Round struct {
	Number   int       `json:"number"`
	Pairings []Pairing `json:"pairings"`
	Byes     []string  `json:"byes,omitempty"`
}

type Statistics struct {
	TotalGames      int     `json:"totalGames"`
	WhiteWins       int     `json:"whiteWins"`
	BlackWins       int     `json:"blackWins"`
	Draws           int     `json:"draws"`
	Errors          int     `json:"errors"`
	WhiteWinPercent float64 `json:"whiteWinPercentage"`
	BlackWinPercent float64 `json:"blackWinPercentage"`
	DrawPercent     float64 `json:"drawPercentage"`
	TotalMoves      int     `json:"totalMoves"`
	AverageMoves    float64 `json:"averageMoves"`
	FallbackMoves   int     `json:"fallbackMoves"`
	Duration        string  `json:"duration,omitempty"`
}

// Record is the persisted and published view of a tournament.
type Record struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Type         Type       `json:"type"`
	Participants []string   `json:"participants"`
	Rounds       []Round    `json:"rounds"`
	Standings    []Standing `json:"standings"`
	Status       Status     `json:"status"`
	CurrentRound int        `json:"currentRound"`
	TotalRounds  int        `json:"totalRounds"`
	Winner       string     `json:"winner,omitempty"`
	Statistics   Statistics `json:"statistics"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartAt      *time.Time `json:"startAt,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

// History flattens every pairing played so far.
func (r Record) History() []Pairing {
	var out []Pairing
	for _, rd := range r.Rounds {
		out = append(out, rd.Pairings...)
	}
	return out
}

func computeStatistics(rounds []Round, started, ended *time.Time) Statistics {
	var s Statistics
	for _, rd := range rounds {
		for _, p := range rd.Pairings {
			switch {
			case p.Status == Errored || (p.Status == Done && p.Result == "*"):
				s.Errors++
				continue
			case !p.decided():
				continue
			}
			s.TotalGames++
			s.TotalMoves += p.Moves
			s.FallbackMoves += p.Fallbacks
			switch p.Result {
			case "1-0":
				s.WhiteWins++
			case "0-1":
				s.BlackWins++
			default:
				s.Draws++
			}
		}
	}
	if s.TotalGames > 0 {
		n := float64(s.TotalGames)
		s.WhiteWinPercent = round1(float64(s.WhiteWins) * 100 / n)
		s.BlackWinPercent = round1(float64(s.BlackWins) * 100 / n)
		s.DrawPercent = round1(float64(s.Draws) * 100 / n)
		s.AverageMoves = round1(float64(s.TotalMoves) / n)
	}
	if started != nil {
		end := time.Now().UTC()
		if ended != nil {
			end = *ended
		}
		s.Duration = end.Sub(*started).Round(time.Second).String()
	}
	return s
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
