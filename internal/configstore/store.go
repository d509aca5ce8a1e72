package configstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"llmarena/internal/book"
	"llmarena/internal/engine"
	"llmarena/internal/rating"
)

// ErrInvalid marks a rejected settings update.
var ErrInvalid = errors.New("invalid settings")

// Config holds the arena tunables that can change at runtime.
type Config struct {
	MaxMoves          int       `json:"max_moves"`
	MoveDelayMS       int       `json:"move_delay_ms"`
	MoveJitterMS      int       `json:"move_jitter_ms"`
	GameDelayMS       int       `json:"game_delay_ms"`
	BatchDelayMS      int       `json:"batch_delay_ms"`
	RoundIntervalMS   int       `json:"round_interval_ms"`
	ProposalTimeoutMS int       `json:"proposal_timeout_ms"`
	KFactor           float64   `json:"k_factor"`
	Openings          []string  `json:"openings"`
	WordBoundary      bool      `json:"word_boundary_matching"`
	NextFirstIsWhite  bool      `json:"next_first_is_white"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		MaxMoves:        c.MaxMoves,
		ProposalTimeout: ms(c.ProposalTimeoutMS),
		MoveDelay:       ms(c.MoveDelayMS),
		MoveJitter:      ms(c.MoveJitterMS),
	}
}

func (c Config) GameDelay() time.Duration     { return ms(c.GameDelayMS) }
func (c Config) BatchDelay() time.Duration    { return ms(c.BatchDelayMS) }
func (c Config) RoundInterval() time.Duration { return ms(c.RoundIntervalMS) }

// Validate rejects values that cannot be normalised away.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.MaxMoves < 0 {
		result = multierror.Append(result, errors.Errorf("max_moves must not be negative, got %d", c.MaxMoves))
	}
	for name, v := range map[string]int{
		"move_delay_ms":       c.MoveDelayMS,
		"move_jitter_ms":      c.MoveJitterMS,
		"game_delay_ms":       c.GameDelayMS,
		"batch_delay_ms":      c.BatchDelayMS,
		"round_interval_ms":   c.RoundIntervalMS,
		"proposal_timeout_ms": c.ProposalTimeoutMS,
	} {
		if v < 0 {
			result = multierror.Append(result, errors.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	if c.KFactor < 0 || c.KFactor > 100 {
		result = multierror.Append(result, errors.Errorf("k_factor must be within 0..100, got %g", c.KFactor))
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

// Assignment is the colour pair of the next ad-hoc game.
type Assignment struct {
	White string `json:"white"`
	Black string `json:"black"`
}

type Store struct {
	path string

	mu        sync.Mutex
	cfg       Config
	listeners []func(Config)
}

func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create config dir")
	}

	store := &Store{path: path}
	if err := store.loadOrInit(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) GetConfig(ctx context.Context) (Config, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.cfg), nil
}

// OnUpdate registers fn to run after every successful UpdateConfig.
func (s *Store) OnUpdate(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) UpdateConfig(ctx context.Context, cfg Config) (Config, error) {
	_ = ctx
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	s.mu.Lock()
	cfg = normalize(cfg)
	cfg.NextFirstIsWhite = s.cfg.NextFirstIsWhite
	cfg.UpdatedAt = time.Now().UTC()
	s.cfg = cfg
	if err := s.saveLocked(); err != nil {
		s.mu.Unlock()
		return Config{}, err
	}
	listeners := append([]func(Config){}, s.listeners...)
	out := clone(cfg)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(clone(out))
	}
	return out, nil
}

// GetAndToggleAssignment returns the colours for the next ad-hoc game between
// first and second, then flips them for the following one.
func (s *Store) GetAndToggleAssignment(ctx context.Context, first, second string) (Assignment, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	assign := Assignment{White: first, Black: second}
	if !s.cfg.NextFirstIsWhite {
		assign.White, assign.Black = second, first
	}

	s.cfg.NextFirstIsWhite = !s.cfg.NextFirstIsWhite
	s.cfg.UpdatedAt = time.Now().UTC()
	if err := s.saveLocked(); err != nil {
		return Assignment{}, err
	}
	return assign, nil
}

func (s *Store) loadOrInit() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cfg = defaultConfig()
			return s.saveLocked()
		}
		return errors.Wrap(err, "read config")
	}

	// keys missing from the file keep their defaults
	cfg := defaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "parse config")
	}
	s.cfg = normalize(cfg)
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}

func normalize(c Config) Config {
	d := defaultConfig()
	if c.MaxMoves <= 0 {
		c.MaxMoves = d.MaxMoves
	}
	if c.ProposalTimeoutMS <= 0 {
		c.ProposalTimeoutMS = d.ProposalTimeoutMS
	}
	if c.KFactor <= 0 {
		c.KFactor = d.KFactor
	}
	if len(c.Openings) == 0 {
		c.Openings = d.Openings
	}
	for _, p := range []*int{&c.MoveDelayMS, &c.MoveJitterMS, &c.GameDelayMS, &c.BatchDelayMS, &c.RoundIntervalMS} {
		if *p < 0 {
			*p = 0
		}
	}
	return c
}

func defaultConfig() Config {
	return Config{
		MaxMoves:          engine.DefaultMaxMoves,
		MoveDelayMS:       1000,
		MoveJitterMS:      500,
		GameDelayMS:       2000,
		BatchDelayMS:      2000,
		RoundIntervalMS:   5000,
		ProposalTimeoutMS: 30000,
		KFactor:           rating.DefaultK,
		Openings:          book.Defaults(),
		NextFirstIsWhite:  true,
		UpdatedAt:         time.Now().UTC(),
	}
}

func clone(c Config) Config {
	c.Openings = append([]string(nil), c.Openings...)
	return c
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
