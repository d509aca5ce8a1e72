package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the provider while a model's
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, ResetTimeout: 60 * time.Second}
}

// Breaker trips after MaxFailures consecutive failures and lets a single
// trial call through once ResetTimeout has passed.
type Breaker struct {
	name string
	cfg  BreakerConfig
	log  *slog.Logger
	now  func() time.Time

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
}

func NewBreaker(log *slog.Logger, name string, cfg BreakerConfig) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultBreakerConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		log:  log.With(slog.String("component", "breaker"), slog.String("model", name)),
		now:  time.Now,
	}
}

func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.log.Info("breaker_half_open")
	case HalfOpen:
		// one trial call at a time
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state != Closed {
			b.log.Info("breaker_closed")
		}
		b.state = Closed
		b.fails = 0
		return nil
	}
	// a cancelled game is not the provider's fault; timeouts are.
	if errors.Is(err, context.Canceled) {
		if b.state == HalfOpen {
			b.state = Open
		}
		return err
	}
	b.fails++
	if b.state == HalfOpen || b.fails >= b.cfg.MaxFailures {
		if b.state != Open {
			b.log.Warn("breaker_opened", slog.Int("failures", b.fails), slog.Any("err", err))
		}
		b.state = Open
		b.openedAt = b.now()
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
