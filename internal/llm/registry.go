package llm

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderDeepSeek  = "deepseek"
	ProviderBaseline  = "baseline"
	ProviderUCI       = "uci"
)

const (
	RandomModel    = "Random"
	StockfishModel = "Stockfish"
)

var (
	ErrUnknownModel  = errors.New("unknown model")
	ErrInactiveModel = errors.New("model is not active")
)

type Model struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	ModelID     string `json:"modelId"`
	InitialElo  int    `json:"initialElo"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// Keys holds provider API keys. An empty key leaves that provider's models
// inactive.
type Keys struct {
	OpenAI    string
	Google    string
	Anthropic string
	DeepSeek  string
}

// BuiltinModels lists the hosted models the arena knows about.
func BuiltinModels() []Model {
	return []Model{
		{Name: "GPT-4o", Provider: ProviderOpenAI, ModelID: "gpt-4o", InitialElo: 1850, Description: "Strongest available model"},
		{Name: "GPT-4-Turbo", Provider: ProviderOpenAI, ModelID: "gpt-4-turbo", InitialElo: 1780, Description: "Balanced and versatile"},
		{Name: "Gemini-Pro", Provider: ProviderGoogle, ModelID: "gemini-1.5-pro-latest", InitialElo: 1750, Description: "Creative"},
		{Name: "Gemini-1.0-Pro", Provider: ProviderGoogle, ModelID: "gemini-1.0-pro", InitialElo: 1720, Description: "Stable"},
		{Name: "Claude-3.5-Sonnet", Provider: ProviderAnthropic, ModelID: "claude-3-5-sonnet-20241022", InitialElo: 1820, Description: "Strategic and analytical"},
		{Name: "Deepseek-R1", Provider: ProviderDeepSeek, ModelID: "deepseek-r1", InitialElo: 1680, Description: "Experimental"},
	}
}

type RegistryOptions struct {
	HTTP    *http.Client
	Breaker BreakerConfig
	// BaseURLs overrides provider endpoints, keyed by provider name.
	BaseURLs map[string]string
	// RandomSeed seeds the baseline player; zero means time-based.
	RandomSeed int64
}

type entry struct {
	model    Model
	proposer engine.Proposer
	breaker  *Breaker
}

// Registry maps model names to their metadata and proposers. It implements
// engine.ProposerSource.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry(log *slog.Logger, keys Keys, opts RegistryOptions) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:     log.With(slog.String("component", "models")),
		entries: make(map[string]*entry),
	}
	hc := httpClient(opts.HTTP)

	for _, m := range BuiltinModels() {
		var c Completer
		var key string
		switch m.Provider {
		case ProviderOpenAI:
			key = keys.OpenAI
			cc := NewOpenAI(hc, key, m.ModelID)
			if u := opts.BaseURLs[m.Provider]; u != "" {
				cc.BaseURL = u
			}
			c = cc
		case ProviderDeepSeek:
			key = keys.DeepSeek
			cc := NewDeepSeek(hc, key, m.ModelID)
			if u := opts.BaseURLs[m.Provider]; u != "" {
				cc.BaseURL = u
			}
			c = cc
		case ProviderAnthropic:
			key = keys.Anthropic
			ac := NewAnthropic(hc, key, m.ModelID)
			if u := opts.BaseURLs[m.Provider]; u != "" {
				ac.BaseURL = u
			}
			c = ac
		case ProviderGoogle:
			key = keys.Google
			gc := NewGemini(hc, key, m.ModelID)
			if u := opts.BaseURLs[m.Provider]; u != "" {
				gc.BaseURL = u
			}
			c = gc
		}
		m.Active = key != ""
		br := NewBreaker(log, m.Name, opts.Breaker)
		r.entries[m.Name] = &entry{
			model:    m,
			proposer: &ModelProposer{Model: m, Completer: c, Breaker: br},
			breaker:  br,
		}
	}

	r.Register(Model{
		Name:        RandomModel,
		Provider:    ProviderBaseline,
		ModelID:     "random",
		InitialElo:  1200,
		Description: "Uniformly random legal moves",
		Active:      true,
	}, NewRandomProposer(opts.RandomSeed))
	return r
}

// Register adds or replaces a model. Used for the baseline, local UCI
// engines and tests.
func (r *Registry) Register(m Model, p engine.Proposer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.Name] = &entry{model: m, proposer: p}
	r.log.Info("model_registered", slog.String("model", m.Name), slog.String("provider", m.Provider), slog.Bool("active", m.Active))
}

// Proposer returns the proposer for an active model.
func (r *Registry) Proposer(name string) (engine.Proposer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownModel, name)
	}
	if !e.model.Active {
		return nil, errors.Wrap(ErrInactiveModel, name)
	}
	return e.proposer, nil
}

func (r *Registry) Model(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Model{}, false
	}
	return e.model, true
}

// Models lists every known model, strongest initial rating first.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	out := make([]Model, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.model)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].InitialElo != out[j].InitialElo {
			return out[i].InitialElo > out[j].InitialElo
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) Active() []Model {
	var out []Model
	for _, m := range r.Models() {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// BreakerState reports the breaker state of a hosted model. Models without a
// breaker report Closed.
func (r *Registry) BreakerState(name string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok && e.breaker != nil {
		return e.breaker.State()
	}
	return Closed
}
