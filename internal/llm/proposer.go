package llm

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

// ModelProposer turns a text model into an engine.Proposer. Calls go through
// the model's breaker so a failing provider stops costing a round trip per
// ply.
type ModelProposer struct {
	Model     Model
	Completer Completer
	Breaker   *Breaker
}

func (p *ModelProposer) Propose(ctx context.Context, req engine.ProposalRequest) (string, error) {
	prompt := BuildPrompt(req)
	var reply string
	call := func(ctx context.Context) error {
		out, err := p.Completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	}
	var err error
	if p.Breaker != nil {
		err = p.Breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", errors.Wrapf(err, "propose %s", p.Model.Name)
	}
	return reply, nil
}

// RandomProposer declares a uniformly random legal move. It is the arena's
// baseline opponent.
type RandomProposer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomProposer(seed int64) *RandomProposer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomProposer{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomProposer) Propose(_ context.Context, req engine.ProposalRequest) (string, error) {
	if len(req.Legal) == 0 {
		return "", errors.New("no legal moves")
	}
	r.mu.Lock()
	i := r.rng.Intn(len(req.Legal))
	r.mu.Unlock()
	return fmt.Sprintf("My move: %q", req.Legal[i]), nil
}
