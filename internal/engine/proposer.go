package engine

import (
	"context"
	"fmt"
)

// ProposalRequest is everything a player sees when asked for a move.
type ProposalRequest struct {
	GameID     string
	Model      string
	Color      Color
	FEN        string
	History    []string
	Legal      []string
	InCheck    bool
	MoveNumber int
}

// Proposer returns free text containing a move suggestion.
type Proposer interface {
	Propose(ctx context.Context, req ProposalRequest) (string, error)
}

type ProposerFunc func(ctx context.Context, req ProposalRequest) (string, error)

func (f ProposerFunc) Propose(ctx context.Context, req ProposalRequest) (string, error) {
	return f(ctx, req)
}

// ProposerSource resolves a model name to its proposer.
type ProposerSource interface {
	Proposer(model string) (Proposer, error)
}

// StaticProposers is a fixed model -> proposer table.
type StaticProposers map[string]Proposer

func (s StaticProposers) Proposer(model string) (Proposer, error) {
	p, ok := s[model]
	if !ok {
		return nil, fmt.Errorf("no proposer for model %q", model)
	}
	return p, nil
}
