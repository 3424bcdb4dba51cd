// Package strategy drafts a structured recommendation from facts, retrieved
// guides and threat estimates.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/llm"
)

// ErrStrategyGenerationFailed is returned in strict mode when the
// generator path fails.
var ErrStrategyGenerationFailed = errors.New("strategy generation failed")

// Request is everything a drafter may read. Violations holds the previous
// attempt's guardrail findings during a retry.
type Request struct {
	Patch      string
	Inputs     advice.Inputs
	Facts      facts.PatchFacts
	Docs       []facts.GuideDocument
	Threats    []advice.ThreatEntry
	Violations []advice.Violation
}

// Drafter produces a draft for a request.
type Drafter interface {
	Draft(ctx context.Context, req Request) (advice.StrategyDraft, error)
}

// Fallback calls Primary and substitutes Heuristic on any error, unless
// Strict is set.
type Fallback struct {
	Primary   Drafter
	Heuristic Drafter
	Strict    bool
	Logger    *zap.Logger
}

// Draft implements Drafter
func (f *Fallback) Draft(ctx context.Context, req Request) (advice.StrategyDraft, error) {
	draft, err := f.Primary.Draft(ctx, req)
	if err == nil {
		return draft, nil
	}
	if f.Strict {
		return advice.StrategyDraft{}, fmt.Errorf("%w: %w", ErrStrategyGenerationFailed, err)
	}
	f.Logger.Warn("generator draft failed, using heuristic", zap.String("patch", req.Patch), zap.Error(err))
	return f.Heuristic.Draft(ctx, req)
}

// New returns the heuristic drafter when gen is nil, otherwise a generator
// drafter behind the fallback decorator.
func New(gen llm.Generator, strict bool, snippetTokens int, logger *zap.Logger) Drafter {
	heuristic := NewHeuristic()
	if gen == nil {
		return heuristic
	}
	return &Fallback{
		Primary:   NewGeneratorDrafter(gen, llm.NewTokenBudget(snippetTokens)),
		Heuristic: heuristic,
		Strict:    strict,
		Logger:    logger,
	}
}
