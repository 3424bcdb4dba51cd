// Package pipeline sequences fact loading, retrieval, threat scoring,
// drafting and verification, with a bounded draft/verify retry loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/guardrail"
	"aramcoach/internal/retrieval"
	"aramcoach/internal/strategy"
	"aramcoach/internal/threat"
)

// Defaults
const (
	DefaultTopK         = 5
	DefaultMaxLoops     = 1
	DefaultStageTimeout = 30 * time.Second
)

// GuideFetcher adds live guide documents to the retrieval corpus. It never fails.
type GuideFetcher interface {
	Fetch(ctx context.Context, champs []string) []facts.GuideDocument
}

// StageEvent is emitted after every state transition
type StageEvent struct {
	RunID   string               `json:"run_id"`
	Phase   Phase                `json:"phase"`
	Loop    int                  `json:"loop"`
	Elapsed time.Duration        `json:"elapsed_ns"`
	Verify  *advice.VerifyResult `json:"verify,omitempty"`
}

// Observer receives stage events. It is called synchronously.
type Observer func(StageEvent)

// Controller runs the pipeline. It holds no per-run state and is safe for
// concurrent use.
type Controller struct {
	store     facts.Store
	ranker    *retrieval.Ranker
	estimator threat.Estimator
	drafter   strategy.Drafter
	verifier  *guardrail.Verifier
	guides    GuideFetcher

	defaultPatch string
	topK         int
	maxLoops     int
	stageTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithTopK sets how many documents are retrieved
func WithTopK(k int) Option {
	return func(c *Controller) { c.topK = k }
}

// WithMaxLoops sets the retry budget for draft and verify
func WithMaxLoops(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxLoops = n
		}
	}
}

// WithStageTimeout bounds each collaborator call
func WithStageTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stageTimeout = d
		}
	}
}

// WithDefaultPatch sets the patch used when a request names none
func WithDefaultPatch(patch string) Option {
	return func(c *Controller) {
		if patch != "" {
			c.defaultPatch = patch
		}
	}
}

// WithGuideFetcher enables live guide documents
func WithGuideFetcher(g GuideFetcher) Option {
	return func(c *Controller) { c.guides = g }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l.Named("pipeline") }
}

// NewController wires the stages
func NewController(store facts.Store, ranker *retrieval.Ranker, estimator threat.Estimator, drafter strategy.Drafter, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		ranker:       ranker,
		estimator:    estimator,
		drafter:      drafter,
		verifier:     guardrail.NewVerifier(),
		defaultPatch: DefaultPatch,
		topK:         DefaultTopK,
		maxLoops:     DefaultMaxLoops,
		stageTimeout: DefaultStageTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PreGame validates and runs a pre-game request
func (c *Controller) PreGame(ctx context.Context, req PreGameRequest, obs Observer) (*State, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.Run(ctx, patchOrDefault(req.Patch, c.defaultPatch), req.Inputs(), obs)
}

// InGame validates and runs an in-game question
func (c *Controller) InGame(ctx context.Context, req InGameRequest, obs Observer) (*State, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.Run(ctx, patchOrDefault(req.Patch, c.defaultPatch), req.Inputs(), obs)
}

// Run executes one pipeline run. The caller's cancellation is detached so a
// started run always completes. A run whose last verification failed
// returns a state with nil Final and a nil error; errors are reserved for
// unknown patches, incomplete threat estimates and strict generation
// failures.
func (c *Controller) Run(ctx context.Context, patch string, in advice.Inputs, obs Observer) (*State, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	s := &State{RunID: uuid.NewString(), Patch: patch, Inputs: in, Phase: PhaseInit}
	log := c.logger.With(zap.String("run_id", s.RunID), zap.String("patch", patch), zap.String("mode", in.Mode))

	step := func(d Delta) {
		s.apply(d)
		log.Debug("stage done", zap.Stringer("phase", s.Phase), zap.Int("loop", s.Loops))
		if obs != nil {
			obs(StageEvent{RunID: s.RunID, Phase: s.Phase, Loop: s.Loops, Elapsed: time.Since(start), Verify: s.Verify})
		}
	}

	d, err := c.loadFacts(ctx, patch)
	if err != nil {
		log.Info("fact load failed", zap.Error(err))
		return s, err
	}
	step(d)

	step(c.retrieve(ctx, s))

	d, err = c.scoreThreats(ctx, s)
	if err != nil {
		log.Warn("threat scoring failed", zap.Error(err))
		return s, err
	}
	step(d)

	for {
		d, err = c.draft(ctx, s)
		if err != nil {
			log.Warn("drafting failed", zap.Error(err))
			return s, err
		}
		step(d)
		step(c.verify(s))

		if s.Verify.OK || s.Loops >= c.maxLoops {
			break
		}
		log.Info("verification failed, redrafting", zap.Int("violations", len(s.Verify.Violations)))
		s.Loops++
	}

	step(Delta{Phase: PhaseDone})
	log.Info("run finished",
		zap.Bool("ok", s.Verify.OK),
		zap.Int("attempts", s.Verify.Attempts),
		zap.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (c *Controller) loadFacts(ctx context.Context, patch string) (Delta, error) {
	pf, err := c.store.Load(ctx, patch)
	if err != nil {
		return Delta{}, fmt.Errorf("failed to load patch facts: %w", err)
	}
	return Delta{Phase: PhaseFactsLoaded, Facts: &pf}, nil
}

func (c *Controller) retrieve(ctx context.Context, s *State) Delta {
	in := s.Inputs
	corpus := s.Facts.GuideDocs

	var query string
	var champs []string
	if in.Mode == advice.ModeInGame {
		query = retrieval.InGameQuery(in.MyChamp, in.Question)
		champs = []string{in.MyChamp}
	} else {
		query = retrieval.PreGameQuery(in.AllyComp, in.EnemyComp)
		champs = append(append([]string{}, in.AllyComp...), in.EnemyComp...)
	}

	if c.guides != nil {
		fctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
		live := c.guides.Fetch(fctx, champs)
		cancel()
		if len(live) > 0 {
			corpus = append(append([]facts.GuideDocument{}, corpus...), live...)
		}
	}

	return Delta{Phase: PhaseRetrieved, Docs: c.ranker.Rank(corpus, query, c.topK)}
}

func (c *Controller) scoreThreats(ctx context.Context, s *State) (Delta, error) {
	tctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()

	entries, err := c.estimator.Score(tctx, s.Patch, s.Inputs.AllyComp, s.Inputs.EnemyComp)
	if err != nil {
		return Delta{}, err
	}
	if entries == nil {
		entries = []advice.ThreatEntry{}
	}
	return Delta{Phase: PhaseThreatened, Threats: entries}, nil
}

func (c *Controller) draft(ctx context.Context, s *State) (Delta, error) {
	dctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()

	req := strategy.Request{
		Patch:   s.Patch,
		Inputs:  s.Inputs,
		Facts:   *s.Facts,
		Docs:    s.RetrievedDocs,
		Threats: s.Threats,
	}
	if s.Verify != nil {
		req.Violations = s.Verify.Violations
	}

	draft, err := c.drafter.Draft(dctx, req)
	if err != nil {
		return Delta{}, err
	}
	return Delta{Phase: PhaseDrafted, Draft: &draft}, nil
}

func (c *Controller) verify(s *State) Delta {
	res, final := c.verifier.Verify(*s.Facts, s.Verify, *s.Draft)
	return Delta{Phase: PhaseVerified, Verify: &res, Final: final}
}
