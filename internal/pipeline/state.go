package pipeline

import (
	"fmt"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
)

// Phase is the controller's position in the run
type Phase int

const (
	PhaseInit Phase = iota
	PhaseFactsLoaded
	PhaseRetrieved
	PhaseThreatened
	PhaseDrafted
	PhaseVerified
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseFactsLoaded:
		return "facts_loaded"
	case PhaseRetrieved:
		return "retrieved"
	case PhaseThreatened:
		return "threatened"
	case PhaseDrafted:
		return "drafted"
	case PhaseVerified:
		return "verified"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// MarshalText lets phases serialize by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for q := PhaseInit; q <= PhaseDone; q++ {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// State is the per-run aggregate. It is only written by the controller
// folding stage deltas, and Final is set only when Verify.OK.
type State struct {
	RunID         string                `json:"run_id"`
	Patch         string                `json:"patch"`
	Inputs        advice.Inputs         `json:"inputs"`
	Facts         *facts.PatchFacts     `json:"-"`
	RetrievedDocs []facts.GuideDocument `json:"retrieved_docs,omitempty"`
	Threats       []advice.ThreatEntry  `json:"threats,omitempty"`
	Draft         *advice.StrategyDraft `json:"draft,omitempty"`
	Final         *advice.StrategyDraft `json:"final,omitempty"`
	Verify        *advice.VerifyResult  `json:"verify,omitempty"`
	Phase         Phase                 `json:"phase"`
	Loops         int                   `json:"loops"`
}

// Succeeded reports whether the run produced a publishable strategy
func (s *State) Succeeded() bool {
	return s.Final != nil
}

// Delta is what one stage produced
type Delta struct {
	Phase   Phase
	Facts   *facts.PatchFacts
	Docs    []facts.GuideDocument
	Threats []advice.ThreatEntry
	Draft   *advice.StrategyDraft
	Verify  *advice.VerifyResult
	Final   *advice.StrategyDraft
}

// apply folds d into s. A verification delta always replaces Final.
func (s *State) apply(d Delta) {
	if d.Facts != nil {
		s.Facts = d.Facts
	}
	if d.Docs != nil {
		s.RetrievedDocs = d.Docs
	}
	if d.Threats != nil {
		s.Threats = d.Threats
	}
	if d.Draft != nil {
		s.Draft = d.Draft
	}
	if d.Verify != nil {
		s.Verify = d.Verify
		s.Final = d.Final
	}
	s.Phase = d.Phase
}
