package strategy

import (
	"context"
	"strings"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/priors"
)

var (
	pokeKeywords   = []string{"ashe", "xerath", "ziggs", "lux"}
	engageKeywords = []string{"leona", "malphite", "zac", "sion"}

	// keyed by priors.NormalizeName
	healingChamps = map[string]bool{
		"soraka": true, "sona": true, "aatrox": true, "vladimir": true, "yuumi": true,
	}
)

const maxAntiHealItems = 2

// Heuristic is the deterministic rule-based drafter.
type Heuristic struct{}

// NewHeuristic creates the rule-based drafter
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Draft never fails
func (Heuristic) Draft(ctx context.Context, req Request) (advice.StrategyDraft, error) {
	role := pickRole(req.Inputs.Lead())
	plan := buildPlan(req.Facts, req.Inputs.EnemyComp)

	threats := make([]advice.Threat, 0, len(req.Threats))
	for _, t := range req.Threats {
		why := strings.Join(t.Reasons, ", ")
		if why == "" {
			why = "high impact"
		}
		threats = append(threats, advice.Threat{Name: t.Unit, Why: why})
	}

	evidence := []advice.Evidence{}
	for _, step := range plan {
		for _, it := range step.Items {
			evidence = append(evidence, advice.ItemEvidence(it.ID))
		}
	}
	seenDocs := make(map[string]bool, len(req.Docs))
	for _, doc := range req.Docs {
		if seenDocs[doc.ID] {
			continue
		}
		seenDocs[doc.ID] = true
		evidence = append(evidence, advice.DocEvidence(doc.ID))
	}

	return advice.StrategyDraft{
		TLDR: []string{
			"Play " + string(role) + "; respect enemy spikes.",
			"Group for fights; trade when sums up.",
		},
		Assumptions: assumptions(req),
		Threats:     threats,
		Role:        role,
		BuildPlan:   plan,
		Evidence:    evidence,
	}, nil
}

func pickRole(champ string) advice.Role {
	lower := priors.NormalizeName(champ)
	for _, k := range pokeKeywords {
		if strings.Contains(lower, k) {
			return advice.RolePoke
		}
	}
	for _, k := range engageKeywords {
		if strings.Contains(lower, k) {
			return advice.RoleEngage
		}
	}
	return advice.RoleFrontToBack
}

func needsAntiHeal(enemy []string) bool {
	for _, c := range enemy {
		if healingChamps[priors.NormalizeName(c)] {
			return true
		}
	}
	return false
}

func buildPlan(pf facts.PatchFacts, enemy []string) []advice.BuildPlanStep {
	plan := []advice.BuildPlanStep{}
	if !needsAntiHeal(enemy) {
		return plan
	}

	var items []advice.BuildItem
	for _, it := range pf.ItemsWithTag(facts.TagGrievousWounds) {
		if len(items) == maxAntiHealItems {
			break
		}
		items = append(items, advice.BuildItem{ID: it.ID, Name: it.Name})
	}
	if len(items) == 0 {
		return plan
	}
	return append(plan, advice.BuildPlanStep{
		Trigger: "anti_heal",
		Items:   items,
		Why:     "Counter heavy healing",
		Timing:  "early if they snowball",
	})
}

func assumptions(req Request) map[string]any {
	in := req.Inputs
	a := map[string]any{
		"patch":      req.Patch,
		"mode":       in.Mode,
		"ally_comp":  nonNil(in.AllyComp),
		"enemy_comp": nonNil(in.EnemyComp),
	}
	if in.Mode == advice.ModeInGame {
		a["my_champ"] = in.MyChamp
		a["question"] = in.Question
	}
	return a
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
