// Package guardrail checks drafts against domain rules before they are
// published.
package guardrail

import (
	"strings"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
)

// Summoner's Rift terms that have no place in ARAM advice
var forbiddenTerms = []string{"dragon", "baron", "jungle", "rift herald"}

// Verifier runs every check on a draft.
type Verifier struct{}

// NewVerifier creates a verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports every violation found. Attempts is one more than prior's
// (1 when prior is nil). The draft is returned as final only when clean.
func (v *Verifier) Verify(pf facts.PatchFacts, prior *advice.VerifyResult, draft advice.StrategyDraft) (advice.VerifyResult, *advice.StrategyDraft) {
	violations := []advice.Violation{}

	if len(draft.TLDR) > advice.MaxTLDR {
		violations = append(violations, advice.Violation{Type: advice.ViolationTLDRTooLong})
	}

	text := strings.ToLower(strings.Join(draft.TLDR, " "))
	var found []string
	for _, term := range forbiddenTerms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		violations = append(violations, advice.Violation{Type: advice.ViolationSRContent, Terms: found})
	}

	known := pf.ItemIDs()
	for _, id := range draft.ItemIDs() {
		if _, ok := known[id]; !ok {
			violations = append(violations, advice.Violation{Type: advice.ViolationUnknownItem, ItemID: id})
		}
	}

	attempts := 1
	if prior != nil {
		attempts = prior.Attempts + 1
	}
	result := advice.VerifyResult{
		OK:         len(violations) == 0,
		Violations: violations,
		Attempts:   attempts,
	}
	if !result.OK {
		return result, nil
	}
	final := draft
	return result, &final
}
