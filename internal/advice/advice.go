// Package advice holds the strategy schema shared by the drafting,
// verification and transport layers.
package advice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Role is the team play pattern recommended by a draft.
type Role string

const (
	RolePeel        Role = "peel"
	RoleEngage      Role = "engage"
	RolePoke        Role = "poke"
	RoleZone        Role = "zone"
	RoleFrontToBack Role = "front_to_back"
	RoleAntiDive    Role = "anti_dive"
)

// Roles lists every accepted role value.
var Roles = []Role{RolePeel, RoleEngage, RolePoke, RoleZone, RoleFrontToBack, RoleAntiDive}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// MaxTLDR is the longest tldr a publishable draft may carry.
const MaxTLDR = 3

// ThreatEntry is the threat estimate for one enemy unit.
type ThreatEntry struct {
	Unit    string   `json:"unit"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Threat is the user-facing summary of a threat entry.
type Threat struct {
	Name string `json:"name"`
	Why  string `json:"why"`
}

// BuildItem references a patch item.
type BuildItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// BuildPlanStep is one conditional purchase recommendation.
type BuildPlanStep struct {
	Trigger string      `json:"trigger"`
	Items   []BuildItem `json:"items"`
	Why     string      `json:"why"`
	Timing  string      `json:"timing,omitempty"`
}

// Evidence kinds
const (
	EvidenceItem = "item"
	EvidenceDoc  = "doc"
)

// Evidence points at an item (integer id) or a guide document (string id).
type Evidence struct {
	Type   string
	ItemID int
	DocID  string
}

// ItemEvidence cites a patch item.
func ItemEvidence(id int) Evidence { return Evidence{Type: EvidenceItem, ItemID: id} }

// DocEvidence cites a retrieved guide document.
func DocEvidence(id string) Evidence { return Evidence{Type: EvidenceDoc, DocID: id} }

func (e Evidence) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EvidenceItem:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   int    `json:"id"`
		}{e.Type, e.ItemID})
	case EvidenceDoc:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{e.Type, e.DocID})
	}
	return nil, fmt.Errorf("unknown evidence type %q", e.Type)
}

func (e *Evidence) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type string          `json:"type"`
		ID   json.RawMessage `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if len(raw.ID) == 0 {
		return errors.New("evidence id is required")
	}

	switch raw.Type {
	case EvidenceItem:
		var id int
		if err := json.Unmarshal(raw.ID, &id); err != nil {
			// tolerate "3123"
			var s string
			if json.Unmarshal(raw.ID, &s) != nil {
				return fmt.Errorf("item evidence id: %w", err)
			}
			if id, err = strconv.Atoi(s); err != nil {
				return fmt.Errorf("item evidence id: %w", err)
			}
		}
		*e = ItemEvidence(id)
	case EvidenceDoc:
		var s string
		if err := json.Unmarshal(raw.ID, &s); err != nil {
			var n json.Number
			if json.Unmarshal(raw.ID, &n) != nil {
				return fmt.Errorf("doc evidence id: %w", err)
			}
			s = n.String()
		}
		*e = DocEvidence(s)
	default:
		return fmt.Errorf("unknown evidence type %q", raw.Type)
	}
	return nil
}

// StrategyDraft is a candidate recommendation. Once verified the same
// value is published as the final strategy.
type StrategyDraft struct {
	TLDR        []string        `json:"tldr"`
	Assumptions map[string]any  `json:"assumptions"`
	Threats     []Threat        `json:"threats"`
	Role        Role            `json:"role"`
	BuildPlan   []BuildPlanStep `json:"build_plan"`
	Evidence    []Evidence      `json:"evidence"`
}

// Validate checks the structural schema. Domain checks such as item
// existence belong to the guardrail.
func (d StrategyDraft) Validate() error {
	var errs []error
	if len(d.TLDR) == 0 {
		errs = append(errs, errors.New("tldr is empty"))
	}
	if !d.Role.Valid() {
		errs = append(errs, fmt.Errorf("invalid role %q", d.Role))
	}
	for i, step := range d.BuildPlan {
		if step.Trigger == "" {
			errs = append(errs, fmt.Errorf("build_plan[%d]: trigger is empty", i))
		}
		if len(step.Items) == 0 {
			errs = append(errs, fmt.Errorf("build_plan[%d]: items is empty", i))
		}
	}
	for i, t := range d.Threats {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("threats[%d]: name is empty", i))
		}
	}
	return errors.Join(errs...)
}

// ItemIDs returns every item id referenced by the build plan, in order.
func (d StrategyDraft) ItemIDs() []int {
	var ids []int
	for _, step := range d.BuildPlan {
		for _, it := range step.Items {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Violation types
const (
	ViolationTLDRTooLong = "tldr_too_long"
	ViolationSRContent   = "sr_content"
	ViolationUnknownItem = "unknown_item"
)

// Violation is one failed guardrail check.
type Violation struct {
	Type   string   `json:"type"`
	ItemID int      `json:"id,omitempty"`
	Terms  []string `json:"terms,omitempty"`
}

func (v Violation) String() string {
	switch v.Type {
	case ViolationUnknownItem:
		return fmt.Sprintf("%s: item %d does not exist in this patch", v.Type, v.ItemID)
	case ViolationSRContent:
		return fmt.Sprintf("%s: remove %v", v.Type, v.Terms)
	case ViolationTLDRTooLong:
		return fmt.Sprintf("%s: use at most %d tldr lines", v.Type, MaxTLDR)
	}
	return v.Type
}

// VerifyResult is the outcome of a guardrail pass.
type VerifyResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
	Attempts   int         `json:"attempts"`
}

// Request modes
const (
	ModePreGame = "pre_game"
	ModeInGame  = "ingame_qa"
)

// Inputs are the normalized request fields a run works from. In-game runs
// carry MyChamp and Question; EnemyComp is filled from the reported game
// state when present.
type Inputs struct {
	Mode      string         `json:"mode"`
	AllyComp  []string       `json:"ally_comp"`
	EnemyComp []string       `json:"enemy_comp"`
	MyChamp   string         `json:"my_champ,omitempty"`
	Question  string         `json:"question,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	Profile   map[string]any `json:"profile,omitempty"`
}

// Lead returns the champion a draft is written for.
func (in Inputs) Lead() string {
	if in.MyChamp != "" {
		return in.MyChamp
	}
	if len(in.AllyComp) > 0 {
		return in.AllyComp[0]
	}
	return "Unknown"
}
