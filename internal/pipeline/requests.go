package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"aramcoach/internal/advice"
)

// DefaultPatch is used when a request names no patch.
const DefaultPatch = "14.99"

// ErrInvalidRequest marks caller input that fails validation.
var ErrInvalidRequest = errors.New("invalid request")

// PreGameRequest asks for advice before the game starts.
type PreGameRequest struct {
	Patch     string         `json:"patch,omitempty"`
	AllyComp  []string       `json:"ally_comp"`
	EnemyComp []string       `json:"enemy_comp"`
	Profile   map[string]any `json:"profile,omitempty"`
}

// Validate requires both compositions
func (r PreGameRequest) Validate() error {
	if len(normalizeComp(r.AllyComp)) == 0 || len(normalizeComp(r.EnemyComp)) == 0 {
		return fmt.Errorf("%w: ally_comp and enemy_comp are required", ErrInvalidRequest)
	}
	return nil
}

// Inputs returns the normalized run inputs
func (r PreGameRequest) Inputs() advice.Inputs {
	return advice.Inputs{
		Mode:      advice.ModePreGame,
		AllyComp:  normalizeComp(r.AllyComp),
		EnemyComp: normalizeComp(r.EnemyComp),
		Profile:   r.Profile,
	}
}

// InGameRequest asks a question during the game. State may carry
// "enemy_comp" (a list of names) and "ally_comp".
type InGameRequest struct {
	Patch    string         `json:"patch,omitempty"`
	MyChamp  string         `json:"my_champ"`
	Question string         `json:"question"`
	State    map[string]any `json:"state,omitempty"`
	Profile  map[string]any `json:"profile,omitempty"`
}

// Validate requires the champion and the question
func (r InGameRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.MyChamp) == "" {
		missing = append(missing, "my_champ")
	}
	if strings.TrimSpace(r.Question) == "" {
		missing = append(missing, "question")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, " and "))
	}
	return nil
}

// Inputs returns the normalized run inputs
func (r InGameRequest) Inputs() advice.Inputs {
	return advice.Inputs{
		Mode:      advice.ModeInGame,
		MyChamp:   strings.TrimSpace(r.MyChamp),
		Question:  strings.TrimSpace(r.Question),
		AllyComp:  normalizeComp(stateNames(r.State, "ally_comp")),
		EnemyComp: normalizeComp(stateNames(r.State, "enemy_comp")),
		State:     r.State,
		Profile:   r.Profile,
	}
}

func patchOrDefault(patch, def string) string {
	if p := strings.TrimSpace(patch); p != "" {
		return p
	}
	return def
}

// normalizeComp trims names and drops blanks and repeats, keeping order
func normalizeComp(comp []string) []string {
	out := make([]string, 0, len(comp))
	seen := make(map[string]bool, len(comp))
	for _, c := range comp {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func stateNames(state map[string]any, key string) []string {
	switch v := state[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
