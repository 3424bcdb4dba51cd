package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"aramcoach/internal/advice"
	"aramcoach/internal/llm"
)

const systemPrompt = "You are a League of Legends ARAM strategy assistant. Return ONE valid JSON object ONLY, " +
	"matching this exact schema and lowercase keys. No prose, no markdown, no extra keys. Cite item ids and doc ids.\n\n" +
	"Required keys and types:\n" +
	"- tldr: array of up to 3 short strings\n" +
	"- assumptions: object\n" +
	"- threats: array of {name: string, why: string}\n" +
	"- role: one of [peel, engage, poke, zone, front_to_back, anti_dive]\n" +
	"- build_plan: array of {trigger: string, items: array of {id: number, name: string}, why: string, timing?: string}\n" +
	"- evidence: array of {type: 'item'|'doc', id: number|string}\n\n" +
	"Only use item ids listed in facts.items. This is ARAM on a single lane: never mention dragon, baron, jungle or rift herald.\n" +
	"If previous_violations is present, fix every listed problem.\n\n" +
	"Output template example (fill with your content):\n" +
	"{\n" +
	"  \"tldr\": [\"...\", \"...\"],\n" +
	"  \"assumptions\": {\"patch\": \"...\", \"ally_comp\": [], \"enemy_comp\": []},\n" +
	"  \"threats\": [{\"name\": \"...\", \"why\": \"...\"}],\n" +
	"  \"role\": \"front_to_back\",\n" +
	"  \"build_plan\": [{\"trigger\": \"...\", \"items\": [{\"id\": 0, \"name\": \"...\"}], \"why\": \"...\", \"timing\": \"...\"}],\n" +
	"  \"evidence\": [{\"type\": \"item\", \"id\": 0}, {\"type\": \"doc\", \"id\": \"...\"}]\n" +
	"}"

// GeneratorDrafter asks an llm.Generator for the draft and validates it.
type GeneratorDrafter struct {
	generator llm.Generator
	budget    *llm.TokenBudget
}

// NewGeneratorDrafter creates a generator-backed drafter. Retrieved doc text
// is truncated to budget.
func NewGeneratorDrafter(gen llm.Generator, budget *llm.TokenBudget) *GeneratorDrafter {
	return &GeneratorDrafter{generator: gen, budget: budget}
}

type promptItem struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type promptDoc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type promptPayload struct {
	Patch     string          `json:"patch"`
	Inputs    advice.Inputs   `json:"inputs"`
	Facts     promptFacts     `json:"facts"`
	Retrieval promptRetrieval `json:"retrieval"`
	Threat    promptThreat    `json:"threat"`
	Previous  []string        `json:"previous_violations,omitempty"`
}

type promptFacts struct {
	Items []promptItem `json:"items"`
}

type promptRetrieval struct {
	Docs []promptDoc `json:"docs"`
}

type promptThreat struct {
	Scores []advice.ThreatEntry `json:"scores"`
}

// Messages builds the system block and the JSON user payload
func (g *GeneratorDrafter) Messages(req Request) ([]llm.Message, error) {
	payload := promptPayload{
		Patch:  req.Patch,
		Inputs: req.Inputs,
		Threat: promptThreat{Scores: req.Threats},
	}
	for _, it := range req.Facts.Items {
		payload.Facts.Items = append(payload.Facts.Items, promptItem{ID: it.ID, Name: it.Name, Tags: it.Tags})
	}
	for _, d := range req.Docs {
		payload.Retrieval.Docs = append(payload.Retrieval.Docs, promptDoc{ID: d.ID, Text: g.budget.Truncate(d.Text)})
	}
	for _, v := range req.Violations {
		payload.Previous = append(payload.Previous, v.String())
	}

	user, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: string(user)},
	}, nil
}

// Draft implements Drafter
func (g *GeneratorDrafter) Draft(ctx context.Context, req Request) (advice.StrategyDraft, error) {
	messages, err := g.Messages(req)
	if err != nil {
		return advice.StrategyDraft{}, err
	}

	raw, err := g.generator.Generate(ctx, messages)
	if err != nil {
		return advice.StrategyDraft{}, fmt.Errorf("generator call failed: %w", err)
	}

	return ParseDraft(raw)
}

var requiredKeys = []string{"tldr", "assumptions", "threats", "role", "build_plan", "evidence"}

// ParseDraft decodes a generator response strictly: every schema key is
// required, unknown keys and trailing data are rejected.
func ParseDraft(raw string) (advice.StrategyDraft, error) {
	body := []byte(llm.StripCodeFence(raw))

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return advice.StrategyDraft{}, fmt.Errorf("response is not a JSON object: %w", err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			missing = append(missing, k)
		}
	}
	missing = append(missing, missingNestedKeys(keys)...)
	if len(missing) > 0 {
		return advice.StrategyDraft{}, fmt.Errorf("response is missing keys: %s", strings.Join(missing, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var draft advice.StrategyDraft
	if err := dec.Decode(&draft); err != nil {
		return advice.StrategyDraft{}, fmt.Errorf("response does not match schema: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return advice.StrategyDraft{}, errors.New("unexpected data after JSON object")
	}
	if draft.Assumptions == nil {
		draft.Assumptions = map[string]any{}
	}
	if err := draft.Validate(); err != nil {
		return advice.StrategyDraft{}, fmt.Errorf("invalid draft: %w", err)
	}
	return draft, nil
}

// missingNestedKeys checks the required keys of threats, build plan steps
// and their items. Values of the wrong type are left to the strict decode.
func missingNestedKeys(keys map[string]json.RawMessage) []string {
	var missing []string

	var threats []map[string]json.RawMessage
	if json.Unmarshal(keys["threats"], &threats) == nil {
		for i, t := range threats {
			missing = append(missing, missingIn(t, fmt.Sprintf("threats[%d]", i), "name", "why")...)
		}
	}

	var plan []map[string]json.RawMessage
	if json.Unmarshal(keys["build_plan"], &plan) == nil {
		for i, step := range plan {
			prefix := fmt.Sprintf("build_plan[%d]", i)
			missing = append(missing, missingIn(step, prefix, "trigger", "items", "why")...)

			var items []map[string]json.RawMessage
			if json.Unmarshal(step["items"], &items) != nil {
				continue
			}
			for j, it := range items {
				missing = append(missing, missingIn(it, fmt.Sprintf("%s.items[%d]", prefix, j), "id", "name")...)
			}
		}
	}
	return missing
}

func missingIn(obj map[string]json.RawMessage, prefix string, required ...string) []string {
	var missing []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, prefix+"."+k)
		}
	}
	return missing
}
