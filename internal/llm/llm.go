// Package llm is the text-generation boundary. A Generator takes role
// tagged messages and returns one text blob.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role tagged block of a request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a completion for messages.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from generator")

// Providers
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New builds the configured generator. ProviderNone returns (nil, nil).
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		opts := []OpenAIOption{WithTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, opts...)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.Timeout)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// StaticGenerator replays canned responses in order, repeating the last
// one. It backs tests and is not selectable through New. Read Requests
// only after the calls that fill it have returned.
type StaticGenerator struct {
	Responses []string
	Err       error

	mu       sync.Mutex
	calls    int
	Requests [][]Message
}

// Generate returns the next canned response
func (g *StaticGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, messages)
	g.calls++
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.Responses) == 0 {
		return "", ErrEmptyResponse
	}
	i := g.calls - 1
	if i >= len(g.Responses) {
		i = len(g.Responses) - 1
	}
	return g.Responses[i], nil
}

// Calls returns how many times Generate ran
func (g *StaticGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
