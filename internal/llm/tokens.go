package llm

import (
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// tiktoken downloads the BPE ranks on first use; a slow or missing network
// must not hold up startup.
const encodingLoadTimeout = 5 * time.Second

var getEncoding = tiktoken.GetEncoding

// TokenBudget truncates prompt snippets to a token limit using the
// cl100k_base encoding. When the encoding cannot be loaded it estimates
// four bytes per token.
type TokenBudget struct {
	max      int
	encoding *tiktoken.Tiktoken
}

// NewTokenBudget creates a budget of max tokens per snippet
func NewTokenBudget(max int) *TokenBudget {
	return &TokenBudget{max: max, encoding: loadEncoding(encodingLoadTimeout)}
}

// loadEncoding returns nil when the encoding fails to load within timeout
func loadEncoding(timeout time.Duration) *tiktoken.Tiktoken {
	loaded := make(chan *tiktoken.Tiktoken, 1)
	go func() {
		enc, err := getEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
		loaded <- enc
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case enc := <-loaded:
		return enc
	case <-timer.C:
		return nil
	}
}

// Count returns the token count of text
func (b *TokenBudget) Count(text string) int {
	if b.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(b.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most the budget. A non-positive budget disables it.
func (b *TokenBudget) Truncate(text string) string {
	if b.max <= 0 || b.Count(text) <= b.max {
		return text
	}
	if b.encoding == nil {
		return strings.ToValidUTF8(text[:b.max*4], "")
	}
	tokens := b.encoding.Encode(text, nil, nil)
	return b.encoding.Decode(tokens[:b.max])
}
