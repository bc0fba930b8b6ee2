package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens for context budgeting. It lazily loads a tiktoken
// encoding; when the encoding cannot be obtained (offline environments), it
// falls back to a bytes/4 heuristic so budgeting still degrades gracefully.
type Estimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewEstimator creates a token estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) load() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return
		}
		e.encoding = enc
	})
}

// Count estimates the token count of a string.
func (e *Estimator) Count(text string) int {
	e.load()
	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	// Rough heuristic: one token per four bytes.
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// TrimToBudget drops the oldest non-system messages until the conversation
// fits within budget tokens. System messages are always retained; a
// non-positive budget disables trimming.
func (e *Estimator) TrimToBudget(messages []ChatMessage, budget int) []ChatMessage {
	if budget <= 0 {
		return messages
	}

	total := 0
	counts := make([]int, len(messages))
	for i, m := range messages {
		counts[i] = e.Count(m.Content) + 4 // per-message framing overhead
		total += counts[i]
	}
	if total <= budget {
		return messages
	}

	kept := make([]ChatMessage, 0, len(messages))
	for i, m := range messages {
		if m.Role == "system" {
			kept = append(kept, m)
			continue
		}
		if total > budget {
			total -= counts[i]
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
