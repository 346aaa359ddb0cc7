package workload

import (
	"math/rand"
	"strings"
	"sync"
)

// Item is one resolved request payload.
type Item struct {
	PromptLength int
	PrefixLength int
	OutputLength int
	Prompt       string
}

// Synthesizer turns load profiles into prompts.
// Safe for concurrent use.
type Synthesizer struct {
	tokens TokenSet
	task   Task

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer creates a Synthesizer. A nil rng is seeded randomly.
func NewSynthesizer(tokens TokenSet, task Task, rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Synthesizer{tokens: tokens, task: task, rng: rng}
}

// Prompt builds prefix filler, random filler, a newline and the task.
// The random part is omitted when the prefix and task already cover the
// requested prompt length.
func (s *Synthesizer) Prompt(promptLength, prefixLength int) string {
	var b strings.Builder
	if prefixLength > 0 {
		b.WriteString(strings.Repeat(s.tokens.First(), prefixLength))
	}
	if n := promptLength - prefixLength - s.task.EstimatedTokens(); n > 0 {
		s.mu.Lock()
		random := s.tokens.sample(s.rng, n)
		s.mu.Unlock()
		for _, tok := range random {
			b.WriteString(tok)
		}
	}
	b.WriteByte('\n')
	b.WriteString(s.task.Text)
	return b.String()
}

// Items samples n profiles and builds a payload for each.
func (s *Synthesizer) Items(profiles []LoadProfile, n int) ([]Item, error) {
	sampled, err := Sample(profiles, n)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(sampled))
	for i, p := range sampled {
		items[i] = Item{
			PromptLength: p.PromptLength,
			PrefixLength: p.PrefixLength,
			OutputLength: p.OutputLength,
			Prompt:       s.Prompt(p.PromptLength, p.PrefixLength),
		}
	}
	return items, nil
}
