package workload

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// DefaultTaskText asks the model to produce a long, predictable continuation.
const DefaultTaskText = "Ignore the random input and continue the following sequence up to 10000 without abbreviation: 1 2 3 4"

// charsPerToken is the heuristic used to estimate the task's token cost.
const charsPerToken = 3.5

// TokenSet is the vocabulary random filler is drawn from.
type TokenSet struct {
	tokens []string
}

// NewTokenSet requires at least two unique, non-empty tokens.
func NewTokenSet(tokens []string) (TokenSet, error) {
	seen := make(map[string]struct{}, len(tokens))
	for i, tok := range tokens {
		if tok == "" {
			return TokenSet{}, fmt.Errorf("token %d is empty", i)
		}
		if _, dup := seen[tok]; dup {
			return TokenSet{}, fmt.Errorf("token %q is duplicated", tok)
		}
		seen[tok] = struct{}{}
	}
	if len(seen) < 2 {
		return TokenSet{}, errors.New("token set needs at least two unique tokens")
	}
	out := make([]string, len(tokens))
	copy(out, tokens)
	return TokenSet{tokens: out}, nil
}

// DefaultTokenSet is " A" through " Z".
func DefaultTokenSet() TokenSet {
	tokens := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		tokens = append(tokens, " "+string(c))
	}
	return TokenSet{tokens: tokens}
}

func (s TokenSet) Tokens() []string {
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// First returns the token used for the shared prefix.
func (s TokenSet) First() string { return s.tokens[0] }

// sample draws n tokens uniformly with replacement.
func (s TokenSet) sample(rng *rand.Rand, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.tokens[rng.Intn(len(s.tokens))]
	}
	return out
}

// Task is the instruction appended to every prompt.
type Task struct {
	Text string
}

func NewTask(text string) (Task, error) {
	if text == "" {
		return Task{}, errors.New("task text must not be empty")
	}
	return Task{Text: text}, nil
}

func DefaultTask() Task { return Task{Text: DefaultTaskText} }

// EstimatedTokens is a rough token cost of the task text.
func (t Task) EstimatedTokens() int {
	return int(math.Ceil(float64(len(t.Text)) / charsPerToken))
}
