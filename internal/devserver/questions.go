package devserver

import (
	"context"
	"encoding/json"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/ai"
)

//go:embed questions.json
var bankJSON []byte

type Question struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// Bank is the pool of questions the practice authority draws from. It ships
// with an embedded set and can be topped up from a language model.
type Bank struct {
	questions []Question
}

func LoadBank() (*Bank, error) {
	var qs []Question
	if err := json.Unmarshal(bankJSON, &qs); err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	return &Bank{questions: qs}, nil
}

func (b *Bank) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range b.questions {
		if !seen[q.Category] {
			seen[q.Category] = true
			out = append(out, q.Category)
		}
	}
	return out
}

// Pick returns up to n questions for a category, shuffled. When the
// category runs dry it falls back to the whole bank.
func (b *Bank) Pick(category string, n int) []Question {
	var pool []Question
	for _, q := range b.questions {
		if q.Category == category {
			pool = append(pool, q)
		}
	}
	if len(pool) < n {
		pool = append([]Question(nil), b.questions...)
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

// TopUp asks the provider for fresh questions in a category and appends the
// ones that parse. Failures only cost variety, so they are logged and
// swallowed.
func (b *Bank) TopUp(ctx context.Context, provider ai.Provider, model, category string, n int) {
	if provider == nil {
		return
	}
	prompt := fmt.Sprintf(
		`Write %d multiple-choice trivia questions about %q as a JSON array. `+
			`Each element: {"text": string, "options": [4 strings], "correct_index": 0-3}.`,
		n, category)
	raw, err := provider.Complete(ctx, model, prompt)
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("question top-up failed")
		return
	}
	// Models occasionally wrap the JSON in a code fence.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var generated []Question
	if err := json.Unmarshal([]byte(raw), &generated); err != nil {
		log.Warn().Err(err).Msg("discarding unparseable generated questions")
		return
	}
	added := 0
	for _, q := range generated {
		if q.Text == "" || len(q.Options) != 4 || q.CorrectIndex < 0 || q.CorrectIndex > 3 {
			continue
		}
		q.ID = uuid.NewString()
		q.Category = category
		b.questions = append(b.questions, q)
		added++
	}
	log.Info().Int("added", added).Str("category", category).Msg("question bank topped up")
}
