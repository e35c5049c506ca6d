// internal/evaluation/harness.go
// Package evaluation scores a chat model against reference answers with cheap heuristics (length
// ratio, keyword overlap, coherence) and aggregates the scores per intent.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mwiater/supportbot/internal/inference"
)

// ErrNoItems is returned by Run when there is nothing to evaluate.
var ErrNoItems = errors.New("evaluation: no items")

// Item is one held-out support query with its reference answer.
type Item struct {
	Instruction string `json:"instruction" yaml:"instruction"`
	Response    string `json:"response" yaml:"response"`
	Intent      string `json:"intent" yaml:"intent"`
}

// IntentStats counts items and coherent responses for one intent.
type IntentStats struct {
	Count    int `json:"count"`
	Coherent int `json:"coherent"`
}

// Rate returns the fraction of coherent responses, or 0 when Count is 0.
func (s IntentStats) Rate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Coherent) / float64(s.Count)
}

// Result aggregates one evaluation run. The sums are accumulated per item and the rates are derived
// once at the end by dividing by Total.
type Result struct {
	RunID           string                  `json:"run_id"`
	Timestamp       string                  `json:"timestamp"`
	Model           string                  `json:"model,omitempty"`
	Total           int                     `json:"total"`
	Coherent        int                     `json:"coherent"`
	LengthScore     float64                 `json:"length_score"`
	KeywordScore    float64                 `json:"keyword_score"`
	ByIntent        map[string]*IntentStats `json:"by_intent"`
	IntentOrder     []string                `json:"intent_order"`
	CoherenceRate   float64                 `json:"coherence_rate"`
	AvgLengthScore  float64                 `json:"avg_length_score"`
	AvgKeywordScore float64                 `json:"avg_keyword_score"`
}

// SortedIntents returns at most limit intents in lexicographic order. A limit <= 0 returns all.
func (r Result) SortedIntents(limit int) []string {
	intents := make([]string, 0, len(r.ByIntent))
	for intent := range r.ByIntent {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	if limit > 0 && len(intents) > limit {
		intents = intents[:limit]
	}
	return intents
}

// Progress is called after each item is scored. i is 1-based.
type Progress func(i, total int, item Item, response string, coherent bool)

type options struct {
	progress Progress
	model    string
	now      func() time.Time
}

// Option configures Run.
type Option func(*options)

// WithProgress reports each scored item.
func WithProgress(p Progress) Option {
	return func(o *options) { o.progress = p }
}

// WithModel labels the result with the evaluated model's name.
func WithModel(name string) Option {
	return func(o *options) { o.model = name }
}

// Run asks chatter every item's instruction in order and scores the responses. The first chat error
// aborts the run and is returned; no partial result is kept.
func Run(ctx context.Context, chatter inference.Chatter, items []Item, opts ...Option) (Result, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if len(items) == 0 {
		return Result{}, ErrNoItems
	}

	result := Result{
		RunID:     uuid.NewString(),
		Timestamp: o.now().Format(time.RFC3339),
		Model:     o.model,
		Total:     len(items),
		ByIntent:  make(map[string]*IntentStats),
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		generated, err := chatter.Chat(ctx, item.Instruction)
		if err != nil {
			return Result{}, fmt.Errorf("item %d (%s): %w", i+1, item.Intent, err)
		}

		coherence := Coherence(generated)
		result.LengthScore += ResponseLength(generated, item.Response)
		result.KeywordScore += KeywordOverlap(generated, item.Response)

		stats, ok := result.ByIntent[item.Intent]
		if !ok {
			stats = &IntentStats{}
			result.ByIntent[item.Intent] = stats
			result.IntentOrder = append(result.IntentOrder, item.Intent)
		}
		stats.Count++
		if coherence == 1.0 {
			result.Coherent++
			stats.Coherent++
		}

		if o.progress != nil {
			o.progress(i+1, len(items), item, generated, coherence == 1.0)
		}
	}

	n := float64(result.Total)
	result.CoherenceRate = float64(result.Coherent) / n
	result.AvgLengthScore = result.LengthScore / n
	result.AvgKeywordScore = result.KeywordScore / n
	return result, nil
}
