// Package analysis orchestrates the multi-stage content analysis of
// accepted articles.
package analysis

import (
	"context"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// Request is the input every stage receives.
type Request struct {
	// Text is the normalized article body.
	Text string
	// Title is the article title; some stages weight it higher.
	Title string
	// Locale is the article language tag.
	Locale string
}

// Output is the uniform stage result. A stage populates only the
// fields for its analysis type.
type Output struct {
	Sentiment *domain.SentimentResult
	Bias      *domain.BiasResult
	Entities  []domain.EntityMention
	Topics    *domain.TopicResult
	// Confidence is the stage's self-reported confidence in [0,1].
	Confidence float64
}

// Stage is a pluggable analyzer. Implementations are black boxes
// behind this contract: they must honor ctx cancellation and return
// within the orchestrator's per-stage timeout.
type Stage interface {
	Name() domain.StageName
	Run(ctx context.Context, req Request) (*Output, error)
}

// MergeEntities merges mentions by (name, type) key: mention counts
// are summed and confidence is averaged weighted by per-mention
// confidence mass. Order of first appearance is preserved.
func MergeEntities(mentions []domain.EntityMention) []domain.EntityMention {
	type key struct{ name, typ string }

	order := make([]key, 0, len(mentions))
	merged := make(map[key]*domain.EntityMention, len(mentions))

	for _, m := range mentions {
		k := key{m.Name, m.Type}
		existing, ok := merged[k]
		if !ok {
			cp := m
			merged[k] = &cp
			order = append(order, k)
			continue
		}

		totalMentions := existing.Mentions + m.Mentions
		if totalMentions > 0 {
			existingMass := existing.Confidence * float64(existing.Mentions)
			addedMass := m.Confidence * float64(m.Mentions)
			existing.Confidence = (existingMass + addedMass) / float64(totalMentions)

			sentimentMass := existing.Sentiment*float64(existing.Mentions) + m.Sentiment*float64(m.Mentions)
			existing.Sentiment = sentimentMass / float64(totalMentions)
		}
		existing.Mentions = totalMentions
	}

	out := make([]domain.EntityMention, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}
