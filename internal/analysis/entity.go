package analysis

import (
	"context"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// EntityStage is the built-in gazetteer entity analyzer: an
// Aho-Corasick scan over a configured name -> type dictionary, with a
// per-entity local sentiment computed from the sentences mentioning it.
type EntityStage struct {
	matcher *ahocorasick.Matcher
	names   []string
	types   map[string]string
}

// DefaultGazetteer returns a seed entity dictionary. Deployments
// extend or replace it from configuration.
func DefaultGazetteer() map[string]string {
	return map[string]string{
		"united nations":   "organization",
		"european union":   "organization",
		"white house":      "organization",
		"federal reserve":  "organization",
		"world bank":       "organization",
		"nato":             "organization",
		"congress":         "organization",
		"parliament":       "organization",
		"supreme court":    "organization",
		"united states":    "location",
		"china":            "location",
		"russia":           "location",
		"ukraine":          "location",
		"germany":          "location",
		"france":           "location",
		"canada":           "location",
		"ontario":          "location",
		"toronto":          "location",
		"washington":       "location",
		"brussels":         "location",
		"covid-19":         "event",
		"climate change":   "event",
	}
}

// NewEntityStage builds the stage over the given gazetteer. Matching
// is case-insensitive.
func NewEntityStage(gazetteer map[string]string) *EntityStage {
	names := make([]string, 0, len(gazetteer))
	types := make(map[string]string, len(gazetteer))

	for name, typ := range gazetteer {
		lower := strings.ToLower(name)
		names = append(names, lower)
		types[lower] = typ
	}

	return &EntityStage{
		matcher: ahocorasick.NewStringMatcher(names),
		names:   names,
		types:   types,
	}
}

// Name implements Stage.
func (e *EntityStage) Name() domain.StageName { return domain.StageEntity }

// Run extracts entity mentions ordered by mention count.
func (e *EntityStage) Run(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.ToLower(req.Title + ". " + req.Text)
	hits := e.matcher.MatchThreadSafe([]byte(text))

	sentences := splitSentences(text)
	mentions := make([]domain.EntityMention, 0, len(hits))

	for _, hit := range hits {
		name := e.names[hit]
		count := strings.Count(text, name)
		if count == 0 {
			continue
		}

		mentions = append(mentions, domain.EntityMention{
			Name:       name,
			Type:       e.types[name],
			Confidence: clamp(0.6+0.1*float64(count), 0, 0.95),
			Sentiment:  localSentiment(sentences, name),
			Mentions:   count,
		})
	}

	confidence := 0.5
	if len(mentions) > 0 {
		sum := 0.0
		for _, m := range mentions {
			sum += m.Confidence
		}
		confidence = sum / float64(len(mentions))
	}

	return &Output{Entities: mentions, Confidence: confidence}, nil
}

// localSentiment averages the lexicon polarity of the sentences that
// mention the entity.
func localSentiment(sentences []string, name string) float64 {
	sum := 0.0
	n := 0

	for _, s := range sentences {
		if !strings.Contains(s, name) {
			continue
		}
		score, _ := lexiconScore(tokenize(s))
		sum += score
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}
