package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// secondaryTopicCutoff is the minimum share of the winning topic's
// score a topic needs to be reported as secondary.
const secondaryTopicCutoff = 0.4

// TopicRule maps a topic label to the keywords scoring it.
type TopicRule struct {
	Label    string
	Keywords []string
}

// DefaultTopicRules returns the seed topic taxonomy.
func DefaultTopicRules() []TopicRule {
	return []TopicRule{
		{Label: "politics", Keywords: []string{
			"election", "government", "senate", "minister", "policy",
			"parliament", "vote", "legislation", "campaign", "president",
		}},
		{Label: "business", Keywords: []string{
			"market", "economy", "company", "earnings", "investor",
			"stocks", "inflation", "trade", "revenue", "startup",
		}},
		{Label: "technology", Keywords: []string{
			"software", "technology", "startup", "artificial intelligence",
			"internet", "cybersecurity", "chip", "data", "platform",
		}},
		{Label: "health", Keywords: []string{
			"health", "hospital", "vaccine", "disease", "patients",
			"doctors", "pandemic", "treatment", "medical",
		}},
		{Label: "sports", Keywords: []string{
			"game", "season", "team", "championship", "coach",
			"league", "tournament", "playoff", "athlete",
		}},
		{Label: "climate", Keywords: []string{
			"climate", "emissions", "wildfire", "flood", "drought",
			"renewable", "carbon", "weather", "storm",
		}},
	}
}

// topicMatcher pairs one topic's label with its keyword automaton.
type topicMatcher struct {
	label    string
	matcher  *ahocorasick.Matcher
	keywords []string
}

// TopicStage is the built-in keyword topic analyzer.
type TopicStage struct {
	topics []topicMatcher
}

// NewTopicStage builds the stage over the given rules.
func NewTopicStage(rules []TopicRule) *TopicStage {
	topics := make([]topicMatcher, 0, len(rules))
	for _, rule := range rules {
		lower := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			lower[i] = strings.ToLower(kw)
		}
		topics = append(topics, topicMatcher{
			label:    rule.Label,
			matcher:  ahocorasick.NewStringMatcher(lower),
			keywords: lower,
		})
	}
	return &TopicStage{topics: topics}
}

// Name implements Stage.
func (t *TopicStage) Name() domain.StageName { return domain.StageTopic }

// Run labels the document with a primary topic and any secondary
// topics scoring within the cutoff of the winner.
func (t *TopicStage) Run(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := []byte(strings.ToLower(req.Title + ". " + req.Text))
	tokens := len(tokenize(req.Text)) + 1

	scores := make(map[string]float64, len(t.topics))
	for _, tm := range t.topics {
		hitCount := 0
		for _, hit := range tm.matcher.MatchThreadSafe(text) {
			hitCount += strings.Count(string(text), tm.keywords[hit])
		}
		if hitCount > 0 {
			scores[tm.label] = clamp(float64(hitCount)/float64(tokens)*20, 0, 1)
		}
	}

	if len(scores) == 0 {
		return &Output{
			Topics:     &domain.TopicResult{Primary: "general", Confidence: map[string]float64{"general": 0.2}},
			Confidence: 0.2,
		}, nil
	}

	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] != scores[labels[j]] {
			return scores[labels[i]] > scores[labels[j]]
		}
		return labels[i] < labels[j]
	})

	primary := labels[0]
	var secondary []string
	for _, label := range labels[1:] {
		if scores[label] >= scores[primary]*secondaryTopicCutoff {
			secondary = append(secondary, label)
		}
	}

	return &Output{
		Topics: &domain.TopicResult{
			Primary:    primary,
			Secondary:  secondary,
			Confidence: scores,
		},
		Confidence: scores[primary],
	}, nil
}
