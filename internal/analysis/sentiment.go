package analysis

import (
	"context"
	"strings"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// positiveWords and negativeWords form the sentiment lexicon of the
// built-in reference stage. Production deployments plug in an external
// model behind the same Stage contract.
var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "positive": {}, "success": {},
	"successful": {}, "win": {}, "wins": {}, "won": {}, "growth": {},
	"improve": {}, "improved": {}, "improving": {}, "strong": {}, "gain": {},
	"gains": {}, "benefit": {}, "benefits": {}, "hope": {}, "hopeful": {},
	"progress": {}, "breakthrough": {}, "thriving": {}, "record": {},
	"agreement": {}, "peace": {}, "recovery": {}, "boost": {}, "support": {},
	"celebrate": {}, "celebrated": {}, "achievement": {}, "innovative": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "negative": {}, "failure": {},
	"fail": {}, "failed": {}, "loss": {}, "losses": {}, "lost": {},
	"decline": {}, "declined": {}, "crisis": {}, "weak": {}, "threat": {},
	"threats": {}, "fear": {}, "fears": {}, "collapse": {}, "conflict": {},
	"war": {}, "death": {}, "deaths": {}, "died": {}, "killed": {},
	"disaster": {}, "scandal": {}, "fraud": {}, "corruption": {}, "crash": {},
	"recession": {}, "unemployment": {}, "violence": {}, "attack": {},
	"attacks": {}, "shortage": {}, "cuts": {}, "struggling": {},
}

// lexiconScore computes a [-1,1] polarity score over tokens and the
// fraction of tokens that matched the lexicon.
func lexiconScore(tokens []string) (score, coverage float64) {
	if len(tokens) == 0 {
		return 0, 0
	}

	pos, neg := 0, 0
	for _, t := range tokens {
		if _, ok := positiveWords[t]; ok {
			pos++
		} else if _, ok := negativeWords[t]; ok {
			neg++
		}
	}

	matched := pos + neg
	if matched == 0 {
		return 0, 0
	}

	return float64(pos-neg) / float64(matched), float64(matched) / float64(len(tokens))
}

// tokenize lowercases and splits text on non-letter boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9') && r < 0x80
	})
}

// SentimentStage is the built-in lexicon-based sentiment analyzer.
type SentimentStage struct{}

// NewSentimentStage creates the reference sentiment stage.
func NewSentimentStage() *SentimentStage { return &SentimentStage{} }

// Name implements Stage.
func (s *SentimentStage) Name() domain.StageName { return domain.StageSentiment }

// Run scores the document polarity. Confidence grows with lexicon
// coverage and is discounted for non-English locales the lexicon does
// not cover.
func (s *SentimentStage) Run(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenize(req.Text)
	score, coverage := lexiconScore(tokens)

	confidence := clamp(0.35+coverage*8, 0, 0.95)
	if req.Locale != "" && req.Locale != "en" {
		confidence *= 0.5
	}

	return &Output{
		Sentiment: &domain.SentimentResult{
			Score:            score,
			RawScore:         score,
			AdjustmentFactor: 1.0,
			Confidence:       confidence,
		},
		Confidence: confidence,
	}, nil
}
