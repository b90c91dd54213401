package analysis

import (
	"context"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// biasDirectionThreshold separates center from left/right leans.
const biasDirectionThreshold = 0.15

// leftMarkers and rightMarkers are framing phrases weighted toward
// either lean. The built-in stage is a coarse reference; real bias
// models plug in behind the Stage contract.
var leftMarkers = map[string]struct{}{
	"progressive": {}, "inequality": {}, "climate": {}, "regulation": {},
	"unions": {}, "welfare": {}, "diversity": {}, "activists": {},
	"marginalized": {}, "austerity": {}, "billionaires": {},
	"underfunded": {}, "exploitation": {},
}

var rightMarkers = map[string]struct{}{
	"conservative": {}, "deregulation": {}, "patriot": {}, "sovereignty": {},
	"taxpayer": {}, "bureaucracy": {}, "woke": {}, "illegals": {},
	"traditional": {}, "freedom": {}, "socialist": {}, "radical": {},
	"overreach": {},
}

// BiasStage is the built-in marker-based political bias analyzer.
type BiasStage struct{}

// NewBiasStage creates the reference bias stage.
func NewBiasStage() *BiasStage { return &BiasStage{} }

// Name implements Stage.
func (b *BiasStage) Name() domain.StageName { return domain.StageBias }

// Run scores lean in [-1,1]: negative left, positive right.
func (b *BiasStage) Run(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenize(req.Text)

	left, right := 0, 0
	for _, t := range tokens {
		if _, ok := leftMarkers[t]; ok {
			left++
		} else if _, ok := rightMarkers[t]; ok {
			right++
		}
	}

	matched := left + right
	score := 0.0
	confidence := 0.3 // unmarked text reads as weakly center
	if matched > 0 {
		score = float64(right-left) / float64(matched)
		confidence = clamp(0.4+float64(matched)/float64(len(tokens))*10, 0, 0.9)
	}

	return &Output{
		Bias: &domain.BiasResult{
			Score:      score,
			Direction:  biasDirection(score),
			Confidence: confidence,
		},
		Confidence: confidence,
	}, nil
}

func biasDirection(score float64) domain.BiasDirection {
	switch {
	case score <= -biasDirectionThreshold:
		return domain.BiasLeft
	case score >= biasDirectionThreshold:
		return domain.BiasRight
	default:
		return domain.BiasCenter
	}
}
