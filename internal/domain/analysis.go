package domain

import "time"

// StageName identifies one analysis stage.
type StageName string

const (
	StageSentiment StageName = "sentiment"
	StageBias      StageName = "bias"
	StageEntity    StageName = "entity"
	StageTopic     StageName = "topic"
)

// Stages lists the fixed ordered set of analysis stages.
var Stages = []StageName{StageSentiment, StageBias, StageEntity, StageTopic}

// BiasDirection is the coarse political lean reported by the bias stage.
type BiasDirection string

const (
	BiasLeft   BiasDirection = "left"
	BiasCenter BiasDirection = "center"
	BiasRight  BiasDirection = "right"
)

// SentimentResult is the sentiment stage output. Score is in [-1,1]
// after cultural adjustment; RawScore and AdjustmentFactor are carried
// so the calibration is auditable, never silently discarded.
type SentimentResult struct {
	Score            float64 `json:"score"`
	RawScore         float64 `json:"raw_score"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
	Confidence       float64 `json:"confidence"`
}

// BiasResult is the bias stage output. Score is in [-1,1] where
// negative leans left and positive leans right.
type BiasResult struct {
	Score      float64       `json:"score"`
	Direction  BiasDirection `json:"direction"`
	Confidence float64       `json:"confidence"`
}

// EntityMention is a named entity aggregated across stage outputs,
// keyed by (Name, Type).
type EntityMention struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Sentiment  float64 `json:"sentiment"`
	Mentions   int     `json:"mentions"`
}

// TopicResult is the topic stage output: a primary label plus any
// secondary labels, each with a confidence.
type TopicResult struct {
	Primary    string             `json:"primary"`
	Secondary  []string           `json:"secondary,omitempty"`
	Confidence map[string]float64 `json:"confidence"`
}

// AnalysisResult is the immutable output of one analysis pass over an
// article. Re-analysis supersedes the record under a new Version; it
// never mutates an existing one. A nil stage field means that stage
// was unavailable for this pass.
type AnalysisResult struct {
	ID         string           `json:"id"`
	ArticleID  string           `json:"article_id"`
	Version    string           `json:"version"`
	Sentiment  *SentimentResult `json:"sentiment,omitempty"`
	Bias       *BiasResult      `json:"bias,omitempty"`
	Entities   []EntityMention  `json:"entities,omitempty"`
	Topics     *TopicResult     `json:"topics,omitempty"`
	Confidence float64          `json:"confidence"`
	Latency    time.Duration    `json:"latency"`
	AnalyzedAt time.Time        `json:"analyzed_at"`
}

// StageCount reports how many of the fixed stages produced output.
func (r *AnalysisResult) StageCount() int {
	n := 0
	if r.Sentiment != nil {
		n++
	}
	if r.Bias != nil {
		n++
	}
	if r.Entities != nil {
		n++
	}
	if r.Topics != nil {
		n++
	}
	return n
}
