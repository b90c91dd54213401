package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// CalibrationLookup resolves the per-source cultural calibration
// factor applied to raw sentiment scores. Satisfied by the sources
// registry.
type CalibrationLookup interface {
	Calibration(sourceID string) float64
}

// Orchestrator runs the fixed ordered set of analyzer stages over an
// article and aggregates their outputs into one AnalysisResult.
type Orchestrator struct {
	stages       []Stage
	stageTimeout time.Duration
	version      string
	calibration  CalibrationLookup
	log          logger.Logger

	onStageFailure func(stage domain.StageName, kind domain.AnalysisErrorKind)
}

// SetStageFailureHook installs an instrumentation callback invoked for
// every stage that fails or times out. Must be called before Analyze.
func (o *Orchestrator) SetStageFailureHook(fn func(stage domain.StageName, kind domain.AnalysisErrorKind)) {
	o.onStageFailure = fn
}

// NewOrchestrator creates an orchestrator over the given stages.
func NewOrchestrator(
	stages []Stage,
	stageTimeout time.Duration,
	version string,
	calibration CalibrationLookup,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		stages:       stages,
		stageTimeout: stageTimeout,
		version:      version,
		calibration:  calibration,
		log:          log,
	}
}

// stageRun is the joined outcome of one stage.
type stageRun struct {
	name domain.StageName
	out  *Output
	err  error
}

// Analyze runs all stages concurrently against the article, each with
// its own timeout, and joins them at a barrier. A failed stage is
// marked unavailable and lowers overall confidence proportionally; if
// every stage fails the article is reported for retry via
// AnalysisError{all-stages-failed}.
func (o *Orchestrator) Analyze(ctx context.Context, article *domain.Article) (*domain.AnalysisResult, error) {
	start := time.Now()

	req := Request{Text: article.Body, Title: article.Title, Locale: article.Language}
	runs := make([]stageRun, len(o.stages))

	var wg sync.WaitGroup
	for i, stage := range o.stages {
		wg.Add(1)
		go func(i int, stage Stage) {
			defer wg.Done()

			stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
			defer cancel()

			out, err := stage.Run(stageCtx, req)
			if err == nil && stageCtx.Err() != nil {
				err = stageCtx.Err()
			}
			runs[i] = stageRun{name: stage.Name(), out: out, err: err}
		}(i, stage)
	}
	wg.Wait()

	result := &domain.AnalysisResult{
		ID:         uuid.NewString(),
		ArticleID:  article.ID,
		Version:    o.version,
		AnalyzedAt: start,
	}

	failed := 0
	confidenceSum := 0.0

	for _, run := range runs {
		if run.err != nil || run.out == nil {
			failed++
			o.logStageFailure(article.ID, run)
			continue
		}

		confidenceSum += run.out.Confidence
		o.applyStage(result, article.SourceID, run)
	}

	if failed == len(o.stages) {
		return nil, &domain.AnalysisError{
			ArticleID: article.ID,
			Kind:      domain.AnalysisAllStagesFailed,
			Err:       errors.New("no stage produced output"),
		}
	}

	// Overall confidence averages stage confidence over the full stage
	// set, so an unavailable stage lowers it proportionally.
	result.Confidence = confidenceSum / float64(len(o.stages))
	result.Latency = time.Since(start)

	o.log.Debug("analysis complete",
		logger.String("article_id", article.ID),
		logger.Int("stages_failed", failed),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("latency", result.Latency),
	)

	return result, nil
}

// applyStage folds one successful stage output into the result.
func (o *Orchestrator) applyStage(result *domain.AnalysisResult, sourceID string, run stageRun) {
	out := run.out

	switch run.name {
	case domain.StageSentiment:
		if out.Sentiment != nil {
			result.Sentiment = o.calibrate(sourceID, out.Sentiment)
		}
	case domain.StageBias:
		result.Bias = out.Bias
	case domain.StageEntity:
		merged := MergeEntities(append(result.Entities, out.Entities...))
		if merged == nil {
			merged = []domain.EntityMention{}
		}
		result.Entities = merged
	case domain.StageTopic:
		result.Topics = out.Topics
	}
}

// calibrate modulates the raw sentiment score by the per-source
// cultural calibration factor. The factor is carried in the result for
// auditability, never silently discarded.
func (o *Orchestrator) calibrate(sourceID string, s *domain.SentimentResult) *domain.SentimentResult {
	factor := 1.0
	if o.calibration != nil {
		factor = o.calibration.Calibration(sourceID)
	}

	adjusted := clamp(s.RawScore*factor, -1, 1)

	return &domain.SentimentResult{
		Score:            adjusted,
		RawScore:         s.RawScore,
		AdjustmentFactor: factor,
		Confidence:       s.Confidence,
	}
}

func (o *Orchestrator) logStageFailure(articleID string, run stageRun) {
	err := run.err
	if err == nil {
		err = errors.New("stage returned no output")
	}

	kind := domain.AnalysisStageUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.AnalysisTimeout
	}

	if o.onStageFailure != nil {
		o.onStageFailure(run.name, kind)
	}

	o.log.Warn("analysis stage unavailable",
		logger.String("article_id", articleID),
		logger.String("stage", string(run.name)),
		logger.String("kind", string(kind)),
		logger.Error(err),
	)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
