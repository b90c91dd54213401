package domain

import (
	"errors"
	"fmt"
)

// FetchError wraps a failed fetch attempt and records whether the
// failure is worth retrying.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch error for %s: status %d", kind, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a FetchError marked transient.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// ParseError signals that extraction produced no usable article, for
// example a body below the minimum length threshold or malformed
// markup. It indicates extraction failure, not bad content.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s: %s", e.URL, e.Reason)
}

// AnalysisErrorKind classifies analysis failures.
type AnalysisErrorKind string

const (
	AnalysisTimeout          AnalysisErrorKind = "timeout"
	AnalysisStageUnavailable AnalysisErrorKind = "stage-unavailable"
	AnalysisAllStagesFailed  AnalysisErrorKind = "all-stages-failed"
)

// AnalysisError reports a failed analysis pass.
type AnalysisError struct {
	ArticleID string
	Kind      AnalysisErrorKind
	Err       error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s for article %s: %v", e.Kind, e.ArticleID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid per-source configuration such
// as a non-positive rate policy or missing selectors. It suspends only
// the offending source, never the pipeline.
type ConfigurationError struct {
	SourceID string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for source %s: %s", e.SourceID, e.Reason)
}
