package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// Analyzer is the pluggable decision strategy behind the classifier: a
// model call, the rule engine, or anything else satisfying the contract.
// Implementations must be safe for concurrent use across requests.
type Analyzer interface {
	Analyze(ctx context.Context, baseline ScopeBaseline, requestText string) (AnalysisResult, error)
}

var (
	// ErrClassificationUnavailable: the strategy could not produce a
	// result (timeout, upstream failure). The caller leaves the request
	// PENDING; this is never a low-confidence answer.
	ErrClassificationUnavailable = errors.New("classification unavailable")

	// ErrInvalidBaseline: no scope items and no project description.
	ErrInvalidBaseline = errors.New("invalid scope baseline")

	// ErrInvariantViolation: the strategy returned a result that breaks
	// the classification contract. An integration defect, not user error.
	ErrInvariantViolation = errors.New("classification invariant violation")
)

// Classifier wraps a decision strategy behind the fixed contract: baseline
// validation, a caller-imposed timeout, result invariants, the confidence
// threshold policy and the classification→action mapping. Pure with
// respect to its inputs; persisting the result is the caller's job.
type Classifier struct {
	strategy Analyzer
	cfg      ClassifierConfig
}

func NewClassifier(strategy Analyzer, cfg ClassifierConfig) *Classifier {
	return &Classifier{strategy: strategy, cfg: cfg}
}

func (c *Classifier) Classify(ctx context.Context, baseline ScopeBaseline, requestText string) (AnalysisResult, error) {
	if baseline.IsEmpty() {
		return AnalysisResult{}, fmt.Errorf("%w: no scope items and no project description", ErrInvalidBaseline)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	result, err := c.strategy.Analyze(ctx, baseline, requestText)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	if err := validateResult(result, baseline); err != nil {
		return AnalysisResult{}, err
	}

	result = c.applyThresholdPolicy(result)
	result.SuggestedAction = actionFor(result.Classification)
	return result, nil
}

// validateResult rejects out-of-contract strategy output instead of
// letting a corrupt record reach storage.
func validateResult(result AnalysisResult, baseline ScopeBaseline) error {
	switch result.Classification {
	case ClassificationInScope, ClassificationOutOfScope, ClassificationClarification, ClassificationRevision:
	default:
		return fmt.Errorf("%w: classification %q", ErrInvariantViolation, result.Classification)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvariantViolation, result.Confidence)
	}
	if result.Reasoning == "" {
		return fmt.Errorf("%w: empty reasoning", ErrInvariantViolation)
	}
	if result.MatchedItemIndex != nil {
		idx := *result.MatchedItemIndex
		if idx < 0 || idx >= len(baseline.Items) {
			return fmt.Errorf("%w: matched index %d outside baseline of %d items", ErrInvariantViolation, idx, len(baseline.Items))
		}
		if result.Classification != ClassificationInScope && result.Classification != ClassificationRevision {
			return fmt.Errorf("%w: matched index set for classification %q", ErrInvariantViolation, result.Classification)
		}
	}
	return nil
}

// applyThresholdPolicy enforces the confidence policy in one place so it
// holds for every strategy: an in-scope call below the high threshold is
// not something to accept on. Confidence is reported as-is, never clamped.
func (c *Classifier) applyThresholdPolicy(result AnalysisResult) AnalysisResult {
	if result.Classification != ClassificationInScope {
		return result
	}
	if result.Confidence >= c.cfg.HighConfidence {
		result.Indicators = nil // in-scope results carry no creep tags
		return result
	}
	if result.Confidence >= c.cfg.LowConfidence {
		result.Classification = ClassificationClarification
		result.MatchedItemIndex = nil
		result.Reasoning = fmt.Sprintf("%s (confidence %.2f below the %.2f accept threshold)", result.Reasoning, result.Confidence, c.cfg.HighConfidence)
		return result
	}
	// Below even the low threshold the match is not plausible coverage.
	result.Classification = ClassificationOutOfScope
	result.MatchedItemIndex = nil
	result.Indicators = append(result.Indicators, "weak-baseline-match")
	result.Reasoning = fmt.Sprintf("%s (confidence %.2f below the %.2f plausibility threshold)", result.Reasoning, result.Confidence, c.cfg.LowConfidence)
	return result
}

// actionFor is the fixed classification→suggestedAction mapping. The
// action is never chosen by a strategy.
func actionFor(classification ScopeClassification) SuggestedAction {
	switch classification {
	case ClassificationInScope:
		return ActionAccept
	case ClassificationOutOfScope, ClassificationRevision:
		return ActionPropose
	default:
		return ActionClarify
	}
}

// ClassifyRequest loads the request's baseline, classifies its content and
// persists the result onto the record. The request's workflow status is
// untouched: re-running classification refreshes the judgment fields but
// never rewinds where the request sits in the workflow. On
// ErrClassificationUnavailable the record is left as it was, typically
// PENDING, for retry or manual handling.
//
// Concurrent classification of different requests is safe; the caller is
// responsible for not running two classifications of the same request at
// once (see classifySerialized in slack.go).
func ClassifyRequest(ctx context.Context, db *sql.DB, classifier *Classifier, requestID int64) (AnalysisResult, error) {
	req, err := GetClientRequest(db, requestID)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("loading request %d: %w", requestID, err)
	}
	baseline, err := LoadBaseline(db, req.ProjectID)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("loading baseline for project %d: %w", req.ProjectID, err)
	}

	result, err := classifier.Classify(ctx, baseline, req.Content)
	if err != nil {
		return AnalysisResult{}, err
	}

	if err := UpdateRequestClassification(db, requestID, result); err != nil {
		return AnalysisResult{}, fmt.Errorf("storing classification for request %d: %w", requestID, err)
	}
	log.Printf("classified request=%d project=%d classification=%s confidence=%.2f action=%s",
		requestID, req.ProjectID, result.Classification, result.Confidence, result.SuggestedAction)
	return result, nil
}

// AnalyzerForConfig picks the decision strategy: LLM-backed when a
// provider is configured, deterministic rules otherwise.
func AnalyzerForConfig(cfg Config) Analyzer {
	vocab := VocabularyForConfig(cfg)
	switch cfg.LLMProvider {
	case "anthropic", "openai":
		return &LLMAnalyzer{
			Provider:        cfg.LLMProvider,
			Model:           cfg.LLMModel,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
		}
	default:
		return RulesAnalyzer{Vocab: vocab}
	}
}
