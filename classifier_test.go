package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// stubAnalyzer returns a canned result or error, for exercising the
// classifier contract without any real strategy.
type stubAnalyzer struct {
	result AnalysisResult
	err    error
}

func (s stubAnalyzer) Analyze(context.Context, ScopeBaseline, string) (AnalysisResult, error) {
	return s.result, s.err
}

func testClassifierConfig() ClassifierConfig {
	return ClassifierConfig{LowConfidence: 0.40, HighConfidence: 0.75, Timeout: 5 * time.Second}
}

func stubResult(classification ScopeClassification, confidence float64) AnalysisResult {
	return AnalysisResult{Classification: classification, Confidence: confidence, Reasoning: "stub"}
}

func TestClassifyRejectsEmptyBaseline(t *testing.T) {
	c := NewClassifier(stubAnalyzer{result: stubResult(ClassificationInScope, 0.9)}, testClassifierConfig())

	_, err := c.Classify(context.Background(), ScopeBaseline{}, "anything")
	if !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline, got %v", err)
	}
}

func TestClassifyWrapsStrategyFailure(t *testing.T) {
	c := NewClassifier(stubAnalyzer{err: fmt.Errorf("upstream down")}, testClassifierConfig())

	_, err := c.Classify(context.Background(), loginBaseline(), "add a button")
	if !errors.Is(err, ErrClassificationUnavailable) {
		t.Fatalf("expected ErrClassificationUnavailable, got %v", err)
	}
}

func TestClassifyActionMapping(t *testing.T) {
	cases := []struct {
		classification ScopeClassification
		action         SuggestedAction
	}{
		{ClassificationInScope, ActionAccept},
		{ClassificationOutOfScope, ActionPropose},
		{ClassificationRevision, ActionPropose},
		{ClassificationClarification, ActionClarify},
	}
	for _, tc := range cases {
		result := stubResult(tc.classification, 0.9)
		if tc.classification == ClassificationInScope || tc.classification == ClassificationRevision {
			result.MatchedItemIndex = intPtr(0)
		}
		c := NewClassifier(stubAnalyzer{result: result}, testClassifierConfig())
		got, err := c.Classify(context.Background(), loginBaseline(), "text")
		if err != nil {
			t.Fatalf("%s: Classify failed: %v", tc.classification, err)
		}
		if got.SuggestedAction != tc.action {
			t.Errorf("%s: expected action %q, got %q", tc.classification, tc.action, got.SuggestedAction)
		}
	}
}

func TestClassifyInvariantViolations(t *testing.T) {
	baseline := loginBaseline()
	cases := []struct {
		name   string
		result AnalysisResult
	}{
		{"unknown classification", stubResult("maybe", 0.9)},
		{"pending from strategy", stubResult(ClassificationPending, 0.9)},
		{"confidence above one", stubResult(ClassificationInScope, 1.2)},
		{"negative confidence", stubResult(ClassificationInScope, -0.1)},
		{"empty reasoning", AnalysisResult{Classification: ClassificationInScope, Confidence: 0.9}},
		{"index out of bounds", func() AnalysisResult {
			r := stubResult(ClassificationInScope, 0.9)
			r.MatchedItemIndex = intPtr(5)
			return r
		}()},
		{"index on out_of_scope", func() AnalysisResult {
			r := stubResult(ClassificationOutOfScope, 0.9)
			r.MatchedItemIndex = intPtr(0)
			return r
		}()},
	}
	for _, tc := range cases {
		c := NewClassifier(stubAnalyzer{result: tc.result}, testClassifierConfig())
		_, err := c.Classify(context.Background(), baseline, "text")
		if !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("%s: expected ErrInvariantViolation, got %v", tc.name, err)
		}
	}
}

func TestThresholdPolicyDemotesAmbiguousInScope(t *testing.T) {
	result := stubResult(ClassificationInScope, 0.6)
	result.MatchedItemIndex = intPtr(0)
	c := NewClassifier(stubAnalyzer{result: result}, testClassifierConfig())

	got, err := c.Classify(context.Background(), loginBaseline(), "text")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Classification != ClassificationClarification {
		t.Fatalf("expected demotion to clarification_needed, got %q", got.Classification)
	}
	if got.MatchedItemIndex != nil {
		t.Fatal("demoted result must not keep the matched index")
	}
	if got.Confidence != 0.6 {
		t.Fatalf("confidence must be reported as-is, got %.2f", got.Confidence)
	}
	if got.SuggestedAction != ActionClarify {
		t.Fatalf("expected clarify action, got %q", got.SuggestedAction)
	}
}

func TestThresholdPolicyDemotesImplausibleInScope(t *testing.T) {
	result := stubResult(ClassificationInScope, 0.2)
	result.MatchedItemIndex = intPtr(0)
	c := NewClassifier(stubAnalyzer{result: result}, testClassifierConfig())

	got, err := c.Classify(context.Background(), loginBaseline(), "text")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Classification != ClassificationOutOfScope {
		t.Fatalf("expected demotion to out_of_scope, got %q", got.Classification)
	}
	found := false
	for _, tag := range got.Indicators {
		if tag == "weak-baseline-match" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected weak-baseline-match indicator, got %v", got.Indicators)
	}
	if got.SuggestedAction != ActionPropose {
		t.Fatalf("expected propose action, got %q", got.SuggestedAction)
	}
}

func TestThresholdPolicyClearsIndicatorsOnConfidentInScope(t *testing.T) {
	result := stubResult(ClassificationInScope, 0.9)
	result.MatchedItemIndex = intPtr(0)
	result.Indicators = []string{"scope-addition"}
	c := NewClassifier(stubAnalyzer{result: result}, testClassifierConfig())

	got, err := c.Classify(context.Background(), loginBaseline(), "text")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Classification != ClassificationInScope {
		t.Fatalf("expected in_scope, got %q", got.Classification)
	}
	if len(got.Indicators) != 0 {
		t.Fatalf("in-scope results must not carry creep tags, got %v", got.Indicators)
	}
	if got.MatchedItemIndex == nil || *got.MatchedItemIndex != 0 {
		t.Fatalf("expected matched index 0, got %v", got.MatchedItemIndex)
	}
}

func TestClassifyRequestPersistsResult(t *testing.T) {
	db := newTestDB(t)
	projectID := newTestProject(t, db, "Portal", "Client portal build")
	if _, err := InsertScopeItem(db, ScopeItem{ProjectID: projectID, Title: "Build login page"}); err != nil {
		t.Fatalf("InsertScopeItem failed: %v", err)
	}
	reqID, err := InsertClientRequest(db, ClientRequest{
		ProjectID: projectID,
		Content:   "Please also add a logout button",
		Source:    "slack",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	c := NewClassifier(newRulesAnalyzer(), testClassifierConfig())
	result, err := ClassifyRequest(context.Background(), db, c, reqID)
	if err != nil {
		t.Fatalf("ClassifyRequest failed: %v", err)
	}
	if result.Classification != ClassificationInScope {
		t.Fatalf("expected in_scope, got %q", result.Classification)
	}

	stored, err := GetClientRequest(db, reqID)
	if err != nil {
		t.Fatalf("GetClientRequest failed: %v", err)
	}
	if stored.Classification != ClassificationInScope || stored.SuggestedAction != ActionAccept {
		t.Fatalf("classification not persisted: %+v", stored)
	}
	if stored.MatchedItemIndex == nil || *stored.MatchedItemIndex != 0 {
		t.Fatalf("expected stored index 0, got %v", stored.MatchedItemIndex)
	}
	if stored.Status != StatusNew {
		t.Fatalf("classification must not move workflow status, got %q", stored.Status)
	}
}

func TestClassifyRequestLeavesPendingOnFailure(t *testing.T) {
	db := newTestDB(t)
	projectID := newTestProject(t, db, "Portal", "Client portal build")
	if _, err := InsertScopeItem(db, ScopeItem{ProjectID: projectID, Title: "Build login page"}); err != nil {
		t.Fatalf("InsertScopeItem failed: %v", err)
	}
	reqID, err := InsertClientRequest(db, ClientRequest{ProjectID: projectID, Content: "x", Source: "slack"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	c := NewClassifier(stubAnalyzer{err: fmt.Errorf("model timeout")}, testClassifierConfig())
	_, err = ClassifyRequest(context.Background(), db, c, reqID)
	if !errors.Is(err, ErrClassificationUnavailable) {
		t.Fatalf("expected ErrClassificationUnavailable, got %v", err)
	}

	stored, err := GetClientRequest(db, reqID)
	if err != nil {
		t.Fatalf("GetClientRequest failed: %v", err)
	}
	if stored.Classification != ClassificationPending {
		t.Fatalf("failed classification must leave the request pending, got %q", stored.Classification)
	}
}

func TestAnalyzerForConfigSelectsStrategy(t *testing.T) {
	rules := AnalyzerForConfig(Config{LLMProvider: "rules"})
	if _, ok := rules.(RulesAnalyzer); !ok {
		t.Fatalf("expected RulesAnalyzer, got %T", rules)
	}
	llm := AnalyzerForConfig(Config{LLMProvider: "anthropic", AnthropicAPIKey: "k"})
	if _, ok := llm.(*LLMAnalyzer); !ok {
		t.Fatalf("expected *LLMAnalyzer, got %T", llm)
	}
}
