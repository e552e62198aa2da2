package main

import (
	"strings"
	"testing"
)

func TestSplitPipe(t *testing.T) {
	name, description := splitPipe("Bakery Website | Marketing site for a bakery")
	if name != "Bakery Website" || description != "Marketing site for a bakery" {
		t.Fatalf("unexpected split: %q / %q", name, description)
	}

	name, description = splitPipe("Bakery Website")
	if name != "Bakery Website" || description != "" {
		t.Fatalf("unexpected split without pipe: %q / %q", name, description)
	}
}

func TestSplitFirstWord(t *testing.T) {
	project, rest := splitFirstWord("bakery Please also add a logout button")
	if project != "bakery" || rest != "Please also add a logout button" {
		t.Fatalf("unexpected split: %q / %q", project, rest)
	}

	project, rest = splitFirstWord("bakery")
	if project != "bakery" || rest != "" {
		t.Fatalf("unexpected split: %q / %q", project, rest)
	}
}

func TestParseProposeArgs(t *testing.T) {
	id, amount, title, err := parseProposeArgs("12 1500 Wishlist add-on")
	if err != nil {
		t.Fatalf("parseProposeArgs failed: %v", err)
	}
	if id != 12 || amount != 1500 || title != "Wishlist add-on" {
		t.Fatalf("unexpected parse: %d %f %q", id, amount, title)
	}

	if _, amount, _, err := parseProposeArgs("12 $900.50 Rush fee"); err != nil || amount != 900.50 {
		t.Fatalf("dollar prefix should parse: %f %v", amount, err)
	}

	for _, bad := range []string{"", "12", "12 900", "abc 900 title", "12 free title", "12 -5 title"} {
		if _, _, _, err := parseProposeArgs(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFormatResult(t *testing.T) {
	text := formatResult(AnalysisResult{
		Classification:   ClassificationInScope,
		Confidence:       0.87,
		Reasoning:        "Covered by the login page item",
		MatchedItemIndex: intPtr(0),
		SuggestedAction:  ActionAccept,
	})
	for _, want := range []string{"in_scope", "0.87", "accept", "Matched scope item index: 0", "Covered by the login page item"} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted result missing %q:\n%s", want, text)
		}
	}

	creep := formatResult(AnalysisResult{
		Classification:  ClassificationOutOfScope,
		Confidence:      0.8,
		Reasoning:       "New deliverable",
		SuggestedAction: ActionPropose,
		Indicators:      []string{"new-feature", "scope-addition"},
	})
	if !strings.Contains(creep, "Indicators: new-feature, scope-addition") {
		t.Fatalf("formatted result missing indicators:\n%s", creep)
	}
	if strings.Contains(creep, "Matched scope item") {
		t.Fatal("no index line without a matched item")
	}
}

func TestFormatRequestLineTruncates(t *testing.T) {
	long := strings.Repeat("scope ", 30)
	line := formatRequestLine(ClientRequest{
		ID:             4,
		Classification: ClassificationOutOfScope,
		Status:         StatusNew,
		Content:        long,
	})
	if !strings.Contains(line, "#4 [out_of_scope/new]") {
		t.Fatalf("unexpected line: %s", line)
	}
	if !strings.Contains(line, "...") || len(line) > 100 {
		t.Fatalf("long content should be truncated: %s", line)
	}
}

func TestFormatHealth(t *testing.T) {
	text := formatHealth("Bakery Website", ProjectHealth{
		ScopeItemsTotal:      4,
		ScopeItemsCompleted:  2,
		ScopeCompletion:      0.5,
		TotalRequests:        7,
		InScopeRequests:      2,
		OutOfScopeRequests:   1,
		PendingRequests:      2,
		OutOfScopePercentage: 1.0 / 7.0,
		ProposalsSent:        1,
		ProposalsAccepted:    2,
		AdditionalRevenue:    2000,
	})
	for _, want := range []string{"Bakery Website", "2/4 items completed (50%)", "7 total", "$2000.00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("health text missing %q:\n%s", want, text)
		}
	}
}

func TestClassifySerializedGuardsPerRequest(t *testing.T) {
	db := newTestDB(t)
	projectID := newTestProject(t, db, "Portal", "Client portal build")
	if _, err := InsertScopeItem(db, ScopeItem{ProjectID: projectID, Title: "Build login page"}); err != nil {
		t.Fatalf("InsertScopeItem failed: %v", err)
	}
	reqID := insertTestRequest(t, db, projectID, ClientRequest{Content: "Please also add a logout button"})

	b := &bot{db: db, classifier: NewClassifier(newRulesAnalyzer(), testClassifierConfig())}

	// Simulate an in-flight classification for this request id.
	b.inflightMu.Lock()
	b.inflight = map[int64]bool{reqID: true}
	b.inflightMu.Unlock()

	if _, err := b.classifySerialized(reqID); err == nil {
		t.Fatal("expected an in-flight error for the same request id")
	}

	b.inflightMu.Lock()
	delete(b.inflight, reqID)
	b.inflightMu.Unlock()

	result, err := b.classifySerialized(reqID)
	if err != nil {
		t.Fatalf("classifySerialized failed: %v", err)
	}
	if result.Classification != ClassificationInScope {
		t.Fatalf("expected in_scope, got %q", result.Classification)
	}

	// The guard is released after the call.
	b.inflightMu.Lock()
	stillHeld := b.inflight[reqID]
	b.inflightMu.Unlock()
	if stillHeld {
		t.Fatal("in-flight guard not released")
	}
}
