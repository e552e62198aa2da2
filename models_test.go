package main

import "testing"

func TestScopeBaselineIsEmpty(t *testing.T) {
	if !(ScopeBaseline{}).IsEmpty() {
		t.Fatal("zero baseline should be empty")
	}
	if (ScopeBaseline{ProjectDescription: "site build"}).IsEmpty() {
		t.Fatal("a project description alone makes the baseline usable")
	}
	if (ScopeBaseline{Items: []ScopeItem{{Title: "Homepage"}}}).IsEmpty() {
		t.Fatal("scope items make the baseline usable")
	}
}

func TestIsClassified(t *testing.T) {
	cases := []struct {
		classification ScopeClassification
		want           bool
	}{
		{ClassificationPending, false},
		{"", false},
		{ClassificationInScope, true},
		{ClassificationOutOfScope, true},
		{ClassificationClarification, true},
		{ClassificationRevision, true},
	}
	for _, tc := range cases {
		req := ClientRequest{Classification: tc.classification}
		if got := req.IsClassified(); got != tc.want {
			t.Errorf("IsClassified(%q) = %v, want %v", tc.classification, got, tc.want)
		}
	}
}

func TestTagRoundTrip(t *testing.T) {
	tags := splitTags("new-feature, scope-addition,,  urgency-pressure ")
	if len(tags) != 3 {
		t.Fatalf("expected 3 tags, got %v", tags)
	}
	if tags[0] != "new-feature" || tags[1] != "scope-addition" || tags[2] != "urgency-pressure" {
		t.Fatalf("unexpected tags: %v", tags)
	}

	joined := joinTags(tags)
	if joined != "new-feature,scope-addition,urgency-pressure" {
		t.Fatalf("unexpected joined string: %q", joined)
	}

	if splitTags("") != nil {
		t.Fatal("empty string should yield no tags")
	}
	if joinTags(nil) != "" {
		t.Fatal("no tags should yield an empty string")
	}
}

func TestIndicatorTags(t *testing.T) {
	req := ClientRequest{Indicators: "minimization,urgency-pressure"}
	tags := req.IndicatorTags()
	if len(tags) != 2 || tags[0] != "minimization" || tags[1] != "urgency-pressure" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}
