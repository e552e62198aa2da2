package main

import (
	"testing"
)

func TestComputeProjectHealthEmptyProject(t *testing.T) {
	health := ComputeProjectHealth(1, nil, nil, nil)
	if health.ProjectID != 1 {
		t.Fatalf("expected project 1, got %d", health.ProjectID)
	}
	if health.ScopeItemsTotal != 0 || health.ScopeCompletion != 0 {
		t.Fatalf("empty project must zero scope fields: %+v", health)
	}
	if health.TotalRequests != 0 || health.OutOfScopePercentage != 0 {
		t.Fatalf("empty project must zero request fields: %+v", health)
	}
	if health.AdditionalRevenue != 0 {
		t.Fatalf("empty project must zero revenue: %+v", health)
	}
}

func TestComputeProjectHealthMix(t *testing.T) {
	items := []ScopeItem{
		{Title: "Homepage", IsCompleted: true},
		{Title: "Gallery", IsCompleted: true},
		{Title: "Contact form"},
		{Title: "Blog"},
	}
	requests := []ClientRequest{
		{Classification: ClassificationInScope},
		{Classification: ClassificationInScope},
		{Classification: ClassificationOutOfScope},
		{Classification: ClassificationRevision},
		{Classification: ClassificationClarification},
		{Classification: ClassificationPending},
		{}, // never touched by a classifier; counts as pending
	}
	proposals := []Proposal{
		{Status: ProposalSent, Amount: 500},
		{Status: ProposalAccepted, Amount: 1200},
		{Status: ProposalAccepted, Amount: 800},
		{Status: ProposalDraft, Amount: 9999},
		{Status: ProposalDeclined, Amount: 300},
	}

	health := ComputeProjectHealth(9, items, requests, proposals)

	if health.ScopeItemsTotal != 4 || health.ScopeItemsCompleted != 2 || health.ScopeCompletion != 0.5 {
		t.Fatalf("unexpected scope fields: %+v", health)
	}
	if health.TotalRequests != 7 || health.InScopeRequests != 2 || health.OutOfScopeRequests != 1 {
		t.Fatalf("unexpected request counts: %+v", health)
	}
	if health.PendingRequests != 2 {
		t.Fatalf("expected 2 pending (explicit + zero value), got %d", health.PendingRequests)
	}
	if health.OutOfScopePercentage != 1.0/7.0 {
		t.Fatalf("out-of-scope percentage over full history, got %.3f", health.OutOfScopePercentage)
	}
	if health.ProposalsSent != 1 || health.ProposalsAccepted != 2 {
		t.Fatalf("unexpected proposal counts: %+v", health)
	}
	if health.AdditionalRevenue != 2000 {
		t.Fatalf("expected 2000 revenue from accepted proposals, got %.2f", health.AdditionalRevenue)
	}
}

func TestProjectHealthSnapshotFromDB(t *testing.T) {
	db := newTestDB(t)
	projectID := newTestProject(t, db, "Bakery Website", "Marketing site")

	itemID, err := InsertScopeItem(db, ScopeItem{ProjectID: projectID, Title: "Homepage"})
	if err != nil {
		t.Fatalf("InsertScopeItem failed: %v", err)
	}
	if _, err := InsertScopeItem(db, ScopeItem{ProjectID: projectID, Title: "Menu page"}); err != nil {
		t.Fatalf("InsertScopeItem failed: %v", err)
	}
	if err := MarkScopeItemCompleted(db, itemID, true); err != nil {
		t.Fatalf("MarkScopeItemCompleted failed: %v", err)
	}

	reqID := insertTestRequest(t, db, projectID, ClientRequest{
		Classification: ClassificationOutOfScope,
	})
	insertTestRequest(t, db, projectID, ClientRequest{
		Classification: ClassificationInScope,
	})

	if err := MarkReviewed(db, reqID); err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}
	proposalID, err := ConvertToProposal(db, reqID, "Extra page", 400)
	if err != nil {
		t.Fatalf("ConvertToProposal failed: %v", err)
	}
	if err := UpdateProposalStatus(db, proposalID, ProposalAccepted); err != nil {
		t.Fatalf("UpdateProposalStatus failed: %v", err)
	}

	health, err := ProjectHealthSnapshot(db, projectID)
	if err != nil {
		t.Fatalf("ProjectHealthSnapshot failed: %v", err)
	}
	if health.ScopeItemsTotal != 2 || health.ScopeItemsCompleted != 1 {
		t.Fatalf("unexpected scope fields: %+v", health)
	}
	if health.TotalRequests != 2 || health.OutOfScopeRequests != 1 || health.InScopeRequests != 1 {
		t.Fatalf("unexpected request fields: %+v", health)
	}
	if health.ProposalsAccepted != 1 || health.AdditionalRevenue != 400 {
		t.Fatalf("unexpected proposal fields: %+v", health)
	}
}
