package main

import (
	"database/sql"
	"fmt"
)

// ComputeProjectHealth combines scope completion, the classification mix
// over the full request history, and financial recovery from proposals
// into one snapshot. Pure aggregation, no classification logic. Empty
// projects produce zeroed fields, never an error: the dashboard must
// render for a brand-new project too.
func ComputeProjectHealth(projectID int64, items []ScopeItem, requests []ClientRequest, proposals []Proposal) ProjectHealth {
	health := ProjectHealth{ProjectID: projectID}

	health.ScopeItemsTotal = len(items)
	for _, item := range items {
		if item.IsCompleted {
			health.ScopeItemsCompleted++
		}
	}
	if health.ScopeItemsTotal > 0 {
		health.ScopeCompletion = float64(health.ScopeItemsCompleted) / float64(health.ScopeItemsTotal)
	}

	health.TotalRequests = len(requests)
	for _, req := range requests {
		switch req.Classification {
		case ClassificationInScope:
			health.InScopeRequests++
		case ClassificationOutOfScope:
			health.OutOfScopeRequests++
		case ClassificationPending, "":
			health.PendingRequests++
		}
	}
	if health.TotalRequests > 0 {
		health.OutOfScopePercentage = float64(health.OutOfScopeRequests) / float64(health.TotalRequests)
	}

	for _, p := range proposals {
		switch p.Status {
		case ProposalSent:
			health.ProposalsSent++
		case ProposalAccepted:
			health.ProposalsAccepted++
			health.AdditionalRevenue += p.Amount
		}
	}
	return health
}

// ProjectHealthSnapshot loads a project's full history and aggregates it.
func ProjectHealthSnapshot(db *sql.DB, projectID int64) (ProjectHealth, error) {
	items, err := GetScopeItems(db, projectID)
	if err != nil {
		return ProjectHealth{}, fmt.Errorf("loading scope items: %w", err)
	}
	requests, err := GetRequestsByProject(db, projectID)
	if err != nil {
		return ProjectHealth{}, fmt.Errorf("loading requests: %w", err)
	}
	proposals, err := GetProposalsByProject(db, projectID)
	if err != nil {
		return ProjectHealth{}, fmt.Errorf("loading proposals: %w", err)
	}
	return ComputeProjectHealth(projectID, items, requests, proposals), nil
}
