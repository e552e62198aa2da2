package main

import (
	"strings"
	"time"
)

// ScopeClassification says what kind of request this is relative to the
// project's scope baseline. It is a judgment, set by the classifier, and
// independent of the request's workflow status.
type ScopeClassification string

const (
	ClassificationPending       ScopeClassification = "pending" // not yet classified
	ClassificationInScope       ScopeClassification = "in_scope"
	ClassificationOutOfScope    ScopeClassification = "out_of_scope"
	ClassificationClarification ScopeClassification = "clarification_needed"
	ClassificationRevision      ScopeClassification = "revision"
)

// RequestStatus is the workflow state of a request. Unlike classification
// it is advanced only by human/lifecycle actions and never moves backward.
type RequestStatus string

const (
	StatusNew       RequestStatus = "new"
	StatusReviewed  RequestStatus = "reviewed"
	StatusAccepted  RequestStatus = "accepted"
	StatusDeclined  RequestStatus = "declined"
	StatusConverted RequestStatus = "converted_to_proposal"
)

type SuggestedAction string

const (
	ActionAccept  SuggestedAction = "accept"
	ActionPropose SuggestedAction = "propose"
	ActionClarify SuggestedAction = "clarify"
)

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalSent     ProposalStatus = "sent"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalDeclined ProposalStatus = "declined"
	ProposalExpired  ProposalStatus = "expired"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Project struct {
	ID          int64
	Name        string
	Description string
	Status      string // "active", "completed", "on_hold"
	CreatedAt   time.Time
}

type ScopeItem struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Category    string
	Position    int // insertion order = match-priority order
	IsCompleted bool
	CreatedAt   time.Time
}

// ScopeBaseline is the read-only snapshot a classification call runs
// against: the project's declared scope items in insertion order plus the
// project description. The engine never mutates it.
type ScopeBaseline struct {
	ProjectDescription string
	Items              []ScopeItem
}

func (b ScopeBaseline) IsEmpty() bool {
	return len(b.Items) == 0 && b.ProjectDescription == ""
}

type ClientRequest struct {
	ID               int64
	ProjectID        int64
	Content          string
	Source           string // "slack", "email", "chat", "other"
	Classification   ScopeClassification
	Confidence       float64
	Reasoning        string
	MatchedItemIndex *int // index into the baseline, nil unless in_scope/revision
	SuggestedAction  SuggestedAction
	Indicators       string // comma-separated scope-creep tags: "new-feature,scope-addition"
	Status           RequestStatus
	EstimatedHours   float64
	ProposalID       *int64 // set when converted to a proposal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (r ClientRequest) IsClassified() bool {
	return r.Classification != "" && r.Classification != ClassificationPending
}

// IndicatorTags splits the stored comma-separated indicator string.
func (r ClientRequest) IndicatorTags() []string {
	return splitTags(r.Indicators)
}

type Proposal struct {
	ID        int64
	ProjectID int64
	RequestID int64
	Title     string
	Amount    float64
	Status    ProposalStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnalysisResult is the classifier's sole output. A caller persists it
// onto a ClientRequest; the classifier itself has no side effects.
type AnalysisResult struct {
	Classification   ScopeClassification
	Confidence       float64
	Reasoning        string
	MatchedItemIndex *int
	SuggestedAction  SuggestedAction
	Indicators       []string
}

// DriftSignal is an aggregate, multi-request indication of scope creep.
// A single out-of-scope request never produces one.
type DriftSignal struct {
	ProjectID         int64
	Severity          Severity
	OutOfScopeRate    float64
	RecurringCategory string // empty when no category recurs
	WindowSize        int    // classified requests in the window
}

const AlertTypeScopeCreepPattern = "scope_creep_pattern"

type DashboardAlert struct {
	Type      string
	Severity  Severity
	ProjectID int64
	Message   string
}

type ProjectHealth struct {
	ProjectID           int64
	ScopeItemsTotal     int
	ScopeItemsCompleted int
	ScopeCompletion     float64 // completed/total, 0 when no items

	TotalRequests        int
	InScopeRequests      int
	OutOfScopeRequests   int
	PendingRequests      int
	OutOfScopePercentage float64 // over full history, not the drift window

	ProposalsSent     int
	ProposalsAccepted int
	AdditionalRevenue float64 // sum of accepted proposal amounts
}

func splitTags(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func intPtr(i int) *int { return &i }
