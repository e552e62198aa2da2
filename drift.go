package main

import (
	"fmt"
	"time"
)

// DetectDrift aggregates a project's classified request history into a
// scope-creep pattern signal. It is a pure read over the snapshot handed
// to it; the engine keeps no running counters of its own.
//
// The window is the last WindowDays of requests capped to the most recent
// MaxRequests, whichever is smaller. A signal is emitted only when
// severity reaches medium, or when some creep category recurs. A single
// out-of-scope request never produces one.
func DetectDrift(projectID int64, requests []ClientRequest, now time.Time, cfg DriftConfig) (DriftSignal, bool) {
	window := driftWindow(requests, now, cfg)

	var classified, outOfScope []ClientRequest
	for _, req := range window {
		if !req.IsClassified() {
			continue
		}
		classified = append(classified, req)
		if req.Classification == ClassificationOutOfScope {
			outOfScope = append(outOfScope, req)
		}
	}
	if len(classified) == 0 {
		// Rate is undefined, not zero: nothing to report.
		return DriftSignal{}, false
	}

	rate := float64(len(outOfScope)) / float64(len(classified))
	recurring := recurringCategory(outOfScope, cfg.RecurringMinCount)

	// One isolated out-of-scope request is a per-request event, not a
	// pattern, however high its rate looks in a small window.
	if len(outOfScope) <= 1 && recurring == "" {
		return DriftSignal{}, false
	}

	severity := SeverityLow
	switch {
	case rate >= cfg.HighRate && len(classified) >= cfg.MinClassified:
		severity = SeverityHigh
	case rate >= cfg.MediumRate:
		severity = SeverityMedium
	}

	if severity == SeverityLow && recurring == "" {
		return DriftSignal{}, false
	}
	return DriftSignal{
		ProjectID:         projectID,
		Severity:          severity,
		OutOfScopeRate:    rate,
		RecurringCategory: recurring,
		WindowSize:        len(classified),
	}, true
}

// driftWindow keeps requests within the day window, then caps to the most
// recent MaxRequests. Input order (oldest first) is preserved.
func driftWindow(requests []ClientRequest, now time.Time, cfg DriftConfig) []ClientRequest {
	cutoff := now.AddDate(0, 0, -cfg.WindowDays)
	var window []ClientRequest
	for _, req := range requests {
		if !req.CreatedAt.Before(cutoff) {
			window = append(window, req)
		}
	}
	if cfg.MaxRequests > 0 && len(window) > cfg.MaxRequests {
		window = window[len(window)-cfg.MaxRequests:]
	}
	return window
}

// recurringCategory finds a creep category appearing in at least minCount
// out-of-scope requests. Categories come from the requests' indicator
// tags. Ties break toward the category seen most recently.
func recurringCategory(outOfScope []ClientRequest, minCount int) string {
	counts := map[string]int{}
	lastSeen := map[string]time.Time{}

	note := func(category string, at time.Time) {
		counts[category]++
		if at.After(lastSeen[category]) {
			lastSeen[category] = at
		}
	}

	for _, req := range outOfScope {
		for _, tag := range req.IndicatorTags() {
			note(tag, req.CreatedAt)
		}
	}

	best := ""
	for category, count := range counts {
		if count < minCount {
			continue
		}
		if best == "" ||
			count > counts[best] ||
			(count == counts[best] && lastSeen[category].After(lastSeen[best])) {
			best = category
		}
	}
	return best
}

// BuildDriftAlert turns a signal into the dashboard alert shape.
func BuildDriftAlert(signal DriftSignal, projectName string) DashboardAlert {
	msg := fmt.Sprintf("%s: %.0f%% of the last %d classified requests were out of scope",
		projectName, signal.OutOfScopeRate*100, signal.WindowSize)
	if signal.RecurringCategory != "" {
		msg += fmt.Sprintf(" (recurring: %s)", signal.RecurringCategory)
	}
	return DashboardAlert{
		Type:      AlertTypeScopeCreepPattern,
		Severity:  signal.Severity,
		ProjectID: signal.ProjectID,
		Message:   msg,
	}
}
