package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// ScanResult tracks what a drift scan covered and produced.
type ScanResult struct {
	ProjectsScanned int
	Alerts          []DashboardAlert
	Errors          []string
}

// RunDriftScan runs drift detection over every active project. It has no
// Slack dependency so the slash command and the scheduler share it.
func RunDriftScan(cfg Config, db *sql.DB, now time.Time) (ScanResult, error) {
	projects, err := ListActiveProjects(db)
	if err != nil {
		return ScanResult{}, fmt.Errorf("listing projects: %w", err)
	}

	driftCfg := cfg.Drift()
	var result ScanResult
	for _, project := range projects {
		result.ProjectsScanned++
		since := now.AddDate(0, 0, -driftCfg.WindowDays)
		requests, err := GetRequestsByProjectSince(db, project.ID, since)
		if err != nil {
			log.Printf("drift-scan project=%d error: %v", project.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", project.Name, err))
			continue
		}
		signal, ok := DetectDrift(project.ID, requests, now, driftCfg)
		if !ok {
			continue
		}
		log.Printf("drift-scan project=%d severity=%s rate=%.2f recurring=%q window=%d",
			project.ID, signal.Severity, signal.OutOfScopeRate, signal.RecurringCategory, signal.WindowSize)
		result.Alerts = append(result.Alerts, BuildDriftAlert(signal, project.Name))
	}
	return result, nil
}

// FormatScanSummary returns a human-readable summary of a scan.
func FormatScanSummary(result ScanResult) string {
	if len(result.Alerts) == 0 {
		msg := fmt.Sprintf("Drift scan: %d projects checked, no scope-creep patterns.", result.ProjectsScanned)
		if len(result.Errors) > 0 {
			msg += "\nWarnings:\n" + strings.Join(result.Errors, "\n")
		}
		return msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Drift scan: %d projects checked, %d with scope-creep patterns:\n",
		result.ProjectsScanned, len(result.Alerts))
	for _, alert := range result.Alerts {
		fmt.Fprintf(&b, "• [%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Message)
	}
	if len(result.Errors) > 0 {
		b.WriteString("Warnings:\n" + strings.Join(result.Errors, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// StartDriftScanScheduler starts a cron-based scheduler that periodically
// scans all projects for drift and posts alerts to the alert channel.
// The schedule is a standard 5-field cron expression (minute hour
// day-of-month month day-of-week), e.g. "0 9 * * 1" (Mondays 9am).
func StartDriftScanScheduler(cfg Config, db *sql.DB, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.DriftScanSchedule)
	if schedule == "" {
		log.Println("Drift scan disabled (drift_scan_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid drift_scan_schedule '%s': %v — drift scan disabled", schedule, err)
		return
	}
	log.Printf("Drift scan scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next drift scan at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			result, scanErr := RunDriftScan(cfg, db, time.Now().In(cfg.Location))
			if scanErr != nil {
				log.Printf("Drift scan error: %v", scanErr)
				continue
			}
			summary := FormatScanSummary(result)
			log.Printf("Drift scan complete: projects=%d alerts=%d", result.ProjectsScanned, len(result.Alerts))

			if cfg.AlertChannelID != "" && len(result.Alerts) > 0 {
				_, _, postErr := api.PostMessage(cfg.AlertChannelID, slack.MsgOptionText(summary, false))
				if postErr != nil {
					log.Printf("Drift scan post error: %v", postErr)
				}
			}
		}
	}()
}
