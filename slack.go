package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

func StartSlackBot(cfg Config, db *sql.DB, classifier *Classifier, api *slack.Client) error {
	client := socketmode.New(api)
	bot := &bot{cfg: cfg, db: db, classifier: classifier, api: api}

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go bot.handleSlashCommand(cmd)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

type bot struct {
	cfg        Config
	db         *sql.DB
	classifier *Classifier
	api        *slack.Client

	// One in-flight classification per request id: the classification
	// fields are not additive, so concurrent writers must be serialized.
	inflightMu sync.Mutex
	inflight   map[int64]bool
}

func (b *bot) handleSlashCommand(cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/project":
		b.handleProject(cmd)
	case "/scope":
		b.handleScope(cmd)
	case "/request":
		b.handleRequest(cmd)
	case "/requests":
		b.handleListRequests(cmd)
	case "/classify":
		b.handleClassify(cmd)
	case "/estimate":
		b.handleEstimate(cmd)
	case "/review":
		b.handleReview(cmd)
	case "/accept":
		b.handleAccept(cmd)
	case "/decline":
		b.handleDecline(cmd)
	case "/propose":
		b.handlePropose(cmd)
	case "/proposal":
		b.handleProposal(cmd)
	case "/health":
		b.handleHealth(cmd)
	case "/drift":
		b.handleDrift(cmd)
	case "/scopebot-help":
		b.handleHelp(cmd)
	}
}

// --- Projects and scope items ---

func (b *bot) handleProject(cmd slack.SlashCommand) {
	args := strings.TrimSpace(cmd.Text)
	switch {
	case strings.HasPrefix(args, "add "):
		name, description := splitPipe(strings.TrimPrefix(args, "add "))
		if name == "" {
			b.postEphemeral(cmd, "Usage: /project add <name> | <description>")
			return
		}
		id, err := CreateProject(b.db, name, description)
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error creating project: %v", err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Project #%d %q created.", id, name))
	case args == "list" || args == "":
		projects, err := ListActiveProjects(b.db)
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error listing projects: %v", err))
			return
		}
		if len(projects) == 0 {
			b.postEphemeral(cmd, "No active projects. Create one with /project add <name> | <description>")
			return
		}
		var lines []string
		for _, p := range projects {
			lines = append(lines, fmt.Sprintf("#%d %s — %s", p.ID, p.Name, p.Description))
		}
		b.postEphemeral(cmd, strings.Join(lines, "\n"))
	default:
		b.postEphemeral(cmd, "Usage: /project add <name> | <description>  or  /project list")
	}
}

func (b *bot) handleScope(cmd slack.SlashCommand) {
	args := strings.TrimSpace(cmd.Text)
	switch {
	case strings.HasPrefix(args, "add "):
		parts := strings.SplitN(strings.TrimPrefix(args, "add "), "|", 4)
		if len(parts) < 2 {
			b.postEphemeral(cmd, "Usage: /scope add <project> | <title> | <description> | <category>")
			return
		}
		project, err := GetProjectByName(b.db, strings.TrimSpace(parts[0]))
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Unknown project %q", strings.TrimSpace(parts[0])))
			return
		}
		item := ScopeItem{ProjectID: project.ID, Title: strings.TrimSpace(parts[1])}
		if len(parts) > 2 {
			item.Description = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			item.Category = strings.TrimSpace(parts[3])
		}
		if item.Title == "" {
			b.postEphemeral(cmd, "Scope item title is required")
			return
		}
		id, err := InsertScopeItem(b.db, item)
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error adding scope item: %v", err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Scope item #%d added to %s: %s", id, project.Name, item.Title))
	case strings.HasPrefix(args, "done "):
		id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(args, "done ")), 10, 64)
		if err != nil {
			b.postEphemeral(cmd, "Usage: /scope done <item_id>")
			return
		}
		if err := MarkScopeItemCompleted(b.db, id, true); err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Scope item #%d marked completed.", id))
	case strings.HasPrefix(args, "list "):
		project, err := GetProjectByName(b.db, strings.TrimSpace(strings.TrimPrefix(args, "list ")))
		if err != nil {
			b.postEphemeral(cmd, "Unknown project")
			return
		}
		items, err := GetScopeItems(b.db, project.ID)
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
			return
		}
		if len(items) == 0 {
			b.postEphemeral(cmd, fmt.Sprintf("%s has no scope items yet.", project.Name))
			return
		}
		var lines []string
		for i, item := range items {
			mark := " "
			if item.IsCompleted {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %d. %s (#%d)", mark, i, item.Title, item.ID)
			if item.Category != "" {
				line += " [" + item.Category + "]"
			}
			lines = append(lines, line)
		}
		b.postEphemeral(cmd, fmt.Sprintf("Scope of %s:\n%s", project.Name, strings.Join(lines, "\n")))
	default:
		b.postEphemeral(cmd, "Usage: /scope add <project> | <title> | <description> | <category>\n/scope list <project>\n/scope done <item_id>")
	}
}

// --- Requests ---

func (b *bot) handleRequest(cmd slack.SlashCommand) {
	projectName, content := splitFirstWord(cmd.Text)
	if projectName == "" || content == "" {
		b.postEphemeral(cmd, "Usage: /request <project> <client request text>")
		return
	}
	project, err := GetProjectByName(b.db, projectName)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Unknown project %q", projectName))
		return
	}

	id, err := InsertClientRequest(b.db, ClientRequest{
		ProjectID: project.ID,
		Content:   content,
		Source:    "slack",
	})
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error saving request: %v", err))
		log.Printf("request insert error user=%s: %v", cmd.UserID, err)
		return
	}

	result, err := b.classifySerialized(id)
	if err != nil {
		// Intake succeeded; the classification stays pending for retry.
		b.postEphemeral(cmd, fmt.Sprintf("Request #%d recorded for %s; classification pending (%v). Re-run with /classify %d.",
			id, project.Name, err, id))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Request #%d recorded for %s.\n%s", id, project.Name, formatResult(result)))
}

func (b *bot) handleClassify(cmd slack.SlashCommand) {
	args := strings.TrimSpace(cmd.Text)
	if strings.HasPrefix(args, "pending ") {
		b.handleClassifyPending(cmd, strings.TrimSpace(strings.TrimPrefix(args, "pending ")))
		return
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.postEphemeral(cmd, "Usage: /classify <request_id>  or  /classify pending <project>")
		return
	}
	result, err := b.classifySerialized(id)
	if err != nil {
		if errors.Is(err, ErrClassificationUnavailable) {
			b.postEphemeral(cmd, fmt.Sprintf("Classifier unavailable for request #%d; it stays pending. (%v)", id, err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Error classifying request #%d: %v", id, err))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Request #%d:\n%s", id, formatResult(result)))
}

// handleClassifyPending re-runs classification over every request of the
// project still pending, typically after scope items were added or the
// classifier was unavailable at intake.
func (b *bot) handleClassifyPending(cmd slack.SlashCommand, projectName string) {
	project, err := GetProjectByName(b.db, projectName)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Unknown project %q", projectName))
		return
	}
	pending, err := GetPendingRequestsByProject(b.db, project.ID)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(pending) == 0 {
		b.postEphemeral(cmd, fmt.Sprintf("No pending requests for %s.", project.Name))
		return
	}

	classified := 0
	var failures []string
	for _, req := range pending {
		result, err := b.classifySerialized(req.ID)
		if err != nil {
			failures = append(failures, fmt.Sprintf("#%d: %v", req.ID, err))
			continue
		}
		classified++
		log.Printf("bulk classify request=%d classification=%s", req.ID, result.Classification)
	}

	msg := fmt.Sprintf("Re-analyzed %d of %d pending requests for %s.", classified, len(pending), project.Name)
	if len(failures) > 0 {
		msg += "\nStill pending:\n" + strings.Join(failures, "\n")
	}
	b.postEphemeral(cmd, msg)
}

func (b *bot) handleEstimate(cmd slack.SlashCommand) {
	fields := strings.Fields(cmd.Text)
	if len(fields) != 2 {
		b.postEphemeral(cmd, "Usage: /estimate <request_id> <hours>")
		return
	}
	id, idErr := strconv.ParseInt(fields[0], 10, 64)
	hours, hoursErr := strconv.ParseFloat(fields[1], 64)
	if idErr != nil || hoursErr != nil || hours < 0 {
		b.postEphemeral(cmd, "Usage: /estimate <request_id> <hours>")
		return
	}
	if err := UpdateRequestEstimatedHours(b.db, id, hours); err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Request #%d estimated at %.1f hours.", id, hours))
}

func (b *bot) classifySerialized(requestID int64) (AnalysisResult, error) {
	b.inflightMu.Lock()
	if b.inflight == nil {
		b.inflight = make(map[int64]bool)
	}
	if b.inflight[requestID] {
		b.inflightMu.Unlock()
		return AnalysisResult{}, fmt.Errorf("classification already in flight for request %d", requestID)
	}
	b.inflight[requestID] = true
	b.inflightMu.Unlock()
	defer func() {
		b.inflightMu.Lock()
		delete(b.inflight, requestID)
		b.inflightMu.Unlock()
	}()

	return ClassifyRequest(context.Background(), b.db, b.classifier, requestID)
}

func (b *bot) handleListRequests(cmd slack.SlashCommand) {
	project, err := GetProjectByName(b.db, strings.TrimSpace(cmd.Text))
	if err != nil {
		b.postEphemeral(cmd, "Usage: /requests <project>")
		return
	}
	requests, err := GetRequestsByProject(b.db, project.ID)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(requests) == 0 {
		b.postEphemeral(cmd, fmt.Sprintf("No requests recorded for %s.", project.Name))
		return
	}
	var lines []string
	for _, req := range requests {
		lines = append(lines, formatRequestLine(req))
	}
	b.postEphemeral(cmd, fmt.Sprintf("Requests for %s:\n%s", project.Name, strings.Join(lines, "\n")))
}

// --- Lifecycle actions ---

func (b *bot) handleReview(cmd slack.SlashCommand) {
	b.lifecycleAction(cmd, "review", func(id int64) (string, error) {
		if err := MarkReviewed(b.db, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Request #%d marked reviewed.", id), nil
	})
}

func (b *bot) handleAccept(cmd slack.SlashCommand) {
	b.lifecycleAction(cmd, "accept", func(id int64) (string, error) {
		flagged, err := AcceptRequest(b.db, id)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("Request #%d accepted.", id)
		if flagged {
			msg += " Note: it was classified out-of-scope and has no proposal — unbilled work."
		}
		return msg, nil
	})
}

func (b *bot) handleDecline(cmd slack.SlashCommand) {
	b.lifecycleAction(cmd, "decline", func(id int64) (string, error) {
		if err := DeclineRequest(b.db, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Request #%d declined.", id), nil
	})
}

func (b *bot) lifecycleAction(cmd slack.SlashCommand, name string, action func(id int64) (string, error)) {
	id, err := strconv.ParseInt(strings.TrimSpace(cmd.Text), 10, 64)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Usage: /%s <request_id>", name))
		return
	}
	msg, err := action(id)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			b.postEphemeral(cmd, fmt.Sprintf("Cannot %s request #%d: %v", name, id, err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Error on request #%d: %v", id, err))
		return
	}
	b.postEphemeral(cmd, msg)
}

func (b *bot) handlePropose(cmd slack.SlashCommand) {
	id, amount, title, err := parseProposeArgs(cmd.Text)
	if err != nil {
		b.postEphemeral(cmd, "Usage: /propose <request_id> <amount> <proposal title>")
		return
	}
	proposalID, err := ConvertToProposal(b.db, id, title, amount)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			b.postEphemeral(cmd, fmt.Sprintf("Cannot propose for request #%d: %v (review it first)", id, err))
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Proposal #%d drafted for request #%d: %s ($%.2f). Mark it sent with /proposal %d sent.",
		proposalID, id, title, amount, proposalID))
}

func (b *bot) handleProposal(cmd slack.SlashCommand) {
	fields := strings.Fields(cmd.Text)
	if len(fields) != 2 {
		b.postEphemeral(cmd, "Usage: /proposal <proposal_id> sent|accepted|declined|expired")
		return
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.postEphemeral(cmd, "Usage: /proposal <proposal_id> sent|accepted|declined|expired")
		return
	}
	status := ProposalStatus(fields[1])
	switch status {
	case ProposalSent, ProposalAccepted, ProposalDeclined, ProposalExpired:
	default:
		b.postEphemeral(cmd, fmt.Sprintf("Unknown proposal status %q", fields[1]))
		return
	}
	if err := UpdateProposalStatus(b.db, id, status); err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("Proposal #%d marked %s.", id, status))
}

// --- Aggregations ---

func (b *bot) handleHealth(cmd slack.SlashCommand) {
	project, err := GetProjectByName(b.db, strings.TrimSpace(cmd.Text))
	if err != nil {
		b.postEphemeral(cmd, "Usage: /health <project>")
		return
	}
	health, err := ProjectHealthSnapshot(b.db, project.ID)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	b.postEphemeral(cmd, formatHealth(project.Name, health))
}

func (b *bot) handleDrift(cmd slack.SlashCommand) {
	now := time.Now().In(b.cfg.Location)
	name := strings.TrimSpace(cmd.Text)
	if name == "" {
		result, err := RunDriftScan(b.cfg, b.db, now)
		if err != nil {
			b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
			return
		}
		b.postEphemeral(cmd, FormatScanSummary(result))
		return
	}

	project, err := GetProjectByName(b.db, name)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Unknown project %q", name))
		return
	}
	since := now.AddDate(0, 0, -b.cfg.DriftWindowDays)
	requests, err := GetRequestsByProjectSince(b.db, project.ID, since)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error: %v", err))
		return
	}
	signal, ok := DetectDrift(project.ID, requests, now, b.cfg.Drift())
	if !ok {
		b.postEphemeral(cmd, fmt.Sprintf("No scope-creep pattern detected for %s.", project.Name))
		return
	}
	alert := BuildDriftAlert(signal, project.Name)
	b.postEphemeral(cmd, fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message))
}

func (b *bot) handleHelp(cmd slack.SlashCommand) {
	b.postEphemeral(cmd, `Scopebot commands:
/project add <name> | <description> — create a project
/scope add <project> | <title> | <description> | <category> — declare scope
/scope done <item_id> — mark a scope item completed
/request <project> <text> — record and classify a client request
/classify <request_id> — (re)classify a request
/classify pending <project> — re-analyze all pending requests
/estimate <request_id> <hours> — record an effort estimate
/requests <project> — list requests with classification and status
/review | /accept | /decline <request_id> — advance the request workflow
/propose <request_id> <amount> <title> — draft a change-order proposal
/proposal <proposal_id> sent|accepted|declined|expired — track the proposal
/health <project> — project health snapshot
/drift [project] — scan for scope-creep patterns`)
}

func (b *bot) postEphemeral(cmd slack.SlashCommand, text string) {
	_, err := b.api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error sending ephemeral to %s: %v", cmd.UserID, err)
	}
}

// --- Parsing and formatting helpers ---

func splitPipe(s string) (string, string) {
	parts := strings.SplitN(s, "|", 2)
	first := strings.TrimSpace(parts[0])
	second := ""
	if len(parts) > 1 {
		second = strings.TrimSpace(parts[1])
	}
	return first, second
}

func splitFirstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

func parseProposeArgs(text string) (id int64, amount float64, title string, err error) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return 0, 0, "", fmt.Errorf("expected <request_id> <amount> <title>")
	}
	id, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("bad request id %q", fields[0])
	}
	amount, err = strconv.ParseFloat(strings.TrimPrefix(fields[1], "$"), 64)
	if err != nil || amount < 0 {
		return 0, 0, "", fmt.Errorf("bad amount %q", fields[1])
	}
	title = strings.Join(fields[2:], " ")
	return id, amount, title, nil
}

func formatResult(result AnalysisResult) string {
	line := fmt.Sprintf("Classification: %s (confidence %.2f) → %s", result.Classification, result.Confidence, result.SuggestedAction)
	if result.MatchedItemIndex != nil {
		line += fmt.Sprintf("\nMatched scope item index: %d", *result.MatchedItemIndex)
	}
	if len(result.Indicators) > 0 {
		line += "\nIndicators: " + strings.Join(result.Indicators, ", ")
	}
	return line + "\n" + result.Reasoning
}

func formatRequestLine(req ClientRequest) string {
	content := req.Content
	if len(content) > 60 {
		content = content[:60] + "..."
	}
	return fmt.Sprintf("#%d [%s/%s] %s", req.ID, req.Classification, req.Status, content)
}

func formatHealth(projectName string, h ProjectHealth) string {
	return fmt.Sprintf(`Health of %s:
Scope: %d/%d items completed (%.0f%%)
Requests: %d total — %d in scope, %d out of scope, %d pending (%.0f%% out of scope)
Proposals: %d sent, %d accepted — $%.2f additional revenue`,
		projectName,
		h.ScopeItemsCompleted, h.ScopeItemsTotal, h.ScopeCompletion*100,
		h.TotalRequests, h.InScopeRequests, h.OutOfScopeRequests, h.PendingRequests, h.OutOfScopePercentage*100,
		h.ProposalsSent, h.ProposalsAccepted, h.AdditionalRevenue)
}
