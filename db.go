package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		status      TEXT DEFAULT 'active',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scope_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id   INTEGER NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT DEFAULT '',
		category     TEXT DEFAULT '',
		position     INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_scope_items_project ON scope_items(project_id, position);

	CREATE TABLE IF NOT EXISTS client_requests (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id         INTEGER NOT NULL,
		content            TEXT NOT NULL,
		source             TEXT NOT NULL DEFAULT 'slack',
		classification     TEXT NOT NULL DEFAULT 'pending',
		confidence         REAL NOT NULL DEFAULT 0,
		reasoning          TEXT DEFAULT '',
		matched_item_index INTEGER,
		suggested_action   TEXT DEFAULT '',
		indicators         TEXT DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'new',
		estimated_hours    REAL NOT NULL DEFAULT 0,
		proposal_id        INTEGER,
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_project ON client_requests(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_classification ON client_requests(classification);

	CREATE TABLE IF NOT EXISTS proposals (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		request_id INTEGER NOT NULL,
		title      TEXT NOT NULL,
		amount     REAL NOT NULL DEFAULT 0,
		status     TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_proposals_project ON proposals(project_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// --- Projects ---

func CreateProject(db *sql.DB, name, description string) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO projects (name, description, status) VALUES (?, ?, 'active')`,
		name, description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetProjectByName(db *sql.DB, name string) (Project, error) {
	var p Project
	err := db.QueryRow(
		`SELECT id, name, description, status, created_at FROM projects WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt)
	return p, err
}

func GetProjectByID(db *sql.DB, id int64) (Project, error) {
	var p Project
	err := db.QueryRow(
		`SELECT id, name, description, status, created_at FROM projects WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt)
	return p, err
}

func ListActiveProjects(db *sql.DB) ([]Project, error) {
	rows, err := db.Query(
		`SELECT id, name, description, status, created_at FROM projects WHERE status = 'active' ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Scope items ---

func InsertScopeItem(db *sql.DB, item ScopeItem) (int64, error) {
	if item.Position == 0 {
		// Append after the current last item.
		_ = db.QueryRow(
			`SELECT COALESCE(MAX(position), 0) + 1 FROM scope_items WHERE project_id = ?`,
			item.ProjectID,
		).Scan(&item.Position)
	}
	res, err := db.Exec(
		`INSERT INTO scope_items (project_id, title, description, category, position, is_completed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ProjectID, item.Title, item.Description, item.Category, item.Position, item.IsCompleted,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetScopeItems(db *sql.DB, projectID int64) ([]ScopeItem, error) {
	rows, err := db.Query(
		`SELECT id, project_id, title, description, category, position, is_completed, created_at
		 FROM scope_items WHERE project_id = ? ORDER BY position, id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ScopeItem
	for rows.Next() {
		var item ScopeItem
		if err := rows.Scan(
			&item.ID, &item.ProjectID, &item.Title, &item.Description,
			&item.Category, &item.Position, &item.IsCompleted, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func MarkScopeItemCompleted(db *sql.DB, id int64, completed bool) error {
	_, err := db.Exec(`UPDATE scope_items SET is_completed = ? WHERE id = ?`, completed, id)
	return err
}

// LoadBaseline builds the read-only classification snapshot for a project.
func LoadBaseline(db *sql.DB, projectID int64) (ScopeBaseline, error) {
	project, err := GetProjectByID(db, projectID)
	if err != nil {
		return ScopeBaseline{}, err
	}
	items, err := GetScopeItems(db, projectID)
	if err != nil {
		return ScopeBaseline{}, err
	}
	return ScopeBaseline{ProjectDescription: project.Description, Items: items}, nil
}

// --- Client requests ---

func InsertClientRequest(db *sql.DB, req ClientRequest) (int64, error) {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	if req.Classification == "" {
		req.Classification = ClassificationPending
	}
	if req.Status == "" {
		req.Status = StatusNew
	}
	res, err := db.Exec(
		`INSERT INTO client_requests
		 (project_id, content, source, classification, confidence, reasoning, matched_item_index,
		  suggested_action, indicators, status, estimated_hours, proposal_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ProjectID, req.Content, req.Source, req.Classification, req.Confidence, req.Reasoning,
		nullableInt(req.MatchedItemIndex), req.SuggestedAction, req.Indicators, req.Status,
		req.EstimatedHours, nullableInt64(req.ProposalID), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const requestColumns = `id, project_id, content, source, classification, confidence, reasoning,
	matched_item_index, suggested_action, indicators, status, estimated_hours, proposal_id,
	created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (ClientRequest, error) {
	var req ClientRequest
	var matched sql.NullInt64
	var proposal sql.NullInt64
	err := row.Scan(
		&req.ID, &req.ProjectID, &req.Content, &req.Source, &req.Classification,
		&req.Confidence, &req.Reasoning, &matched, &req.SuggestedAction, &req.Indicators,
		&req.Status, &req.EstimatedHours, &proposal, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return req, err
	}
	if matched.Valid {
		idx := int(matched.Int64)
		req.MatchedItemIndex = &idx
	}
	if proposal.Valid {
		id := proposal.Int64
		req.ProposalID = &id
	}
	return req, nil
}

func GetClientRequest(db *sql.DB, id int64) (ClientRequest, error) {
	row := db.QueryRow(`SELECT `+requestColumns+` FROM client_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func GetRequestsByProject(db *sql.DB, projectID int64) ([]ClientRequest, error) {
	return queryRequests(db,
		`SELECT `+requestColumns+` FROM client_requests WHERE project_id = ? ORDER BY created_at, id`,
		projectID,
	)
}

// GetRequestsByProjectSince returns the time-ordered classified-or-not
// history from `since` onward, newest last.
func GetRequestsByProjectSince(db *sql.DB, projectID int64, since time.Time) ([]ClientRequest, error) {
	return queryRequests(db,
		`SELECT `+requestColumns+` FROM client_requests
		 WHERE project_id = ? AND created_at >= ? ORDER BY created_at, id`,
		projectID, since,
	)
}

func GetPendingRequestsByProject(db *sql.DB, projectID int64) ([]ClientRequest, error) {
	return queryRequests(db,
		`SELECT `+requestColumns+` FROM client_requests
		 WHERE project_id = ? AND classification = ? ORDER BY created_at, id`,
		projectID, ClassificationPending,
	)
}

func queryRequests(db *sql.DB, query string, args ...any) ([]ClientRequest, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []ClientRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateRequestClassification overwrites the classification fields only.
// Status is workflow state and is owned by the lifecycle (lifecycle.go).
func UpdateRequestClassification(db *sql.DB, id int64, result AnalysisResult) error {
	_, err := db.Exec(
		`UPDATE client_requests
		 SET classification = ?, confidence = ?, reasoning = ?, matched_item_index = ?,
		     suggested_action = ?, indicators = ?, updated_at = ?
		 WHERE id = ?`,
		result.Classification, result.Confidence, result.Reasoning,
		nullableInt(result.MatchedItemIndex), result.SuggestedAction,
		joinTags(result.Indicators), time.Now().UTC(), id,
	)
	return err
}

func UpdateRequestEstimatedHours(db *sql.DB, id int64, hours float64) error {
	_, err := db.Exec(
		`UPDATE client_requests SET estimated_hours = ?, updated_at = ? WHERE id = ?`,
		hours, time.Now().UTC(), id,
	)
	return err
}

// --- Proposals ---

func GetProposalsByProject(db *sql.DB, projectID int64) ([]Proposal, error) {
	rows, err := db.Query(
		`SELECT id, project_id, request_id, title, amount, status, created_at, updated_at
		 FROM proposals WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []Proposal
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.RequestID, &p.Title, &p.Amount,
			&p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

func GetProposalByID(db *sql.DB, id int64) (Proposal, error) {
	var p Proposal
	err := db.QueryRow(
		`SELECT id, project_id, request_id, title, amount, status, created_at, updated_at
		 FROM proposals WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.ProjectID, &p.RequestID, &p.Title, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func UpdateProposalStatus(db *sql.DB, id int64, status ProposalStatus) error {
	_, err := db.Exec(
		`UPDATE proposals SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
