package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrInvalidTransition: the attempted status change is not in the
// transition table. The stored status is left unchanged.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// validTransitions is the whole workflow: NEW → REVIEWED →
// {ACCEPTED, DECLINED, CONVERTED_TO_PROPOSAL}. The three outcomes are
// terminal. Classification results never appear here; refreshing a
// request's classification is a field update, not a transition.
var validTransitions = map[RequestStatus]map[RequestStatus]bool{
	StatusNew: {
		StatusReviewed: true,
	},
	StatusReviewed: {
		StatusAccepted:  true,
		StatusDeclined:  true,
		StatusConverted: true,
	},
}

func CanTransition(from, to RequestStatus) bool {
	return validTransitions[from][to]
}

// transitionRequest applies from→to atomically: the current status is read
// and checked against the table inside the same transaction that writes
// the new one, so two transitions on one request cannot interleave.
// extra, when non-nil, runs in the same transaction (proposal creation).
func transitionRequest(db *sql.DB, requestID int64, to RequestStatus, extra func(tx *sql.Tx, req ClientRequest) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+requestColumns+` FROM client_requests WHERE id = ?`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		return fmt.Errorf("loading request %d: %w", requestID, err)
	}

	if !CanTransition(req.Status, to) {
		return fmt.Errorf("%w: %s -> %s (request %d)", ErrInvalidTransition, req.Status, to, requestID)
	}

	if extra != nil {
		if err := extra(tx, req); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		`UPDATE client_requests SET status = ?, updated_at = ? WHERE id = ?`,
		to, time.Now().UTC(), requestID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkReviewed records that a human looked at the request.
func MarkReviewed(db *sql.DB, requestID int64) error {
	return transitionRequest(db, requestID, StatusReviewed, nil)
}

// AcceptRequest accepts the work as in-scope. The classification guard is
// advisory: accepting an out-of-scope request without a linked proposal is
// allowed, but flagged to the caller so it can be surfaced.
func AcceptRequest(db *sql.DB, requestID int64) (flagged bool, err error) {
	err = transitionRequest(db, requestID, StatusAccepted, func(_ *sql.Tx, req ClientRequest) error {
		if req.Classification == ClassificationOutOfScope && req.ProposalID == nil {
			flagged = true
			log.Printf("accept flagged request=%d: out-of-scope request accepted without a proposal", requestID)
		}
		return nil
	})
	return flagged, err
}

// DeclineRequest rejects the request.
func DeclineRequest(db *sql.DB, requestID int64) error {
	return transitionRequest(db, requestID, StatusDeclined, nil)
}

// ConvertToProposal generates a change-order proposal for the request and
// moves it to its terminal converted state. Proposal row, request linkage
// and status flip commit together or not at all; the request links to
// exactly one proposal.
func ConvertToProposal(db *sql.DB, requestID int64, title string, amount float64) (int64, error) {
	var proposalID int64
	err := transitionRequest(db, requestID, StatusConverted, func(tx *sql.Tx, req ClientRequest) error {
		if req.ProposalID != nil {
			return fmt.Errorf("request %d already linked to proposal %d", requestID, *req.ProposalID)
		}
		now := time.Now().UTC()
		res, err := tx.Exec(
			`INSERT INTO proposals (project_id, request_id, title, amount, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			req.ProjectID, req.ID, title, amount, ProposalDraft, now, now,
		)
		if err != nil {
			return err
		}
		proposalID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE client_requests SET proposal_id = ? WHERE id = ?`,
			proposalID, req.ID,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Printf("converted request=%d to proposal=%d title=%q amount=%.2f", requestID, proposalID, title, amount)
	return proposalID, nil
}
