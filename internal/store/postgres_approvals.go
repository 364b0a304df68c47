package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const maxVersionAttempts = 5

var ErrVersionConflict = errors.New("document version conflict")

// RecordDecision appends one decision to the approval ledger. The scope's
// progress row is locked for the whole transaction, so plan sees the
// approved count every concurrent submitter will see after it commits.
// Returning an error from plan aborts without writing.
func (s *PostgresStore) RecordDecision(ctx context.Context, scope ApprovalScope, plan func(approved int) (DecisionPlan, error)) (ApprovalDecision, error) {
	var decision ApprovalDecision

	err := inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE projectid = $1)`, scope.ProjectID).Scan(&exists); err != nil {
			return fmt.Errorf("check project: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO approval_progress (projectid, filetype, approved_count)
			VALUES ($1, $2, 0)
			ON CONFLICT (projectid, filetype) DO NOTHING
		`, scope.ProjectID, scope.FileType); err != nil {
			return fmt.Errorf("ensure approval progress: %w", err)
		}

		var approved int
		if err := tx.QueryRowContext(ctx, `
			SELECT approved_count FROM approval_progress
			WHERE projectid = $1 AND filetype = $2
			FOR UPDATE
		`, scope.ProjectID, scope.FileType).Scan(&approved); err != nil {
			return fmt.Errorf("lock approval progress: %w", err)
		}

		planned, err := plan(approved)
		if err != nil {
			return err
		}

		decision = planned.Decision
		decision.ProjectID = scope.ProjectID
		decision.FileType = scope.FileType
		decision.StageIndex = approved
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO approvals (projectid, userid, filetype, status, comments, stage_index)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING approvalid, created_at
		`, decision.ProjectID, decision.UserID, decision.FileType, decision.Status, decision.Comments, decision.StageIndex).Scan(&decision.ID, &decision.CreatedAt); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}

		if decision.Status != DecisionApproved {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE approval_progress SET approved_count = approved_count + 1, updated_at = NOW()
			WHERE projectid = $1 AND filetype = $2
		`, scope.ProjectID, scope.FileType); err != nil {
			return fmt.Errorf("advance approval progress: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET stage = $2 WHERE projectid = $1`, scope.ProjectID, planned.StageLabel); err != nil {
			return fmt.Errorf("update project stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return ApprovalDecision{}, err
	}
	return decision, nil
}

// CountDecisions counts ledger rows for the scope.
func (s *PostgresStore) CountDecisions(ctx context.Context, scope ApprovalScope) (ApprovalCounts, error) {
	var counts ApprovalCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'Approved'),
			COUNT(*) FILTER (WHERE status = 'Rejected')
		FROM approvals
		WHERE projectid = $1 AND filetype = $2
	`, scope.ProjectID, scope.FileType).Scan(&counts.Approved, &counts.Rejected)
	if err != nil {
		return ApprovalCounts{}, fmt.Errorf("count decisions: %w", err)
	}
	return counts, nil
}

// ListRejections returns rejections in ledger order with the rejector's
// current role on the project; Role is empty when they are no longer a
// stakeholder.
func (s *PostgresStore) ListRejections(ctx context.Context, scope ApprovalScope) ([]RejectionDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.userid, COALESCE(s.role, ''), a.comments
		FROM approvals a
		LEFT JOIN stakeholders s ON s.projectid = a.projectid AND s.userid = a.userid
		WHERE a.projectid = $1 AND a.filetype = $2 AND a.status = 'Rejected'
		ORDER BY a.approvalid
	`, scope.ProjectID, scope.FileType)
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	defer rows.Close()

	var out []RejectionDetail
	for rows.Next() {
		var detail RejectionDetail
		if err := rows.Scan(&detail.UserID, &detail.Role, &detail.Comments); err != nil {
			return nil, err
		}
		out = append(out, detail)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListDecisions(ctx context.Context, projectID int64) ([]ApprovalDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT approvalid, projectid, userid, filetype, status, comments, stage_index, created_at
		FROM approvals
		WHERE projectid = $1
		ORDER BY approvalid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []ApprovalDecision
	for rows.Next() {
		var item ApprovalDecision
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.UserID, &item.FileType, &item.Status, &item.Comments, &item.StageIndex, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Document versions

// InsertDocumentVersion stores the next version for (project, file type).
// The version is computed inside the INSERT and the unique constraint on
// (projectid, filetype, version) turns a concurrent collision into a retry.
func (s *PostgresStore) InsertDocumentVersion(ctx context.Context, doc DocumentVersion) (DocumentVersion, error) {
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO files (projectid, filetype, bloburl, version, uploadedby)
			SELECT $1::bigint, $2::text, $3::text, COALESCE(MAX(version), 0) + 1, $4::bigint
			FROM files
			WHERE projectid = $1 AND filetype = $2
			RETURNING fileid, version, created_at
		`, doc.ProjectID, doc.FileType, doc.BlobURL, doc.UploadedBy).Scan(&doc.ID, &doc.Version, &doc.CreatedAt)
		if err == nil {
			return doc, nil
		}
		if IsUniqueViolation(err) {
			continue
		}
		if IsForeignKeyViolation(err) {
			return DocumentVersion{}, sql.ErrNoRows
		}
		return DocumentVersion{}, fmt.Errorf("insert document version: %w", err)
	}
	return DocumentVersion{}, ErrVersionConflict
}

func (s *PostgresStore) GetDocumentVersion(ctx context.Context, projectID int64, fileType string, version int) (DocumentVersion, error) {
	var doc DocumentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT fileid, projectid, filetype, bloburl, version, uploadedby, created_at
		FROM files
		WHERE projectid = $1 AND filetype = $2 AND version = $3
	`, projectID, fileType, version).Scan(&doc.ID, &doc.ProjectID, &doc.FileType, &doc.BlobURL, &doc.Version, &doc.UploadedBy, &doc.CreatedAt)
	return doc, err
}

// ListDocumentVersions lists versions oldest first. An empty fileType lists
// every type.
func (s *PostgresStore) ListDocumentVersions(ctx context.Context, projectID int64, fileType string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fileid, projectid, filetype, bloburl, version, uploadedby, created_at
		FROM files
		WHERE projectid = $1 AND ($2::text = '' OR filetype = $2::text)
		ORDER BY filetype, version
	`, projectID, fileType)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	var out []DocumentVersion
	for rows.Next() {
		var doc DocumentVersion
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.FileType, &doc.BlobURL, &doc.Version, &doc.UploadedBy, &doc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountDocumentVersions returns the number of versions per file type.
func (s *PostgresStore) CountDocumentVersions(ctx context.Context, projectID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filetype, COUNT(*) FROM files WHERE projectid = $1 GROUP BY filetype
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count document versions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var fileType string
		var count int
		if err := rows.Scan(&fileType, &count); err != nil {
			return nil, err
		}
		counts[fileType] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) UpsertMSReader(ctx context.Context, entry MSReaderEntry) error {
	procedure := entry.Procedure
	if len(procedure) == 0 || !json.Valid(procedure) {
		procedure = json.RawMessage(`[]`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ms_reader (scope, equipment, procedure)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (scope, equipment)
		DO UPDATE SET procedure = EXCLUDED.procedure, updated_at = NOW()
	`, entry.Scope, entry.Equipment, string(procedure))
	if err != nil {
		return fmt.Errorf("upsert ms reader: %w", err)
	}
	return nil
}
