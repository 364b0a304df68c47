package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetChecklistTemplate returns the raw JSON body of a named template.
func (s *PostgresStore) GetChecklistTemplate(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body::text FROM checklist_templates WHERE name = $1`, name).Scan(&body)
	return body, err
}

// InsertChecklistTasks inserts any (type, subtype) pairs the project does
// not have yet and returns how many rows were added.
func (s *PostgresStore) InsertChecklistTasks(ctx context.Context, projectID int64, tasks []ChecklistTask) (int, error) {
	inserted := 0
	err := inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO checklist (projectid, type, subtype, completed, has_comments, has_attachment)
			VALUES ($1, $2, $3, FALSE, FALSE, FALSE)
			ON CONFLICT (projectid, type, subtype) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare checklist insert: %w", err)
		}
		defer stmt.Close()

		for _, task := range tasks {
			result, err := stmt.ExecContext(ctx, projectID, task.Type, task.Subtype)
			if err != nil {
				if IsForeignKeyViolation(err) {
					return sql.ErrNoRows
				}
				return fmt.Errorf("insert checklist task: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *PostgresStore) ListChecklistTasks(ctx context.Context, projectID int64) ([]ChecklistTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT taskid, projectid, type, subtype, completed, has_comments, has_attachment
		FROM checklist
		WHERE projectid = $1
		ORDER BY taskid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list checklist tasks: %w", err)
	}
	defer rows.Close()

	var out []ChecklistTask
	for rows.Next() {
		var task ChecklistTask
		if err := rows.Scan(&task.ID, &task.ProjectID, &task.Type, &task.Subtype, &task.Completed, &task.HasComments, &task.HasAttachment); err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChecklistTask(ctx context.Context, taskID int64) (ChecklistTask, error) {
	var task ChecklistTask
	err := s.db.QueryRowContext(ctx, `
		SELECT taskid, projectid, type, subtype, completed, has_comments, has_attachment
		FROM checklist WHERE taskid = $1
	`, taskID).Scan(&task.ID, &task.ProjectID, &task.Type, &task.Subtype, &task.Completed, &task.HasComments, &task.HasAttachment)
	return task, err
}

// ToggleChecklistTask flips completion in a single statement.
func (s *PostgresStore) ToggleChecklistTask(ctx context.Context, taskID int64) (ChecklistTask, error) {
	var task ChecklistTask
	err := s.db.QueryRowContext(ctx, `
		UPDATE checklist SET completed = NOT completed
		WHERE taskid = $1
		RETURNING taskid, projectid, type, subtype, completed, has_comments, has_attachment
	`, taskID).Scan(&task.ID, &task.ProjectID, &task.Type, &task.Subtype, &task.Completed, &task.HasComments, &task.HasAttachment)
	return task, err
}

func (s *PostgresStore) SetTaskHasComments(ctx context.Context, taskID int64, value bool) error {
	return s.setTaskFlag(ctx, `UPDATE checklist SET has_comments = $2 WHERE taskid = $1`, taskID, value)
}

func (s *PostgresStore) SetTaskHasAttachment(ctx context.Context, taskID int64, value bool) error {
	return s.setTaskFlag(ctx, `UPDATE checklist SET has_attachment = $2 WHERE taskid = $1`, taskID, value)
}

func (s *PostgresStore) setTaskFlag(ctx context.Context, query string, taskID int64, value bool) error {
	result, err := s.db.ExecContext(ctx, query, taskID, value)
	if err != nil {
		return fmt.Errorf("update checklist flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Comments

func (s *PostgresStore) InsertTaskComment(ctx context.Context, comment TaskComment) (TaskComment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO checklist_comments (taskid, projectid, userid, username, comments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING commentid, created_at, updated_at
	`, comment.TaskID, comment.ProjectID, comment.UserID, comment.Username, comment.Comments).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return TaskComment{}, sql.ErrNoRows
		}
		return TaskComment{}, fmt.Errorf("insert task comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) GetTaskComment(ctx context.Context, commentID int64) (TaskComment, error) {
	var comment TaskComment
	err := s.db.QueryRowContext(ctx, `
		SELECT commentid, taskid, projectid, userid, username, comments, created_at, updated_at
		FROM checklist_comments WHERE commentid = $1
	`, commentID).Scan(&comment.ID, &comment.TaskID, &comment.ProjectID, &comment.UserID, &comment.Username, &comment.Comments, &comment.CreatedAt, &comment.UpdatedAt)
	return comment, err
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID int64) ([]TaskComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commentid, taskid, projectid, userid, username, comments, created_at, updated_at
		FROM checklist_comments
		WHERE taskid = $1
		ORDER BY created_at, commentid
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer rows.Close()

	var out []TaskComment
	for rows.Next() {
		var comment TaskComment
		if err := rows.Scan(&comment.ID, &comment.TaskID, &comment.ProjectID, &comment.UserID, &comment.Username, &comment.Comments, &comment.CreatedAt, &comment.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// UpdateTaskComment rewrites the text only when ownerID still owns the
// comment.
func (s *PostgresStore) UpdateTaskComment(ctx context.Context, commentID, ownerID int64, text string) (TaskComment, error) {
	var comment TaskComment
	err := s.db.QueryRowContext(ctx, `
		UPDATE checklist_comments SET comments = $3, updated_at = NOW()
		WHERE commentid = $1 AND userid = $2
		RETURNING commentid, taskid, projectid, userid, username, comments, created_at, updated_at
	`, commentID, ownerID, text).Scan(&comment.ID, &comment.TaskID, &comment.ProjectID, &comment.UserID, &comment.Username, &comment.Comments, &comment.CreatedAt, &comment.UpdatedAt)
	return comment, err
}

// DeleteTaskComment removes an owned comment and returns the number of
// comments left on its task. has_comments is recomputed in the same
// transaction so a concurrently added comment keeps the flag set.
func (s *PostgresStore) DeleteTaskComment(ctx context.Context, commentID, ownerID int64) (TaskComment, int, error) {
	var deleted TaskComment
	var remaining int
	err := inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			DELETE FROM checklist_comments
			WHERE commentid = $1 AND userid = $2
			RETURNING commentid, taskid, projectid, userid, username, comments, created_at, updated_at
		`, commentID, ownerID).Scan(&deleted.ID, &deleted.TaskID, &deleted.ProjectID, &deleted.UserID, &deleted.Username, &deleted.Comments, &deleted.CreatedAt, &deleted.UpdatedAt)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklist_comments WHERE taskid = $1`, deleted.TaskID).Scan(&remaining); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE checklist
			SET has_comments = EXISTS(SELECT 1 FROM checklist_comments WHERE taskid = $1)
			WHERE taskid = $1
		`, deleted.TaskID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskComment{}, 0, err
		}
		return TaskComment{}, 0, fmt.Errorf("delete task comment: %w", err)
	}
	return deleted, remaining, nil
}

// Attachments

func (s *PostgresStore) UpsertTaskAttachment(ctx context.Context, taskID int64, blobName string) (TaskAttachment, error) {
	attachment := TaskAttachment{TaskID: taskID, BlobName: blobName}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO checklist_attachments (taskid, blob_name)
		VALUES ($1, $2)
		ON CONFLICT (taskid) DO UPDATE SET blob_name = EXCLUDED.blob_name, updated_at = NOW()
		RETURNING updated_at
	`, taskID, blobName).Scan(&attachment.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return TaskAttachment{}, sql.ErrNoRows
		}
		return TaskAttachment{}, fmt.Errorf("upsert task attachment: %w", err)
	}
	return attachment, nil
}

func (s *PostgresStore) GetTaskAttachment(ctx context.Context, taskID int64) (TaskAttachment, error) {
	var attachment TaskAttachment
	err := s.db.QueryRowContext(ctx, `
		SELECT taskid, blob_name, updated_at FROM checklist_attachments WHERE taskid = $1
	`, taskID).Scan(&attachment.TaskID, &attachment.BlobName, &attachment.UpdatedAt)
	return attachment, err
}
