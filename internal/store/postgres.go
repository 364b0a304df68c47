package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING userid, created_at
	`, user.Username, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT userid, username, email, password_hash, created_at
		FROM users WHERE lower(email) = lower($1)
	`, email).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT userid, username, email, password_hash, created_at
		FROM users WHERE userid = $1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT userid, username FROM users ORDER BY userid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Projects

// CreateProject inserts the project with its stakeholders and cargo in one
// transaction and returns the stored rows.
func (s *PostgresStore) CreateProject(ctx context.Context, input NewProject) (Project, []Cargo, error) {
	project := input.Project
	cargo := make([]Cargo, 0, len(input.Cargo))

	err := inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO projects (projectname, client, emailsubjectheader, stage, startdate)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING projectid, startdate, created_at
		`, project.Name, project.Client, project.EmailSubjectHeader, project.Stage).Scan(&project.ID, &project.StartDate, &project.CreatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}

		for _, stakeholder := range input.Stakeholders {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stakeholders (projectid, userid, role)
				VALUES ($1, $2, $3)
				ON CONFLICT (projectid, userid) DO UPDATE SET role = EXCLUDED.role
			`, project.ID, stakeholder.UserID, stakeholder.Role); err != nil {
				return fmt.Errorf("insert stakeholder: %w", err)
			}
		}

		for _, item := range input.Cargo {
			item.ProjectID = project.ID
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO cargo (projectid, cargoname, length, breadth, height, weight, quantity, oog)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING cargoid
			`, item.ProjectID, item.Name, item.Length, item.Breadth, item.Height, item.Weight, item.Quantity, item.OOG).Scan(&item.ID); err != nil {
				return fmt.Errorf("insert cargo: %w", err)
			}
			cargo = append(cargo, item)
		}
		return nil
	})
	if err != nil {
		return Project{}, nil, err
	}
	return project, cargo, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT projectid, projectname, client, emailsubjectheader, startdestination, enddestination, stage, startdate, created_at
		FROM projects WHERE projectid = $1
	`, projectID).Scan(
		&project.ID,
		&project.Name,
		&project.Client,
		&project.EmailSubjectHeader,
		&project.StartDestination,
		&project.EndDestination,
		&project.Stage,
		&project.StartDate,
		&project.CreatedAt,
	)
	return project, err
}

func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.projectid, p.projectname, p.client, p.emailsubjectheader, p.startdestination, p.enddestination, p.stage, p.startdate, p.created_at
		FROM projects p
		JOIN stakeholders s ON s.projectid = p.projectid
		WHERE s.userid = $1
		ORDER BY p.projectid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Client,
			&project.EmailSubjectHeader,
			&project.StartDestination,
			&project.EndDestination,
			&project.Stage,
			&project.StartDate,
			&project.CreatedAt,
		); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProjectStage reports whether the project exists.
func (s *PostgresStore) UpdateProjectStage(ctx context.Context, projectID int64, stage string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE projects SET stage = $2 WHERE projectid = $1`, projectID, stage)
	if err != nil {
		return false, fmt.Errorf("update project stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReplaceScope swaps the project's scope items and derived destinations in
// one transaction.
func (s *PostgresStore) ReplaceScope(ctx context.Context, projectID int64, startDestination, endDestination string, items []ScopeItem) error {
	return inTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE projects SET startdestination = $2, enddestination = $3 WHERE projectid = $1
		`, projectID, startDestination, endDestination)
		if err != nil {
			return fmt.Errorf("update destinations: %w", err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return sql.ErrNoRows
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM scope WHERE projectid = $1`, projectID); err != nil {
			return fmt.Errorf("clear scope: %w", err)
		}
		for i, item := range items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scope (projectid, position, start, "end", work, equipment)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, projectID, i, item.Start, item.End, item.Work, item.Equipment); err != nil {
				return fmt.Errorf("insert scope: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListScope(ctx context.Context, projectID int64) ([]ScopeItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scopeid, projectid, start, "end", work, equipment
		FROM scope WHERE projectid = $1
		ORDER BY position, scopeid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scope: %w", err)
	}
	defer rows.Close()

	var items []ScopeItem
	for rows.Next() {
		var item ScopeItem
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Start, &item.End, &item.Work, &item.Equipment); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListCargo(ctx context.Context, projectID int64) ([]Cargo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cargoid, projectid, cargoname, length, breadth, height, weight, quantity, oog
		FROM cargo WHERE projectid = $1
		ORDER BY cargoid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list cargo: %w", err)
	}
	defer rows.Close()

	var cargo []Cargo
	for rows.Next() {
		var item Cargo
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Length, &item.Breadth, &item.Height, &item.Weight, &item.Quantity, &item.OOG); err != nil {
			return nil, err
		}
		cargo = append(cargo, item)
	}
	return cargo, rows.Err()
}

// Stakeholders

// GetStakeholderRole returns the caller's role on the project and whether a
// stakeholder row exists at all.
func (s *PostgresStore) GetStakeholderRole(ctx context.Context, projectID, userID int64) (string, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM stakeholders WHERE projectid = $1 AND userid = $2
	`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve stakeholder role: %w", err)
	}
	return role, true, nil
}

func (s *PostgresStore) ListStakeholders(ctx context.Context, projectID int64) ([]Stakeholder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.projectid, s.userid, s.role, COALESCE(u.username, ''), COALESCE(s.comments, '')
		FROM stakeholders s
		LEFT JOIN users u ON u.userid = s.userid
		WHERE s.projectid = $1
		ORDER BY s.userid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list stakeholders: %w", err)
	}
	defer rows.Close()

	var stakeholders []Stakeholder
	for rows.Next() {
		var item Stakeholder
		if err := rows.Scan(&item.ProjectID, &item.UserID, &item.Role, &item.Username, &item.Comments); err != nil {
			return nil, err
		}
		stakeholders = append(stakeholders, item)
	}
	return stakeholders, rows.Err()
}

func (s *PostgresStore) UpdateStakeholderComments(ctx context.Context, projectID, userID int64, comments string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stakeholders SET comments = $3 WHERE projectid = $1 AND userid = $2
	`, projectID, userID, comments)
	if err != nil {
		return false, fmt.Errorf("update stakeholder comments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Search fallback

func (s *PostgresStore) SearchProjects(ctx context.Context, query string, limit int) ([]ProjectSearchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT projectid, projectname, client, stage
		FROM projects
		WHERE projectname ILIKE $1 OR client ILIKE $1 OR stage ILIKE $1
		ORDER BY projectid DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectSearchRow
	for rows.Next() {
		var row ProjectSearchRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Client, &row.Stage); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
