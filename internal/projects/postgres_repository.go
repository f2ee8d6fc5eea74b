package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresRepository.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores projects in the ai_projects table.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("projects: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const projectColumns = `id, user_id, title, description, model_file_url, dataset_file_url,
	evaluation_script_url, preprocessing_file_url, optimization_level, deployment_target,
	criterion, status, created_at, updated_at`

// validID rejects ids the uuid column could never hold, so lookups of
// malformed ids report not found instead of a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var status string
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Title,
		&p.Description,
		&p.ModelFileURL,
		&p.DatasetFileURL,
		&p.EvaluationScriptURL,
		&p.PreprocessingFileURL,
		&p.OptimizationLevel,
		&p.DeploymentTarget,
		&p.Criterion,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

// Create inserts a new row and returns it with server-assigned fields.
func (r *PostgresRepository) Create(ctx context.Context, p *Project) (*Project, error) {
	if p.UserID == "" {
		return nil, ErrMissingUser
	}
	query := `
		INSERT INTO ai_projects (user_id, title, description, model_file_url, dataset_file_url,
			evaluation_script_url, preprocessing_file_url, optimization_level, deployment_target,
			criterion, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + projectColumns
	created, err := scanProject(r.db.QueryRow(ctx, query,
		p.UserID,
		p.Title,
		p.Description,
		p.ModelFileURL,
		p.DatasetFileURL,
		p.EvaluationScriptURL,
		p.PreprocessingFileURL,
		p.OptimizationLevel,
		p.DeploymentTarget,
		p.Criterion,
		string(p.Status),
	))
	if err != nil {
		return nil, fmt.Errorf("projects: insert failed: %w", err)
	}
	return created, nil
}

// GetByID fetches a project scoped to the user.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*Project, error) {
	if !validID(id) {
		return nil, ErrProjectNotFound
	}
	query := `SELECT ` + projectColumns + ` FROM ai_projects WHERE id = $1 AND user_id = $2`
	p, err := scanProject(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("projects: select failed: %w", err)
	}
	return p, nil
}

// ListByUser returns the user's projects, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM ai_projects WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("projects: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("projects: scan failed: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projects: list failed: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of upd.
func (r *PostgresRepository) Update(ctx context.Context, userID, id string, upd UpdateProjectRequest) (*Project, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrProjectNotFound
	}
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	query := `
		UPDATE ai_projects SET
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			status = COALESCE($5, status),
			optimization_level = COALESCE($6, optimization_level),
			deployment_target = COALESCE($7, deployment_target),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + projectColumns
	p, err := scanProject(r.db.QueryRow(ctx, query,
		id, userID, upd.Title, upd.Description, status, upd.OptimizationLevel, upd.DeploymentTarget))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("projects: update failed: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return ErrProjectNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM ai_projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("projects: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}
