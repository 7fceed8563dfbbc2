package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("project not found")

type Repository interface {
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id string) (Project, error)
	Upsert(ctx context.Context, project Project) error
	Delete(ctx context.Context, id string) error
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, tags, year, description, sections, featured, sort_order, updated_at
		FROM projects
		ORDER BY sort_order, title
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return projects, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, tags, year, description, sections, featured, sort_order, updated_at
		FROM projects
		WHERE id = $1
	`, id)
	if err != nil {
		return Project{}, fmt.Errorf("query project: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return Project{}, rows.Err()
		}
		return Project{}, ErrNotFound
	}

	return scanProject(rows)
}

func (r *PostgresRepository) Upsert(ctx context.Context, project Project) error {
	sections, err := json.Marshal(project.Sections)
	if err != nil {
		return fmt.Errorf("marshal project sections: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO projects (id, title, tags, year, description, sections, featured, sort_order, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			tags = EXCLUDED.tags,
			year = EXCLUDED.year,
			description = EXCLUDED.description,
			sections = EXCLUDED.sections,
			featured = EXCLUDED.featured,
			sort_order = EXCLUDED.sort_order,
			updated_at = NOW()
	`, project.ID, project.Title, project.Tags, project.Year, project.Description, sections, project.Featured, project.SortOrder); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(rows pgx.Rows) (Project, error) {
	var (
		project  Project
		sections []byte
	)
	if err := rows.Scan(&project.ID, &project.Title, &project.Tags, &project.Year,
		&project.Description, &sections, &project.Featured, &project.SortOrder, &project.UpdatedAt); err != nil {
		return Project{}, fmt.Errorf("scan project: %w", err)
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &project.Sections); err != nil {
			return Project{}, fmt.Errorf("unmarshal project sections: %w", err)
		}
	}
	return project, nil
}

var _ Repository = (*PostgresRepository)(nil)
