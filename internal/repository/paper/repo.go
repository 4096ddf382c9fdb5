package paper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// querier is the consumer interface for the papers table.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo stores papers in postgres. Every query is scoped to the owner.
type Repo struct {
	db querier
}

// New creates a paper repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

const paperColumns = `id, owner_id, title, authors, status, priority, categories, paper_text, summary, created_at, updated_at`

// Create inserts p and fills its ID and CreatedAt.
func (r *Repo) Create(ctx context.Context, p *domain.Paper) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO papers (owner_id, title, authors, status, priority, categories, paper_text, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		p.OwnerID, p.Title, p.Authors, string(p.Status), string(p.Priority), p.Categories, p.PaperText, p.Summary,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

// List returns a page of the owner's papers ordered by ID.
func (r *Repo) List(ctx context.Context, ownerID int64, skip, limit int) ([]domain.Paper, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE owner_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		ownerID, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]domain.Paper, 0, limit)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return papers, nil
}

// Get returns one paper of the owner.
func (r *Repo) Get(ctx context.Context, ownerID, id int64) (domain.Paper, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id = $1 AND owner_id = $2`, id, ownerID)
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Paper{}, domain.ErrNotFound
	}
	return p, err
}

// Update writes every mutable field of p and sets updated_at.
func (r *Repo) Update(ctx context.Context, p *domain.Paper) error {
	var updated sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE papers
		SET title = $1, authors = $2, status = $3, priority = $4, categories = $5,
		    paper_text = $6, summary = $7, updated_at = now()
		WHERE id = $8 AND owner_id = $9
		RETURNING updated_at`,
		p.Title, p.Authors, string(p.Status), string(p.Priority), p.Categories,
		p.PaperText, p.Summary, p.ID, p.OwnerID,
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update paper %d: %w", p.ID, err)
	}
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	return nil
}

// Delete removes one paper of the owner.
func (r *Repo) Delete(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM papers WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete paper %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete paper %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(s scanner) (domain.Paper, error) {
	var (
		p                domain.Paper
		status, priority string
		updated          sql.NullTime
	)
	err := s.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Authors, &status, &priority,
		&p.Categories, &p.PaperText, &p.Summary, &p.CreatedAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Paper{}, err
		}
		return domain.Paper{}, fmt.Errorf("scan paper: %w", err)
	}
	p.Status = domain.PaperStatus(status)
	p.Priority = domain.PaperPriority(priority)
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	return p, nil
}
