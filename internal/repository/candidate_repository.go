package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
)

// PGCandidates implements repository.Candidates on Postgres.
type PGCandidates struct {
	pool *pgxpool.Pool
}

// NewPGCandidates creates the url_candidates repository.
func NewPGCandidates(pool *pgxpool.Pool) repository.Candidates {
	return &PGCandidates{pool: pool}
}

const candidateColumns = `id, product_id, retailer_id, url, status, score, reason, last_checked_at, updated_at`

func (r *PGCandidates) ListCheckable(ctx context.Context, limit int) ([]*models.CandidateURL, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM url_candidates
		WHERE status IN ('unknown', 'valid')
		ORDER BY updated_at ASC
		LIMIT $1`, candidateColumns)

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkable candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.CandidateURL
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGCandidates) UpdateCheckResult(ctx context.Context, c *models.CandidateURL) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE url_candidates
		SET status = $2, score = $3, reason = $4, last_checked_at = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, string(c.Status), c.Score, c.Reason, c.LastCheckedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update candidate %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update candidate %d: row not found", c.ID)
	}
	return nil
}

func (r *PGCandidates) GetByID(ctx context.Context, id int64) (*models.CandidateURL, error) {
	q := fmt.Sprintf(`SELECT %s FROM url_candidates WHERE id = $1`, candidateColumns)
	row := r.pool.QueryRow(ctx, q, id)

	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidate %d: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return c, nil
}

func (r *PGCandidates) ListRecent(ctx context.Context, from, to time.Time, limit int) ([]*models.CandidateURL, int64, error) {
	where := `last_checked_at >= $1 AND ($2::timestamptz IS NULL OR last_checked_at < $2)`
	var until any
	if !to.IsZero() {
		until = to
	}

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM url_candidates WHERE `+where, from, until).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count recent candidates: %w", err)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM url_candidates
		WHERE %s
		ORDER BY last_checked_at DESC
		LIMIT $3`, candidateColumns, where)

	rows, err := r.pool.Query(ctx, q, from, until, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list recent candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.CandidateURL
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.CandidateURL, error) {
	var c models.CandidateURL
	var status string
	err := row.Scan(&c.ID, &c.ProductID, &c.RetailerID, &c.URL, &status,
		&c.Score, &c.Reason, &c.LastCheckedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = models.CandidateStatus(status)
	return &c, nil
}
