package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
)

// pgxQuerier is the subset of *pgxpool.Pool the activity ledger needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ActivityRepository appends auth events to the Postgres activity ledger.
type ActivityRepository struct {
	pool pgxQuerier
}

func NewActivityRepository(pool pgxQuerier) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS auth_activity (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS auth_activity_user_created_idx
			ON auth_activity (user_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ActivityRepository) Record(ctx context.Context, activity models.Activity) error {
	const query = `
		INSERT INTO auth_activity (user_id, kind, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	createdAt := activity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, query,
		activity.UserID,
		activity.Kind,
		activity.IPAddress,
		activity.UserAgent,
		createdAt.UTC(),
	)
	return err
}

func (r *ActivityRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM auth_activity WHERE user_id = $1`
	row := r.pool.QueryRow(ctx, query, userID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]models.Activity, error) {
	const query = `
		SELECT id, user_id, kind, ip_address, user_agent, created_at
		FROM auth_activity
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []models.Activity{}
	for rows.Next() {
		var activity models.Activity
		if err := rows.Scan(
			&activity.ID,
			&activity.UserID,
			&activity.Kind,
			&activity.IPAddress,
			&activity.UserAgent,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// PaginateByUser mirrors Base.FindPaginated for the ledger.
func (r *ActivityRepository) PaginateByUser(ctx context.Context, userID string, opts PageOptions) (Page[models.Activity], error) {
	opts = normalizePageOptions(opts)
	items, err := r.ListByUser(ctx, userID, opts.Limit, (opts.Page-1)*opts.Limit)
	if err != nil {
		return Page[models.Activity]{}, err
	}
	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return Page[models.Activity]{}, err
	}
	return NewPage(items, total, opts.Page, opts.Limit), nil
}

func (r *ActivityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM auth_activity WHERE created_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
