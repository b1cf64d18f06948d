package tracking

import (
	"context"
	"errors"
	"strings"
	"time"

	"rsvp/cmd/internal/rsvptoken"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists tracking records in PostgreSQL.
// The pool is owned by the caller; the store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "rsvp").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Migrate creates the schema and tracking table if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, SchemaSQL(s.schema))
	return err
}

// Create inserts a new tracking record.
func (s *PostgresStore) Create(ctx context.Context, rec rsvptoken.TrackingRecord) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validRecord(rec) {
		return ErrInvalidInput
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tokens := pgIdent(s.schema, "rsvp_tokens")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+tokens+` (
		     token_id, guest_id, event_id, subevent_id, token_hash, expires_at, created_at, is_used, usage_count
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.TokenID,
		rec.GuestID,
		rec.EventID,
		rec.SubeventID,
		rec.TokenHash,
		rec.ExpiresAt,
		rec.CreatedAt,
		rec.IsUsed,
		rec.UsageCount,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

const recordColumns = `token_id, guest_id, event_id, subevent_id, token_hash, expires_at, created_at, is_used, usage_count, last_used_at, revoked_at`

func scanRecord(row pgx.Row) (Record, error) {
	var out Record
	err := row.Scan(
		&out.TokenID,
		&out.GuestID,
		&out.EventID,
		&out.SubeventID,
		&out.TokenHash,
		&out.ExpiresAt,
		&out.CreatedAt,
		&out.IsUsed,
		&out.UsageCount,
		&out.LastUsedAt,
		&out.RevokedAt,
	)
	return out, err
}

// Get fetches a tracking record by token id.
func (s *PostgresStore) Get(ctx context.Context, tokenID string) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return Record{}, ErrInvalidInput
	}

	tokens := pgIdent(s.schema, "rsvp_tokens")
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+tokens+`
		  WHERE token_id = $1`,
		tokenID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return out, nil
}

// MarkUsed atomically increments usage_count on a non-revoked record.
func (s *PostgresStore) MarkUsed(ctx context.Context, tokenID string, now time.Time) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return Record{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tokens := pgIdent(s.schema, "rsvp_tokens")
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+tokens+`
		    SET is_used = true,
		        usage_count = usage_count + 1,
		        last_used_at = $1
		  WHERE token_id = $2
		    AND revoked_at IS NULL
		RETURNING `+recordColumns,
		now,
		tokenID,
	))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}

	// Distinguish not-found vs revoked.
	if _, selErr := s.Get(ctx, tokenID); selErr != nil {
		return Record{}, selErr
	}
	return Record{}, ErrRevoked
}

// Revoke stamps revoked_at once; later calls are no-ops.
func (s *PostgresStore) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tokens := pgIdent(s.schema, "rsvp_tokens")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+tokens+`
		    SET revoked_at = COALESCE(revoked_at, $1)
		  WHERE token_id = $2`,
		now,
		tokenID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
