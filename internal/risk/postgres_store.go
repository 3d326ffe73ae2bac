package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresProfileStore persists trust profiles in PostgreSQL.
// The schema lives in migrations/00002_create_trust_profiles.sql.
type PostgresProfileStore struct {
	db *sql.DB
}

// NewPostgresProfileStore creates a PostgreSQL-backed profile store.
func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

const profileColumns = `user_id, account_type, account_created_at, first_seen, trust_level,
	total_gifts, flagged_count, last_gift_time`

func (s *PostgresProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM trust_profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresProfileStore) Create(ctx context.Context, p *Profile) (*Profile, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING
	`,
		p.UserID,
		p.AccountType,
		p.AccountCreatedAt,
		p.FirstSeen,
		p.TrustLevel,
		p.TotalGifts,
		p.FlaggedCount,
		nullTime(p.LastGiftTime),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	// Re-read so a concurrent creator's row wins consistently.
	return s.Get(ctx, p.UserID)
}

func (s *PostgresProfileStore) Update(ctx context.Context, p *Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trust_profiles
		SET trust_level = $2, total_gifts = $3, flagged_count = $4, last_gift_time = $5
		WHERE user_id = $1
	`, p.UserID, p.TrustLevel, p.TotalGifts, p.FlaggedCount, nullTime(p.LastGiftTime))
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var last sql.NullTime
	err := row.Scan(
		&p.UserID,
		&p.AccountType,
		&p.AccountCreatedAt,
		&p.FirstSeen,
		&p.TrustLevel,
		&p.TotalGifts,
		&p.FlaggedCount,
		&last,
	)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		p.LastGiftTime = &t
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
