package engine

import (
	"context"
	"fmt"

	"encore.dev/storage/sqldb"
)

// DuplicateAuditLog persists duplicate-detector rejections (C8) to
// Postgres, the same append-only audit pattern invalidation/audit.go uses
// for invalidation events. It never blocks or fails a write: callers log
// on a best-effort basis after the duplicate decision has already been
// made.
type DuplicateAuditLog struct {
	db *sqldb.Database
}

// NewDuplicateAuditLog wraps db and ensures its table exists.
func NewDuplicateAuditLog(db *sqldb.Database) (*DuplicateAuditLog, error) {
	l := &DuplicateAuditLog{db: db}
	if err := l.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize duplicate audit schema: %w", err)
	}
	return l, nil
}

func (l *DuplicateAuditLog) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS duplicate_audit (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			candidate_id TEXT,
			similarity DOUBLE PRECISION NOT NULL,
			rejected BOOLEAN NOT NULL,
			checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_duplicate_audit_user_id
		ON duplicate_audit(user_id, checked_at DESC);
	`
	_, err := l.db.Exec(ctx, query)
	return err
}

// Record inserts one duplicate-check verdict. candidateID is empty when no
// near-duplicate was found.
func (l *DuplicateAuditLog) Record(ctx context.Context, userID, candidateID string, similarity float64, rejected bool) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO duplicate_audit (user_id, candidate_id, similarity, rejected)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, userID, candidateID, similarity, rejected)
	return err
}

// DuplicateAuditRecord is one row of duplicate_audit.
type DuplicateAuditRecord struct {
	UserID      string  `json:"user_id"`
	CandidateID string  `json:"candidate_id,omitempty"`
	Similarity  float64 `json:"similarity"`
	Rejected    bool    `json:"rejected"`
}

// Recent returns the most recently checked duplicates for a user, newest
// first - used by cache_stats-adjacent debugging, not by the write path.
func (l *DuplicateAuditLog) Recent(ctx context.Context, userID string, limit int) ([]DuplicateAuditRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT user_id, COALESCE(candidate_id, ''), similarity, rejected
		FROM duplicate_audit
		WHERE user_id = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate audit: %w", err)
	}
	defer rows.Close()

	var out []DuplicateAuditRecord
	for rows.Next() {
		var r DuplicateAuditRecord
		if err := rows.Scan(&r.UserID, &r.CandidateID, &r.Similarity, &r.Rejected); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate audit row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
