package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed activity store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Insert(ctx context.Context, entry Entry) error {
	var metadata any
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = encoded
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO activity_log (user_id, action, entity_kind, entity_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, now())`,
		nullable(entry.UserID),
		entry.Action,
		nullable(entry.EntityKind),
		nullable(entry.EntityID),
		metadata,
	)
	return err
}

func (s *pgStore) RecentForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, action, entity_kind, entity_id, metadata, created_at
FROM activity_log
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var user sql.NullString
		var kind sql.NullString
		var entityID sql.NullString
		var metadata []byte
		if err := rows.Scan(&entry.ID, &user, &entry.Action, &kind, &entityID, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.UserID = user.String
		entry.EntityKind = kind.String
		entry.EntityID = entityID.String
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *pgStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
