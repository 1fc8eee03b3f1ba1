// Package postgres persists audit entries to the audit_entries table.
//
// The table is append-only: this store exposes no UPDATE or DELETE and the
// schema grants should not either.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"civreg/internal/audit"
	"civreg/internal/authz"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	before, err := json.Marshal(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, action, entity_type, entity_id, actor_id, actor_kind,
			before_snapshot, after_snapshot, metadata, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		string(entry.Action),
		string(entry.EntityType),
		entry.EntityID,
		uuid.UUID(entry.ActorID),
		string(entry.ActorKind),
		before,
		after,
		metadata,
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor_id, actor_kind,
		       before_snapshot, after_snapshot, metadata, recorded_at
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY recorded_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListByActor(ctx context.Context, actorID id.ActorID) ([]audit.Entry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor_id, actor_kind,
		       before_snapshot, after_snapshot, metadata, recorded_at
		FROM audit_entries
		WHERE actor_id = $1
		ORDER BY recorded_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(actorID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var out []audit.Entry
	for rows.Next() {
		var (
			entryID   uuid.UUID
			actorID   uuid.UUID
			action    string
			eType     string
			eID       string
			actorKind string
			before    []byte
			after     []byte
			metadata  []byte
			at        time.Time
		)
		if err := rows.Scan(&entryID, &action, &eType, &eID, &actorID, &actorKind,
			&before, &after, &metadata, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry := audit.Entry{
			ID:         id.AuditEntryID(entryID),
			Action:     audit.ActionKind(action),
			EntityType: audit.EntityType(eType),
			EntityID:   eID,
			ActorID:    id.ActorID(actorID),
			ActorKind:  authz.ActorKind(actorKind),
			RecordedAt: at,
		}
		if err := json.Unmarshal(before, &entry.Before); err != nil {
			return nil, fmt.Errorf("unmarshal before snapshot: %w", err)
		}
		if err := json.Unmarshal(after, &entry.After); err != nil {
			return nil, fmt.Errorf("unmarshal after snapshot: %w", err)
		}
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
