package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kvault/pkg/domain"
	audit "kvault/pkg/platform/audit"
	txcontext "kvault/pkg/platform/tx"
)

// Store implements audit.Store over the audit_log table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry. Idempotent on id so a retried worker write is harmless.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, actor_id, region_id, action, target_type, target_id, details, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ActorID),
		uuid.UUID(entry.RegionID),
		string(entry.Action),
		string(entry.TargetType),
		entry.TargetID,
		payload,
		entry.RequestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns matching entries newest first.
func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.ActorID != nil {
		args = append(args, uuid.UUID(*q.ActorID))
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if q.RegionID != nil {
		args = append(args, uuid.UUID(*q.RegionID))
		where = append(where, fmt.Sprintf("region_id = $%d", len(args)))
	}
	query := `SELECT id, actor_id, region_id, action, target_type, target_id, details, request_id, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e                   audit.Entry
			entryID, actor, reg uuid.UUID
			action, targetType  string
			details             []byte
			requestID           sql.NullString
		)
		if err := rows.Scan(&entryID, &actor, &reg, &action, &targetType, &e.TargetID, &details, &requestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = domain.AuditEntryID(entryID)
		e.ActorID = domain.UserID(actor)
		e.RegionID = domain.RegionID(reg)
		e.Action = audit.Action(action)
		e.TargetType = audit.TargetType(targetType)
		e.RequestID = requestID.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
