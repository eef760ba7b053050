package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
)

// AuditStore implements audit.Store using SQLite.
type AuditStore struct {
	db *sql.DB
}

// Ensure AuditStore implements the interface at compile time.
var _ audit.Store = (*AuditStore)(nil)

const auditColumns = `id, actor_id, action_type, target_type, target_id, details,
	success, duration_ms, error_message, created_at`

// AppendEntry stores a new audit entry.
func (s *AuditStore) AppendEntry(ctx context.Context, entry audit.Entry) error {
	var details sql.NullString
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0, NULL, ?)
	`,
		entry.ID, entry.ActorID, entry.ActionType, entry.TargetType,
		entry.TargetID, details, entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// PatchResult attaches the outcome to a previously appended entry. This is
// the only permitted mutation of an audit record.
func (s *AuditStore) PatchResult(ctx context.Context, entryID string, result audit.Result) error {
	success := 0
	if result.Success {
		success = 1
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_log SET success = ?, duration_ms = ?, error_message = ?
		WHERE id = ?
	`, success, result.DurationMS, result.ErrorMessage, entryID)
	if err != nil {
		return fmt.Errorf("patch audit entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &errs.NotFoundError{Kind: "audit entry", ID: entryID}
	}
	return nil
}

// GetEntry retrieves an entry by id.
func (s *AuditStore) GetEntry(ctx context.Context, entryID string) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE id = ?`, entryID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &errs.NotFoundError{Kind: "audit entry", ID: entryID}
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns entries matching the filter, newest first.
func (s *AuditStore) ListEntries(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	var where []string
	var args []any

	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, filter.TargetType)
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.Until.Format(time.RFC3339Nano))
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// ListIncomplete returns unpatched entries older than the given age.
func (s *AuditStore) ListIncomplete(ctx context.Context, olderThan time.Duration) ([]audit.Entry, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE success IS NULL AND created_at < ?
		ORDER BY created_at ASC
	`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list incomplete audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var entry audit.Entry
	var actorID, targetID, details, errorMessage sql.NullString
	var success sql.NullInt64
	var createdAt string

	err := row.Scan(
		&entry.ID, &actorID, &entry.ActionType, &entry.TargetType, &targetID,
		&details, &success, &entry.DurationMS, &errorMessage, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if actorID.Valid {
		entry.ActorID = &actorID.String
	}
	if targetID.Valid {
		entry.TargetID = &targetID.String
	}
	if errorMessage.Valid {
		entry.ErrorMessage = &errorMessage.String
	}
	if success.Valid {
		ok := success.Int64 == 1
		entry.Success = &ok
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &entry, nil
}
