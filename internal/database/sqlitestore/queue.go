package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
)

// QueueStore implements modqueue.Store using SQLite.
type QueueStore struct {
	db *sql.DB
}

// Ensure QueueStore implements the interface at compile time.
var _ modqueue.Store = (*QueueStore)(nil)

const queueColumns = `id, content_type, content_id, user_id, flagged_by, flag_reason,
	status, priority, risk_score, moderator_id, moderator_notes, auto_flagged,
	flagging_details, created_at, updated_at`

// CreateItem stores a new queue item.
func (s *QueueStore) CreateItem(ctx context.Context, item modqueue.Item) error {
	details, err := marshalDetails(item.FlaggingDetails)
	if err != nil {
		return err
	}

	autoFlagged := 0
	if item.AutoFlagged {
		autoFlagged = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_items (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, string(item.ContentType), item.ContentID, item.UserID,
		item.FlaggedBy, item.FlagReason, string(item.Status), item.Priority,
		item.RiskScore, item.ModeratorID, item.ModeratorNotes, autoFlagged,
		details,
		item.CreatedAt.Format(time.RFC3339Nano),
		item.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create queue item: %w", err)
	}
	return nil
}

// GetItem retrieves a queue item by id. Returns (nil, nil) when absent.
func (s *QueueStore) GetItem(ctx context.Context, id string) (*modqueue.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// TransitionItem applies the update only while the item's status is in
// allowedFrom. The guard lives in the UPDATE's WHERE clause, so two racing
// moderators cannot both transition the same item.
func (s *QueueStore) TransitionItem(ctx context.Context, id string, allowedFrom []modqueue.Status, update modqueue.ItemUpdate) (*modqueue.Item, error) {
	placeholders := make([]string, len(allowedFrom))
	args := []any{string(update.Status), update.ModeratorID, update.ModeratorNotes}

	setPriority := ""
	if update.Priority != nil {
		setPriority = ", priority = ?"
		args = append(args, *update.Priority)
	}

	// Nanosecond timestamps keep updated_at strictly after created_at.
	now := time.Now().UTC()
	args = append(args, now.Format(time.RFC3339Nano), id)
	for i, status := range allowedFrom {
		placeholders[i] = "?"
		args = append(args, string(status))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET
			status          = ?,
			moderator_id    = ?,
			moderator_notes = ?`+setPriority+`,
			updated_at      = ?
		WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("transition queue item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing item from a lost race or terminal state.
		current, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, &errs.NotFoundError{Kind: "queue item", ID: id}
		}
		return nil, &errs.StateConflictError{
			Kind:    "queue item",
			ID:      id,
			Current: string(current.Status),
			Wanted:  string(update.Status),
		}
	}

	return s.GetItem(ctx, id)
}

// ListItems returns items matching the filter in the requested order.
func (s *QueueStore) ListItems(ctx context.Context, filter modqueue.ListFilter) ([]modqueue.Item, error) {
	var where []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ContentType != "" {
		where = append(where, "content_type = ?")
		args = append(args, string(filter.ContentType))
	}
	if filter.MinPriority > 0 {
		where = append(where, "priority >= ?")
		args = append(args, filter.MinPriority)
	}
	if filter.MinRiskScore > 0 {
		where = append(where, "risk_score >= ?")
		args = append(args, filter.MinRiskScore)
	}
	if !filter.CreatedAfter.IsZero() {
		where = append(where, "created_at > ?")
		args = append(args, filter.CreatedAfter.Format(time.RFC3339Nano))
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.CreatedBefore.Format(time.RFC3339Nano))
	}
	if !filter.UpdatedAfter.IsZero() {
		where = append(where, "updated_at > ?")
		args = append(args, filter.UpdatedAfter.Format(time.RFC3339Nano))
	}

	query := `SELECT ` + queueColumns + ` FROM queue_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderClause(filter)

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
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []modqueue.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountByStatus tallies items per status.
func (s *QueueStore) CountByStatus(ctx context.Context) (map[modqueue.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[modqueue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[modqueue.Status(status)] = count
	}
	return counts, rows.Err()
}

func orderClause(filter modqueue.ListFilter) string {
	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}
	switch filter.SortBy {
	case modqueue.SortByCreatedAt:
		return "created_at " + direction
	case modqueue.SortByUpdatedAt:
		return "updated_at " + direction
	case modqueue.SortByPriority:
		return "priority " + direction
	case modqueue.SortByRiskScore:
		return "risk_score " + direction
	}
	// Default review order: highest severity first, freshest first.
	return "priority DESC, created_at DESC"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*modqueue.Item, error) {
	var item modqueue.Item
	var contentType, status, createdAt, updatedAt string
	var flaggedBy, moderatorID, moderatorNotes, details sql.NullString
	var autoFlagged int

	err := row.Scan(
		&item.ID, &contentType, &item.ContentID, &item.UserID, &flaggedBy,
		&item.FlagReason, &status, &item.Priority, &item.RiskScore,
		&moderatorID, &moderatorNotes, &autoFlagged, &details,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ContentType = content.Type(contentType)
	item.Status = modqueue.Status(status)
	item.AutoFlagged = autoFlagged == 1
	if flaggedBy.Valid {
		item.FlaggedBy = &flaggedBy.String
	}
	if moderatorID.Valid {
		item.ModeratorID = &moderatorID.String
	}
	if moderatorNotes.Valid {
		item.ModeratorNotes = &moderatorNotes.String
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &item.FlaggingDetails); err != nil {
			return nil, fmt.Errorf("unmarshal flagging details: %w", err)
		}
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &item, nil
}

func marshalDetails(details map[string]string) (sql.NullString, error) {
	if len(details) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal flagging details: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
