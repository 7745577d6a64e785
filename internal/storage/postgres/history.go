package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pribylovaa/comment-tree/internal/models"
)

const historyColumns = `id, comment_id, text, change_kind, changed_by, changed_at`

// AppendHistory пишет запись журнала в текущей транзакции.
// Пустой ChangedAt заменяется на clock_timestamp().
func (t *txStore) AppendHistory(ctx context.Context, rec models.HistoryRecord) (*models.HistoryRecord, error) {
	const op = "storage/postgres/AppendHistory"

	var at any
	if !rec.ChangedAt.IsZero() {
		at = rec.ChangedAt.UTC()
	}

	err := t.tx.QueryRow(ctx, `
	INSERT INTO comment_history (comment_id, text, change_kind, changed_by, changed_at)
	VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, clock_timestamp()))
	RETURNING id, changed_at
	`, rec.CommentID, rec.Text, string(rec.Kind), rec.ChangedBy, at).Scan(&rec.ID, &rec.ChangedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec.ChangedAt = rec.ChangedAt.UTC()

	return &rec, nil
}

// ListHistory возвращает записи журнала, сначала новые.
func (s *Storage) ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error) {
	const op = "storage/postgres/ListHistory"

	where := make([]string, 0, 5)
	args := make([]any, 0, 5)
	count := 0

	if f.CommentID != nil {
		count++
		where = append(where, fmt.Sprintf("comment_id = $%d", count))
		args = append(args, *f.CommentID)
	}

	if f.ChangedBy != nil {
		count++
		where = append(where, fmt.Sprintf("changed_by = $%d", count))
		args = append(args, *f.ChangedBy)
	}

	if f.Kind != nil {
		count++
		where = append(where, fmt.Sprintf("change_kind = $%d", count))
		args = append(args, string(*f.Kind))
	}

	if f.From != nil {
		count++
		where = append(where, fmt.Sprintf("changed_at >= $%d", count))
		args = append(args, f.From.UTC())
	}

	if f.To != nil {
		count++
		where = append(where, fmt.Sprintf("changed_at <= $%d", count))
		args = append(args, f.To.UTC())
	}

	q := `SELECT ` + historyColumns + ` FROM comment_history`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY changed_at DESC, id DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var rec models.HistoryRecord
		var kind string

		if err := rows.Scan(
			&rec.ID,
			&rec.CommentID,
			&rec.Text,
			&kind,
			&rec.ChangedBy,
			&rec.ChangedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}

		rec.Kind = models.ChangeKind(kind)
		rec.ChangedAt = rec.ChangedAt.UTC()
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}
