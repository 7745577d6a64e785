// history формирует записи журнала изменений комментариев.
//
// Записи пишутся через storage.Tx в той же транзакции, что и мутация,
// поэтому комментарий и его история фиксируются или откатываются вместе.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// ErrInvalidFilter — некорректный фильтр журнала.
var ErrInvalidFilter = errors.New("invalid history filter")

// Recorder пишет журнал внутри транзакции мутации.
type Recorder struct{}

// NewRecorder создаёт Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Created пишет запись о создании комментария.
func (r *Recorder) Created(ctx context.Context, tx storage.Tx, c models.Comment, actor int64) (*models.HistoryRecord, error) {
	return r.append(ctx, tx, c.ID, c.Text, models.ChangeCreated, actor, c.CreatedAt)
}

// Modified пишет запись об изменении текста.
// Если текст не изменился, запись не создаётся и возвращается nil.
func (r *Recorder) Modified(ctx context.Context, tx storage.Tx, before, after models.Comment, actor int64) (*models.HistoryRecord, error) {
	if before.Text == after.Text {
		return nil, nil
	}

	return r.append(ctx, tx, after.ID, after.Text, models.ChangeModified, actor, time.Time{})
}

// Deleted пишет запись об удалении с текстом на момент удаления.
func (r *Recorder) Deleted(ctx context.Context, tx storage.Tx, c models.Comment, actor int64) (*models.HistoryRecord, error) {
	return r.append(ctx, tx, c.ID, c.Text, models.ChangeDeleted, actor, time.Time{})
}

func (r *Recorder) append(ctx context.Context, tx storage.Tx, id int64, text string, kind models.ChangeKind, actor int64, at time.Time) (*models.HistoryRecord, error) {
	const op = "history/append"

	rec, err := tx.AppendHistory(ctx, models.HistoryRecord{
		CommentID: id,
		Text:      text,
		Kind:      kind,
		ChangedBy: actor,
		ChangedAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// ValidateFilter проверяет фильтр чтения журнала.
func ValidateFilter(f models.HistoryFilter) error {
	if f.CommentID != nil && *f.CommentID <= 0 {
		return fmt.Errorf("%w: comment id must be > 0", ErrInvalidFilter)
	}

	if f.ChangedBy != nil && *f.ChangedBy <= 0 {
		return fmt.Errorf("%w: changed_by must be > 0", ErrInvalidFilter)
	}

	if f.Kind != nil && !f.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidFilter, *f.Kind)
	}

	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}

	return nil
}
