package service

import (
	"context"
	"fmt"

	"github.com/pribylovaa/comment-tree/internal/history"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
)

// ListHistory — журнал изменений по фильтру (комментарий, автор, период, вид).
// Ошибки: ErrValidation, ErrInternal.
func (s *Service) ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error) {
	const op = "service/history/ListHistory"

	lg := log.From(ctx).With("op", op)

	if err := history.ValidateFilter(f); err != nil {
		lg.Warn("invalid filter", "err", err)
		return nil, fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	}

	records, err := s.storage.ListHistory(ctx, f)
	if err != nil {
		lg.Error("storage error on ListHistory", "err", err)
		return nil, internal(op, err)
	}

	return records, nil
}
