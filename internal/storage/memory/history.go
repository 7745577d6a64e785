package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/pribylovaa/comment-tree/internal/models"
)

func (tx *memTx) AppendHistory(_ context.Context, rec models.HistoryRecord) (*models.HistoryRecord, error) {
	s := tx.s

	s.nextHistoryID++
	rec.ID = s.nextHistoryID
	if rec.ChangedAt.IsZero() {
		rec.ChangedAt = s.timestamp()
	}

	s.history = append(s.history, rec)
	tx.undo = append(tx.undo, func() {
		s.history = s.history[:len(s.history)-1]
		s.nextHistoryID--
	})

	return &rec, nil
}

// ListHistory — выборка журнала, сначала новые.
func (s *Storage) ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error) {
	const op = "storage/memory/ListHistory"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryRecord, 0)
	for _, r := range s.history {
		if matchHistory(f, r) {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ChangedAt.After(out[j].ChangedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

func matchHistory(f models.HistoryFilter, r models.HistoryRecord) bool {
	switch {
	case f.CommentID != nil && r.CommentID != *f.CommentID:
		return false
	case f.ChangedBy != nil && r.ChangedBy != *f.ChangedBy:
		return false
	case f.Kind != nil && r.Kind != *f.Kind:
		return false
	case f.From != nil && r.ChangedAt.Before(*f.From):
		return false
	case f.To != nil && r.ChangedAt.After(*f.To):
		return false
	}

	return true
}
