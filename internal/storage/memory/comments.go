package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// LockComment — под эксклюзивной блокировкой арены режим не важен.
func (tx *memTx) LockComment(ctx context.Context, id int64, _ storage.LockMode) (*models.Comment, error) {
	const op = "storage/memory/LockComment"

	c, ok := tx.s.comments[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	out := c.Clone()

	return &out, nil
}

func (tx *memTx) CountChildren(_ context.Context, id int64) (int, error) {
	return len(tx.s.children[id]), nil
}

// InsertComment вставляет комментарий и обновляет индекс детей.
func (tx *memTx) InsertComment(_ context.Context, c models.Comment) (*models.Comment, error) {
	const op = "storage/memory/InsertComment"

	s := tx.s

	if c.ParentID != nil {
		if _, ok := s.comments[*c.ParentID]; !ok {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
		}
	}

	s.nextCommentID++
	c = c.Clone()
	c.ID = s.nextCommentID
	c.CreatedAt = s.timestamp()

	s.comments[c.ID] = &c
	if c.ParentID != nil {
		kids, ok := s.children[*c.ParentID]
		if !ok {
			kids = make(map[int64]struct{})
			s.children[*c.ParentID] = kids
		}
		kids[c.ID] = struct{}{}
	}

	id, parentID := c.ID, c.ParentID
	tx.undo = append(tx.undo, func() {
		delete(s.comments, id)
		if parentID != nil {
			delete(s.children[*parentID], id)
		}
		s.nextCommentID--
	})

	out := c.Clone()

	return &out, nil
}

func (tx *memTx) UpdateText(_ context.Context, id int64, text string) (*models.Comment, error) {
	const op = "storage/memory/UpdateText"

	c, ok := tx.s.comments[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	old := c.Text
	c.Text = text
	tx.undo = append(tx.undo, func() { c.Text = old })

	out := c.Clone()

	return &out, nil
}

func (tx *memTx) DeleteComment(_ context.Context, id int64) error {
	const op = "storage/memory/DeleteComment"

	s := tx.s

	c, ok := s.comments[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if len(s.children[id]) > 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrHasChildren)
	}

	delete(s.comments, id)
	delete(s.children, id)
	if c.ParentID != nil {
		delete(s.children[*c.ParentID], id)
	}

	tx.undo = append(tx.undo, func() {
		s.comments[id] = c
		if c.ParentID != nil {
			if s.children[*c.ParentID] == nil {
				s.children[*c.ParentID] = make(map[int64]struct{})
			}
			s.children[*c.ParentID][id] = struct{}{}
		}
	})

	return nil
}

// CommentByID возвращает копию комментария.
func (s *Storage) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage/memory/CommentByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	out := c.Clone()

	return &out, nil
}

// Query — полный проход по арене с фильтром и фиксированной сортировкой.
func (s *Storage) Query(ctx context.Context, f models.Filter) ([]models.Comment, error) {
	const op = "storage/memory/Query"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectLocked(f), nil
}

// RootLevelPage читает страницу и общее число под одной блокировкой.
func (s *Storage) RootLevelPage(ctx context.Context, root models.RootRef, number, size int) (*models.Page, error) {
	const op = "storage/memory/RootLevelPage"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if number < 1 || size < 1 {
		return nil, fmt.Errorf("%s: bad page %d/%d", op, number, size)
	}

	level := 0

	s.mu.RLock()
	all := s.selectLocked(models.Filter{Root: &root, Level: &level})
	s.mu.RUnlock()

	from := (number - 1) * size
	if from > len(all) {
		from = len(all)
	}

	to := from + size
	if to > len(all) {
		to = len(all)
	}

	return models.NewPage(all[from:to], len(all), number, size), nil
}

func (s *Storage) IsLeaf(ctx context.Context, id int64) (bool, error) {
	const op = "storage/memory/IsLeaf"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.comments[id]; !ok {
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return len(s.children[id]) == 0, nil
}

// selectLocked вызывается под s.mu.
func (s *Storage) selectLocked(f models.Filter) []models.Comment {
	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if f.Match(*c) {
			out = append(out, c.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return out
}
