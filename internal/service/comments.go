package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/notify"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	"github.com/pribylovaa/comment-tree/internal/policy"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/tree"
)

// CreateCommentInput — создание корневого комментария или ответа.
// Правила:
//   - без ParentID создаётся корневой комментарий и обязателен Root;
//   - с ParentID root наследуется от родителя (расхождение — по политике tree);
//   - Actor — владелец нового комментария, Text не пуст.
type CreateCommentInput struct {
	Actor    int64
	Root     *models.RootRef
	ParentID *int64
	Text     string
}

// UpdateCommentInput — изменение текста.
type UpdateCommentInput struct {
	Actor int64
	ID    int64
	Text  string
}

// DeleteCommentInput — удаление листа.
type DeleteCommentInput struct {
	Actor int64
	ID    int64
}

// mapped — ошибка уже переведена в сервисную.
func mapped(err error) bool {
	for _, target := range []error{ErrValidation, ErrConsistency, ErrNotLeaf, ErrForbidden, ErrNotFound} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// policyError переводит ошибку политики в сервисную.
// Нарушение leaf-only совпадает и с ErrForbidden, и с ErrNotLeaf.
func policyError(op string, err error) error {
	if errors.Is(err, policy.ErrNotLeaf) {
		return fmt.Errorf("%s: %w: %w: %v", op, ErrForbidden, ErrNotLeaf, err)
	}

	return fmt.Errorf("%s: %w: %v", op, ErrForbidden, err)
}

// CreateComment — бизнес-операция создания комментария.
//
// Ошибки:
//   - ErrValidation — пустой текст, неизвестный владелец, неизвестный вид сущности,
//     отсутствует root у корневого комментария, конфликт root/parent (политика reject);
//   - ErrConsistency — родитель или сущность не найдены (в т.ч. удалены конкурентно);
//   - ErrInternal — прочие ошибки хранилища.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	const op = "service/comments/CreateComment"

	lg := log.From(ctx).With("op", op, "actor", in.Actor)

	created, err := s.createComment(ctx, op, in)
	if err != nil {
		if mapped(err) {
			lg.Warn("create rejected", "err", err)
			s.metrics.CommentWrite("create", "rejected")
			return nil, err
		}

		lg.Error("storage error on CreateComment", "err", err)
		s.metrics.CommentWrite("create", "error")
		return nil, internal(op, err)
	}

	s.metrics.CommentWrite("create", "ok")
	lg.Info("comment created", "id", created.ID, "root", created.Root.String(), "level", created.Level)
	s.emit(ctx, *created, notify.ReasonCreated)

	return created, nil
}

func (s *Service) createComment(ctx context.Context, op string, in CreateCommentInput) (*models.Comment, error) {
	// 1. Валидация. Текст хранится как есть, пробелы проверяются только на пустоту.
	text := in.Text
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w: empty text", op, ErrValidation)
	}

	if in.Actor <= 0 {
		return nil, fmt.Errorf("%s: %w: owner is required", op, ErrValidation)
	}

	if in.ParentID == nil && in.Root == nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrValidation, tree.ErrRootRequired)
	}

	if in.ParentID != nil && *in.ParentID <= 0 {
		return nil, fmt.Errorf("%s: %w: parent id must be > 0", op, ErrValidation)
	}

	if in.Root != nil && !in.Root.Kind.Valid() {
		return nil, fmt.Errorf("%s: %w: %w: %q", op, ErrValidation, models.ErrUnknownRootKind, in.Root.Kind)
	}

	// 2. Разрешение ссылок.
	ok, err := s.identity.UserExists(ctx, in.Actor)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%s: %w: owner %d not found", op, ErrValidation, in.Actor)
	}

	if in.ParentID == nil {
		if _, err := s.roots.Resolve(ctx, *in.Root); err != nil {
			switch {
			case errors.Is(err, models.ErrUnknownRootKind):
				return nil, fmt.Errorf("%s: %w: %v (registered: %v)", op, ErrValidation, err, s.roots.Kinds())
			case errors.Is(err, storage.ErrRootNotFound):
				return nil, fmt.Errorf("%s: %w: %s not found", op, ErrConsistency, in.Root)
			default:
				return nil, err
			}
		}
	}

	// 3. Транзакция: блокировка родителя, материализация, вставка, журнал.
	var created *models.Comment

	err = s.storage.WithinTx(ctx, func(tx storage.Tx) error {
		var parent *models.Comment
		if in.ParentID != nil {
			p, err := tx.LockComment(ctx, *in.ParentID, storage.LockShare)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("%s: %w: parent %d not found", op, ErrConsistency, *in.ParentID)
				}

				return err
			}
			parent = p
		}

		place, err := s.tree.Materialize(tree.Input{Parent: parent, Root: in.Root})
		if err != nil {
			return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
		}

		if place.RootOverridden {
			log.From(ctx).Info("root overridden by parent", "op", op, "given", in.Root.String(), "parent_root", place.Root.String())
		}

		c := models.Comment{OwnerID: in.Actor, Text: text}
		place.Apply(&c)

		created, err = tx.InsertComment(ctx, c)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrParentNotFound):
				return fmt.Errorf("%s: %w: parent not found", op, ErrConsistency)
			case errors.Is(err, storage.ErrOwnerNotFound):
				return fmt.Errorf("%s: %w: owner not found", op, ErrValidation)
			default:
				return err
			}
		}

		_, err = s.history.Created(ctx, tx, *created, in.Actor)

		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// UpdateComment — изменение текста комментария владельцем.
// Запись Modified в журнале появляется только при фактическом изменении текста.
//
// Ошибки: ErrValidation, ErrNotFound, ErrForbidden, ErrInternal.
func (s *Service) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	const op = "service/comments/UpdateComment"

	lg := log.From(ctx).With("op", op, "actor", in.Actor, "id", in.ID)

	text := in.Text
	if strings.TrimSpace(text) == "" {
		lg.Warn("invalid argument: empty text")
		return nil, fmt.Errorf("%s: %w: empty text", op, ErrValidation)
	}

	if in.ID <= 0 {
		lg.Warn("invalid argument: bad id")
		return nil, fmt.Errorf("%s: %w: id must be > 0", op, ErrValidation)
	}

	var (
		updated *models.Comment
		changed bool
	)

	err := s.storage.WithinTx(ctx, func(tx storage.Tx) error {
		before, err := tx.LockComment(ctx, in.ID, storage.LockUpdate)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrNotFound)
			}

			return err
		}

		if err := s.policy.Check(policy.ActionUpdate, policy.Subject{Actor: in.Actor, Comment: *before}); err != nil {
			return policyError(op, err)
		}

		if before.Text == text {
			updated = before
			return nil
		}

		updated, err = tx.UpdateText(ctx, in.ID, text)
		if err != nil {
			return err
		}

		changed = true
		_, err = s.history.Modified(ctx, tx, *before, *updated, in.Actor)

		return err
	})
	if err != nil {
		if mapped(err) {
			lg.Warn("update rejected", "err", err)
			s.metrics.CommentWrite("update", "rejected")
			return nil, err
		}

		lg.Error("storage error on UpdateComment", "err", err)
		s.metrics.CommentWrite("update", "error")
		return nil, internal(op, err)
	}

	s.metrics.CommentWrite("update", "ok")

	if changed {
		s.emit(ctx, *updated, notify.ReasonUpdated)
	}

	return updated, nil
}

// DeleteComment — удаление листа владельцем.
// Проверка «лист ли это», удаление и запись Deleted выполняются атомарно.
//
// Ошибки: ErrValidation, ErrNotFound, ErrForbidden, ErrNotLeaf (вместе с ErrForbidden), ErrInternal.
func (s *Service) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	const op = "service/comments/DeleteComment"

	lg := log.From(ctx).With("op", op, "actor", in.Actor, "id", in.ID)

	if in.ID <= 0 {
		lg.Warn("invalid argument: bad id")
		return fmt.Errorf("%s: %w: id must be > 0", op, ErrValidation)
	}

	var deleted *models.Comment

	err := s.storage.WithinTx(ctx, func(tx storage.Tx) error {
		c, err := tx.LockComment(ctx, in.ID, storage.LockUpdate)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrNotFound)
			}

			return err
		}

		children, err := tx.CountChildren(ctx, in.ID)
		if err != nil {
			return err
		}

		subj := policy.Subject{Actor: in.Actor, Comment: *c, Children: children}
		if err := s.policy.Check(policy.ActionDelete, subj); err != nil {
			return policyError(op, err)
		}

		if _, err := s.history.Deleted(ctx, tx, *c, in.Actor); err != nil {
			return err
		}

		if err := tx.DeleteComment(ctx, in.ID); err != nil {
			if errors.Is(err, storage.ErrHasChildren) {
				return fmt.Errorf("%s: %w: %w", op, ErrForbidden, ErrNotLeaf)
			}

			return err
		}

		deleted = c

		return nil
	})
	if err != nil {
		if mapped(err) {
			lg.Warn("delete rejected", "err", err)
			s.metrics.CommentWrite("delete", "rejected")
			return err
		}

		lg.Error("storage error on DeleteComment", "err", err)
		s.metrics.CommentWrite("delete", "error")
		return internal(op, err)
	}

	s.metrics.CommentWrite("delete", "ok")
	s.emit(ctx, *deleted, notify.ReasonDeleted)

	return nil
}

// CommentByID — получить комментарий по id.
// Ошибки: ErrValidation, ErrNotFound, ErrInternal.
func (s *Service) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "service/comments/CommentByID"

	lg := log.From(ctx).With("op", op, "id", id)

	if id <= 0 {
		lg.Warn("invalid argument: bad id")
		return nil, fmt.Errorf("%s: %w: id must be > 0", op, ErrValidation)
	}

	c, err := s.storage.CommentByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("comment not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		lg.Error("storage error on CommentByID", "err", err)
		return nil, internal(op, err)
	}

	return c, nil
}

// IsLeaf — у комментария нет детей.
// Ошибки: ErrValidation, ErrNotFound, ErrInternal.
func (s *Service) IsLeaf(ctx context.Context, id int64) (bool, error) {
	const op = "service/comments/IsLeaf"

	lg := log.From(ctx).With("op", op, "id", id)

	if id <= 0 {
		return false, fmt.Errorf("%s: %w: id must be > 0", op, ErrValidation)
	}

	leaf, err := s.storage.IsLeaf(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("comment not found")
			return false, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		lg.Error("storage error on IsLeaf", "err", err)
		return false, internal(op, err)
	}

	return leaf, nil
}

// ListComments — синхронная выборка по фильтру (сущность, предок, владелец,
// диапазон дат, уровень). Порядок: level ASC, created_at DESC.
// Ошибки: ErrValidation, ErrInternal.
func (s *Service) ListComments(ctx context.Context, f models.Filter) ([]models.Comment, error) {
	const op = "service/comments/ListComments"

	lg := log.From(ctx).With("op", op)

	if err := f.Validate(); err != nil {
		lg.Warn("invalid filter", "err", err)
		return nil, fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	}

	items, err := s.storage.Query(ctx, f)
	if err != nil {
		lg.Error("storage error on Query", "err", err)
		return nil, internal(op, err)
	}

	return items, nil
}

// RootLevelPage — страница корневых комментариев сущности (номера с 1).
// Ошибки: ErrValidation (номер < 1, некорректная ссылка), ErrNotFound (страница за пределами), ErrInternal.
func (s *Service) RootLevelPage(ctx context.Context, root models.RootRef, number int) (*models.Page, error) {
	const op = "service/comments/RootLevelPage"

	lg := log.From(ctx).With("op", op, "root", root.String(), "page", number)

	if number < 1 {
		lg.Warn("invalid argument: page < 1")
		return nil, fmt.Errorf("%s: %w: page must be >= 1", op, ErrValidation)
	}

	if !root.Kind.Valid() || root.ID <= 0 {
		lg.Warn("invalid argument: bad root")
		return nil, fmt.Errorf("%s: %w: bad root %s", op, ErrValidation, root)
	}

	page, err := s.storage.RootLevelPage(ctx, root, number, s.pageSize)
	if err != nil {
		lg.Error("storage error on RootLevelPage", "err", err)
		return nil, internal(op, err)
	}

	if number > 1 && len(page.Items) == 0 {
		lg.Warn("page out of range", "total", page.Total)
		return nil, fmt.Errorf("%s: %w: page %d", op, ErrNotFound, number)
	}

	return page, nil
}
