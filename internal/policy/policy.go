// policy — проверки доступа к комментариям. Правила вычисляются по снимку,
// прочитанному в той же транзакции, что и изменение, поэтому между проверкой
// и записью состояние не меняется.
package policy

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/comment-tree/internal/models"
)

var (
	// ErrForbidden — действие запрещено политикой.
	ErrForbidden = errors.New("forbidden")
	// ErrNotLeaf — удалять можно только листья дерева.
	ErrNotLeaf = errors.New("only leaf nodes may be deleted")
)

// Action — тип операции над комментарием.
type Action int

const (
	ActionRead Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Safe — операция только читает.
func (a Action) Safe() bool {
	return a == ActionRead
}

// Subject — всё, что нужно правилам для решения.
// Children — число прямых детей на момент проверки.
type Subject struct {
	Actor    int64
	Comment  models.Comment
	Children int
}

// Rule — предикат над (actor, comment).
type Rule interface {
	Check(action Action, s Subject) error
}

// RuleFunc — адаптер функции к Rule.
type RuleFunc func(action Action, s Subject) error

func (f RuleFunc) Check(action Action, s Subject) error { return f(action, s) }

// Ownership: чтение разрешено всем, изменение и удаление — только владельцу.
type Ownership struct{}

func (Ownership) Check(action Action, s Subject) error {
	if action.Safe() {
		return nil
	}

	if s.Actor <= 0 || s.Actor != s.Comment.OwnerID {
		return fmt.Errorf("%w: only owner can %s comment %d", ErrForbidden, action, s.Comment.ID)
	}

	return nil
}

// LeafOnlyDelete: удалить можно только комментарий без детей.
// Ошибка совпадает и с ErrForbidden, и с ErrNotLeaf.
type LeafOnlyDelete struct{}

func (LeafOnlyDelete) Check(action Action, s Subject) error {
	if action != ActionDelete {
		return nil
	}

	if s.Children > 0 {
		return fmt.Errorf("%w: %w: comment %d has %d children", ErrForbidden, ErrNotLeaf, s.Comment.ID, s.Children)
	}

	return nil
}

// Chain — последовательность правил; первое нарушение прерывает проверку.
type Chain []Rule

func (c Chain) Check(action Action, s Subject) error {
	for _, r := range c {
		if err := r.Check(action, s); err != nil {
			return err
		}
	}

	return nil
}

// Default — набор правил для комментариев.
func Default() Chain {
	return Chain{Ownership{}, LeafOnlyDelete{}}
}
