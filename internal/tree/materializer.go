// tree вычисляет положение нового комментария в дереве: корень, глубину и
// материализованный путь предков. Вычисление выполняется один раз при создании,
// внутри той же транзакции, что и запись комментария.
package tree

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/comment-tree/internal/models"
)

var (
	// ErrRootRequired — у корневого комментария не указана родительская сущность.
	ErrRootRequired = errors.New("root is required for a root-level comment")
	// ErrRootConflict — явно указанный root расходится с root родителя (только в режиме RejectConflict).
	ErrRootConflict = errors.New("root conflicts with parent root")
	// ErrInvalidParent — у родителя нет id (не сохранён).
	ErrInvalidParent = errors.New("invalid parent")
)

// ConflictPolicy — как поступать, если root и parent указаны одновременно и расходятся.
type ConflictPolicy string

const (
	// PreferParent — root родителя побеждает (исторически принятое поведение).
	PreferParent ConflictPolicy = "prefer_parent"
	// RejectConflict — расхождение отклоняется как ошибка валидации.
	RejectConflict ConflictPolicy = "reject"
)

// ParseConflictPolicy разбирает значение из конфигурации; пустая строка — PreferParent.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case "":
		return PreferParent, nil
	case PreferParent, RejectConflict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown root conflict policy %q", s)
	}
}

// Input — то, что известно о новом комментарии до вставки.
// Parent должен быть прочитан из хранилища в текущей транзакции.
type Input struct {
	Parent *models.Comment
	Root   *models.RootRef
}

// Placement — вычисленное положение комментария.
type Placement struct {
	Root      models.RootRef
	ParentID  *int64
	Level     int
	Ancestors []int64
	// RootOverridden — вызывающий передал root, но он был заменён root родителя.
	RootOverridden bool
}

// Materializer вычисляет Placement.
type Materializer struct {
	policy ConflictPolicy
}

// New создаёт Materializer; пустая политика означает PreferParent.
func New(policy ConflictPolicy) *Materializer {
	if policy == "" {
		policy = PreferParent
	}

	return &Materializer{policy: policy}
}

// Materialize вычисляет root/level/ancestors:
//   - без родителя: level=0, ancestors=[], root обязателен;
//   - с родителем: root = parent.root, level = parent.level+1,
//     ancestors = parent.ancestors + [parent.id].
func (m *Materializer) Materialize(in Input) (Placement, error) {
	const op = "tree/Materialize"

	if in.Parent == nil {
		if in.Root == nil {
			return Placement{}, fmt.Errorf("%s: %w", op, ErrRootRequired)
		}

		return Placement{
			Root:      *in.Root,
			Level:     0,
			Ancestors: []int64{},
		}, nil
	}

	parent := in.Parent
	if parent.ID <= 0 {
		return Placement{}, fmt.Errorf("%s: %w", op, ErrInvalidParent)
	}

	overridden := in.Root != nil && *in.Root != parent.Root
	if overridden && m.policy == RejectConflict {
		return Placement{}, fmt.Errorf("%s: %w: got %s, parent has %s", op, ErrRootConflict, *in.Root, parent.Root)
	}

	ancestors := make([]int64, 0, len(parent.Ancestors)+1)
	ancestors = append(ancestors, parent.Ancestors...)
	ancestors = append(ancestors, parent.ID)

	parentID := parent.ID

	return Placement{
		Root:           parent.Root,
		ParentID:       &parentID,
		Level:          parent.Level + 1,
		Ancestors:      ancestors,
		RootOverridden: overridden,
	}, nil
}

// Apply переносит Placement в комментарий перед вставкой.
func (p Placement) Apply(c *models.Comment) {
	c.Root = p.Root
	c.ParentID = p.ParentID
	c.Level = p.Level
	c.Ancestors = p.Ancestors
}
