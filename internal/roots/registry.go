// roots разрешает ссылки на родительские сущности (page/article) через реестр
// резолверов, зарегистрированных по тегу RootKind.
package roots

import (
	"context"
	"fmt"
	"slices"

	"github.com/ecodeclub/ekit/mapx"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// Entity — то, что ядру нужно знать о родительской сущности.
type Entity struct {
	Ref     models.RootRef
	OwnerID int64
}

// Resolver — хранилище сущностей одного вида.
// Нет записи — storage.ErrRootNotFound.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (*Entity, error)
}

// ResolverFunc — адаптер функции к Resolver.
type ResolverFunc func(ctx context.Context, id int64) (*Entity, error)

func (f ResolverFunc) Resolve(ctx context.Context, id int64) (*Entity, error) { return f(ctx, id) }

// Identity — провайдер пользователей.
type Identity interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// Registry — резолверы по тегу.
type Registry struct {
	resolvers map[models.RootKind]Resolver
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[models.RootKind]Resolver)}
}

// Register связывает тег с резолвером. Повторная регистрация заменяет прежний.
func (r *Registry) Register(kind models.RootKind, res Resolver) *Registry {
	r.resolvers[kind] = res
	return r
}

// Kinds — зарегистрированные теги по алфавиту.
func (r *Registry) Kinds() []models.RootKind {
	out := mapx.Keys(r.resolvers)
	slices.Sort(out)

	return out
}

// Resolve находит сущность по ссылке.
// Ошибки: models.ErrUnknownRootKind — нет резолвера; storage.ErrRootNotFound — нет сущности.
func (r *Registry) Resolve(ctx context.Context, ref models.RootRef) (*Entity, error) {
	const op = "roots/Resolve"

	res, ok := r.resolvers[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, models.ErrUnknownRootKind, ref.Kind)
	}

	if ref.ID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrRootNotFound)
	}

	e, err := res.Resolve(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.Ref = ref

	return e, nil
}
