package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/roots"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// Directory — пользователи и родительские сущности (page/article) в памяти.
type Directory struct {
	mu       sync.RWMutex
	users    map[int64]struct{}
	entities map[models.RootKind]map[int64]int64 // id -> owner
}

// NewDirectory создаёт пустой справочник.
func NewDirectory() *Directory {
	return &Directory{
		users:    make(map[int64]struct{}),
		entities: make(map[models.RootKind]map[int64]int64),
	}
}

// AddUser регистрирует пользователя.
func (d *Directory) AddUser(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users[id] = struct{}{}
}

// AddEntity регистрирует сущность вида kind с владельцем owner.
func (d *Directory) AddEntity(kind models.RootKind, id, owner int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.entities[kind]
	if !ok {
		m = make(map[int64]int64)
		d.entities[kind] = m
	}
	m[id] = owner
}

func (d *Directory) UserExists(_ context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.users[id]

	return ok, nil
}

// Resolver — резолвер сущностей одного вида для roots.Registry.
func (d *Directory) Resolver(kind models.RootKind) roots.Resolver {
	return roots.ResolverFunc(func(_ context.Context, id int64) (*roots.Entity, error) {
		const op = "storage/memory/Resolve"

		d.mu.RLock()
		defer d.mu.RUnlock()

		owner, ok := d.entities[kind][id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrRootNotFound)
		}

		return &roots.Entity{OwnerID: owner}, nil
	})
}

// Registry — реестр со всеми известными видами сущностей.
func (d *Directory) Registry() *roots.Registry {
	return roots.NewRegistry().
		Register(models.RootPage, d.Resolver(models.RootPage)).
		Register(models.RootArticle, d.Resolver(models.RootArticle))
}

var _ roots.Identity = (*Directory)(nil)
