package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/roots"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// rootTables — таблицы родительских сущностей по тегу.
var rootTables = map[models.RootKind]string{
	models.RootPage:    "pages",
	models.RootArticle: "articles",
}

// Resolver возвращает резолвер сущностей вида kind.
func (s *Storage) Resolver(kind models.RootKind) roots.Resolver {
	table := rootTables[kind]

	return roots.ResolverFunc(func(ctx context.Context, id int64) (*roots.Entity, error) {
		const op = "storage/postgres/Resolve"

		if table == "" {
			return nil, fmt.Errorf("%s: %w", op, models.ErrUnknownRootKind)
		}

		var e roots.Entity
		err := s.db.QueryRow(ctx, `SELECT owner_id FROM `+table+` WHERE id = $1`, id).Scan(&e.OwnerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrRootNotFound)
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return &e, nil
	})
}

// Registry — реестр резолверов для всех таблиц сущностей.
func (s *Storage) Registry() *roots.Registry {
	reg := roots.NewRegistry()
	for kind := range rootTables {
		reg.Register(kind, s.Resolver(kind))
	}

	return reg
}

// UserExists проверяет наличие пользователя.
func (s *Storage) UserExists(ctx context.Context, id int64) (bool, error) {
	const op = "storage/postgres/UserExists"

	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

var _ roots.Identity = (*Storage)(nil)
