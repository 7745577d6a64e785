package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// commentColumns — единый список колонок таблицы comments для SELECT/RETURNING.
const commentColumns = `id, owner_id, created_at, root_kind, root_id, parent_id, level, ancestors, text`

// Имена ограничений внешних ключей (по умолчанию их назначает PostgreSQL).
const (
	fkCommentOwner  = "comments_owner_id_fkey"
	fkCommentParent = "comments_parent_id_fkey"
)

// scanComment сканирует строку комментария в доменную модель.
func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	var kind string

	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.CreatedAt,
		&kind,
		&c.Root.ID,
		&c.ParentID,
		&c.Level,
		&c.Ancestors,
		&c.Text,
	); err != nil {
		return nil, err
	}

	c.Root.Kind = models.RootKind(kind)
	c.CreatedAt = c.CreatedAt.UTC()
	if c.Ancestors == nil {
		c.Ancestors = []int64{}
	}

	return &c, nil
}

func collectComments(rows pgx.Rows) ([]models.Comment, error) {
	defer rows.Close()

	out := make([]models.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		out = append(out, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return out, nil
}

// fkViolation возвращает имя нарушенного внешнего ключа.
func fkViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return pgErr.ConstraintName, true
	}

	return "", false
}

// WithinTx выполняет fn в транзакции READ COMMITTED.
// Согласованность дерева обеспечивают блокировки строк (см. LockComment) и FK.
func (s *Storage) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

// txStore — операции storage.Tx поверх pgx.Tx.
type txStore struct {
	tx pgx.Tx
}

// LockComment читает строку с блокировкой.
// LockShare — FOR KEY SHARE: строку нельзя удалить, но можно менять текст.
// LockUpdate — FOR UPDATE: конфликтует с FOR KEY SHARE вставляющего ребёнка.
func (t *txStore) LockComment(ctx context.Context, id int64, mode storage.LockMode) (*models.Comment, error) {
	const op = "storage/postgres/LockComment"

	lock := "FOR KEY SHARE"
	if mode == storage.LockUpdate {
		lock = "FOR UPDATE"
	}

	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1 ` + lock

	c, err := scanComment(t.tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

func (t *txStore) CountChildren(ctx context.Context, id int64) (int, error) {
	const op = "storage/postgres/CountChildren"

	var n int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM comments WHERE parent_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// InsertComment вставляет комментарий; id и created_at назначает база.
// Ошибки: storage.ErrParentNotFound, storage.ErrOwnerNotFound.
func (t *txStore) InsertComment(ctx context.Context, c models.Comment) (*models.Comment, error) {
	const op = "storage/postgres/InsertComment"

	ancestors := c.Ancestors
	if ancestors == nil {
		ancestors = []int64{}
	}

	q := `
	INSERT INTO comments (owner_id, root_kind, root_id, parent_id, level, ancestors, text)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + commentColumns

	out, err := scanComment(t.tx.QueryRow(ctx, q,
		c.OwnerID,
		string(c.Root.Kind),
		c.Root.ID,
		c.ParentID,
		c.Level,
		ancestors,
		c.Text,
	))
	if err != nil {
		if name, ok := fkViolation(err); ok {
			switch name {
			case fkCommentParent:
				return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
			case fkCommentOwner:
				return nil, fmt.Errorf("%s: %w", op, storage.ErrOwnerNotFound)
			}
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (t *txStore) UpdateText(ctx context.Context, id int64, text string) (*models.Comment, error) {
	const op = "storage/postgres/UpdateText"

	q := `UPDATE comments SET text = $2 WHERE id = $1 RETURNING ` + commentColumns

	out, err := scanComment(t.tx.QueryRow(ctx, q, id, text))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// DeleteComment удаляет комментарий.
// Ошибки: storage.ErrNotFound, storage.ErrHasChildren (RESTRICT на parent_id).
func (t *txStore) DeleteComment(ctx context.Context, id int64) error {
	const op = "storage/postgres/DeleteComment"

	tag, err := t.tx.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		if name, ok := fkViolation(err); ok && name == fkCommentParent {
			return fmt.Errorf("%s: %w", op, storage.ErrHasChildren)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// CommentByID возвращает комментарий по id.
// Ошибки: storage.ErrNotFound.
func (s *Storage) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage/postgres/CommentByID"

	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`

	c, err := scanComment(s.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

// Query строит WHERE из заданных полей фильтра.
// Сортировка фиксирована: level ASC, created_at DESC, id DESC.
func (s *Storage) Query(ctx context.Context, f models.Filter) ([]models.Comment, error) {
	const op = "storage/postgres/Query"

	where := make([]string, 0, 6)
	args := make([]any, 0, 7)
	count := 0

	add := func(cond string, vals ...any) {
		idx := make([]any, len(vals))
		for i, v := range vals {
			count++
			idx[i] = count
			args = append(args, v)
		}
		where = append(where, fmt.Sprintf(cond, idx...))
	}

	if f.Root != nil {
		add("root_kind = $%d AND root_id = $%d", string(f.Root.Kind), f.Root.ID)
	}

	if f.AncestorID != nil {
		add("ancestors @> ARRAY[$%d]::bigint[]", *f.AncestorID)
	}

	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}

	if f.CreatedFrom != nil {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}

	if f.CreatedTo != nil {
		add("created_at <= $%d", f.CreatedTo.UTC())
	}

	if f.Level != nil {
		add("level = $%d", *f.Level)
	}

	q := `SELECT ` + commentColumns + ` FROM comments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY level ASC, created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := collectComments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// RootLevelPage читает счётчик и страницу в одной транзакции REPEATABLE READ,
// чтобы total и items относились к одному снимку.
func (s *Storage) RootLevelPage(ctx context.Context, root models.RootRef, number, size int) (*models.Page, error) {
	const op = "storage/postgres/RootLevelPage"

	if number < 1 || size < 1 {
		return nil, fmt.Errorf("%s: bad page %d/%d", op, number, size)
	}

	var page *models.Page

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, s.db, opts, func(tx pgx.Tx) error {
		var total int
		if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM comments
		WHERE root_kind = $1 AND root_id = $2 AND level = 0
		`, string(root.Kind), root.ID).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}

		rows, err := tx.Query(ctx, `
		SELECT `+commentColumns+` FROM comments
		WHERE root_kind = $1 AND root_id = $2 AND level = 0
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
		`, string(root.Kind), root.ID, size, (number-1)*size)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}

		items, err := collectComments(rows)
		if err != nil {
			return err
		}

		page = models.NewPage(items, total, number, size)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return page, nil
}

// IsLeaf — у комментария нет детей.
// Ошибки: storage.ErrNotFound.
func (s *Storage) IsLeaf(ctx context.Context, id int64) (bool, error) {
	const op = "storage/postgres/IsLeaf"

	var leaf bool
	err := s.db.QueryRow(ctx, `
	SELECT NOT EXISTS (SELECT 1 FROM comments k WHERE k.parent_id = c.id)
	FROM comments c WHERE c.id = $1
	`, id).Scan(&leaf)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return leaf, nil
}
