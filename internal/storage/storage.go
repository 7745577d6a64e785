// storage содержит контракты слоя хранилищ comment-tree.
//
// storage.go   — комментарии и журнал истории (реляционное хранилище, транзакции).
// jobs.go      — состояние задач экспорта.
// artifacts.go — временные файлы экспорта.
package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/comment-tree/internal/models"
)

var (
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrParentNotFound — указан parent_id, но родитель не найден (в т.ч. удалён конкурентно).
	ErrParentNotFound = errors.New("parent not found")
	// ErrRootNotFound — родительская сущность (page/article) не найдена.
	ErrRootNotFound = errors.New("root not found")
	// ErrOwnerNotFound — пользователь-владелец не найден.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrHasChildren — у комментария есть дети, удаление невозможно.
	ErrHasChildren = errors.New("comment has children")
)

// LockMode — режим блокировки строки комментария внутри транзакции.
type LockMode int

const (
	// LockShare — строка не может быть удалена до конца транзакции (вставка ребёнка).
	LockShare LockMode = iota
	// LockUpdate — эксклюзивная блокировка (изменение/удаление).
	LockUpdate
)

// Tx — операции, выполняемые атомарно в одной транзакции:
// создание/изменение/удаление комментария вместе с записью истории.
type Tx interface {
	// LockComment читает комментарий и блокирует его строку. Нет записи — ErrNotFound.
	LockComment(ctx context.Context, id int64, mode LockMode) (*models.Comment, error)
	// CountChildren возвращает число прямых детей.
	CountChildren(ctx context.Context, id int64) (int, error)
	// InsertComment вставляет комментарий; ID и CreatedAt назначает хранилище.
	// Root/Level/Ancestors должны быть уже вычислены.
	// Возможные ошибки: ErrParentNotFound.
	InsertComment(ctx context.Context, c models.Comment) (*models.Comment, error)
	// UpdateText меняет только текст. Нет записи — ErrNotFound.
	UpdateText(ctx context.Context, id int64, text string) (*models.Comment, error)
	// DeleteComment удаляет комментарий. Нет записи — ErrNotFound, есть дети — ErrHasChildren.
	DeleteComment(ctx context.Context, id int64) error
	// AppendHistory добавляет запись в журнал; ID и (если пусто) ChangedAt назначает хранилище.
	AppendHistory(ctx context.Context, rec models.HistoryRecord) (*models.HistoryRecord, error)
}

// Comments — хранилище комментариев.
type Comments interface {
	// WithinTx выполняет fn в транзакции. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// CommentByID возвращает комментарий. Нет записи — ErrNotFound.
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)

	// Query возвращает комментарии по фильтру.
	// Сортировка: level ASC, created_at DESC, id DESC.
	Query(ctx context.Context, f models.Filter) ([]models.Comment, error)

	// RootLevelPage возвращает страницу корневых (level = 0) комментариев сущности
	// и их общее число, прочитанные из одного снимка.
	// number — номер страницы с 1, size — её размер.
	RootLevelPage(ctx context.Context, root models.RootRef, number, size int) (*models.Page, error)

	// IsLeaf — у комментария нет детей. Нет записи — ErrNotFound.
	IsLeaf(ctx context.Context, id int64) (bool, error)
}

// History — чтение журнала изменений.
type History interface {
	// ListHistory возвращает записи по фильтру, сначала новые: changed_at DESC, id DESC.
	ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error)
}

// Storage — верхнеуровневый интерфейс хранилища комментариев.
type Storage interface {
	Comments
	History
	Close()
}
