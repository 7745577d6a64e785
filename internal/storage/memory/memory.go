// memory — реализация хранилищ comment-tree в памяти процесса.
//
// Комментарии лежат в арене map[id]*Comment; parent и ancestors — ссылки по id.
// Транзакция удерживает единственный мьютекс на всё время выполнения и
// откатывает изменения по журналу отмены, поэтому проверка «лист ли это» и
// удаление не могут разойтись с конкурентной вставкой ребёнка.
// Используется для окружения local и в тестах.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// Storage — арена комментариев и журнал истории.
type Storage struct {
	mu sync.RWMutex

	comments map[int64]*models.Comment
	children map[int64]map[int64]struct{}
	history  []models.HistoryRecord

	nextCommentID int64
	nextHistoryID int64

	now func() time.Time
}

// Option — настройка хранилища.
type Option func(*Storage)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// New создаёт пустое хранилище.
func New(opts ...Option) *Storage {
	s := &Storage{
		comments: make(map[int64]*models.Comment),
		children: make(map[int64]map[int64]struct{}),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close — no-op, для совместимости с storage.Storage.
func (s *Storage) Close() {}

// timestamp — текущее время с точностью PostgreSQL (микросекунды).
func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// WithinTx выполняет fn под эксклюзивной блокировкой арены.
// При ошибке или панике изменения откатываются в обратном порядке.
func (s *Storage) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}

	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}

	return nil
}

// memTx — транзакция поверх арены; вызывается под s.mu.
type memTx struct {
	s    *Storage
	undo []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}

	tx.undo = nil
}

// Проверка выполнения контракта верхнего уровня.
var _ storage.Storage = (*Storage)(nil)
