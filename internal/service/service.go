// service содержит бизнес-логику comment-tree: конвейер записи
// (валидация → разрешение ссылок → транзакция: блокировка, политика,
// материализация, запись, журнал → уведомление) и сторону чтения.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pribylovaa/comment-tree/internal/history"
	"github.com/pribylovaa/comment-tree/internal/metrics"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/notify"
	"github.com/pribylovaa/comment-tree/internal/policy"
	"github.com/pribylovaa/comment-tree/internal/roots"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/tree"
)

var (
	// ErrValidation — некорректный ввод или неразрешимая ссылка (владелец, вид сущности).
	ErrValidation = errors.New("validation error")
	// ErrConsistency — указанный родитель или сущность отсутствует.
	ErrConsistency = errors.New("consistency error")
	// ErrNotLeaf — удаление заблокировано наличием детей.
	ErrNotLeaf = errors.New("comment is not a leaf")
	// ErrForbidden — нарушение политики доступа.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound — сущность отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrJobNotReady — файл экспорта запрошен до успешного завершения задачи.
	ErrJobNotReady = errors.New("export job is not ready")
	// ErrInternal — внутренняя ошибка (хранилище/брокер/и т.д.).
	ErrInternal = errors.New("internal")
)

// Notifier — отправка событий после коммита (fire-and-forget).
type Notifier interface {
	Emit(ctx context.Context, e notify.Event)
}

// Exporter — движок экспорта.
type Exporter interface {
	Submit(ctx context.Context, f models.Filter, encoding string) (string, error)
	Poll(ctx context.Context, jobID string) (*models.ExportJob, error)
	Open(ctx context.Context, jobID string) (io.ReadCloser, *models.ExportResult, error)
}

// Deps — зависимости сервиса. Notifier, Exporter и Metrics необязательны.
type Deps struct {
	Storage      storage.Storage
	Roots        *roots.Registry
	Identity     roots.Identity
	Materializer *tree.Materializer
	Policy       policy.Rule
	Notifier     Notifier
	Exporter     Exporter
	Metrics      *metrics.Metrics
	PageSize     int
}

// Service — бизнес-логика comment-tree.
type Service struct {
	storage  storage.Storage
	roots    *roots.Registry
	identity roots.Identity
	tree     *tree.Materializer
	policy   policy.Rule
	history  *history.Recorder
	notifier Notifier
	exporter Exporter
	metrics  *metrics.Metrics
	pageSize int
}

// DefaultPageSize — размер страницы корневых комментариев.
const DefaultPageSize = 10

// New создает новый экземпляр Service.
func New(d Deps) *Service {
	s := &Service{
		storage:  d.Storage,
		roots:    d.Roots,
		identity: d.Identity,
		tree:     d.Materializer,
		policy:   d.Policy,
		history:  history.NewRecorder(),
		notifier: d.Notifier,
		exporter: d.Exporter,
		metrics:  d.Metrics,
		pageSize: d.PageSize,
	}

	if s.roots == nil {
		s.roots = roots.NewRegistry()
	}

	if s.tree == nil {
		s.tree = tree.New(tree.PreferParent)
	}

	if s.policy == nil {
		s.policy = policy.Default()
	}

	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}

	return s
}

// internal скрывает детали ошибки хранилища, но сохраняет отмену/дедлайн контекста.
func internal(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
}

func (s *Service) emit(ctx context.Context, c models.Comment, reason notify.Reason) {
	if s.notifier == nil {
		return
	}

	s.notifier.Emit(ctx, notify.Event{
		Root:    c.Root,
		Payload: notify.Payload{CommentID: c.ID, Reason: reason},
	})
}

var _ Notifier = (*notify.Async)(nil)
