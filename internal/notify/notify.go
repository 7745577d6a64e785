// notify — публикация событий об изменении комментариев подписчикам сущности.
//
// Доставка best-effort: ошибки синка логируются и не влияют на мутацию.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/comment-tree/internal/metrics"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	goredis "github.com/redis/go-redis/v9"
)

// Reason — причина уведомления.
type Reason string

const (
	ReasonCreated Reason = "created"
	ReasonUpdated Reason = "updated"
	ReasonDeleted Reason = "deleted"
)

// Payload — полезная нагрузка события.
type Payload struct {
	CommentID int64  `json:"id"`
	Reason    Reason `json:"reason"`
}

// Event — событие для подписчиков сущности Root.
type Event struct {
	Root    models.RootRef
	Payload Payload
}

// message — формат сообщения в канале.
type message struct {
	ContentType models.RootKind `json:"content_type"`
	ObjectID    int64           `json:"object_id"`
	Data        Payload         `json:"data"`
}

// Sink — получатель событий.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// Nop — синк, отбрасывающий события.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// DefaultChannelPrefix — префикс каналов по умолчанию.
const DefaultChannelPrefix = "notification"

// RedisSink публикует события в Redis Pub/Sub, канал <prefix>-<kind>-<id>.
type RedisSink struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisSink(rdb *goredis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	return &RedisSink{rdb: rdb, prefix: prefix}
}

// Channel — имя канала подписчиков сущности.
func (s *RedisSink) Channel(root models.RootRef) string {
	return fmt.Sprintf("%s-%s-%d", s.prefix, root.Kind, root.ID)
}

func (s *RedisSink) Notify(ctx context.Context, e Event) error {
	const op = "notify/RedisSink/Notify"

	raw, err := json.Marshal(message{
		ContentType: e.Root.Kind,
		ObjectID:    e.Root.ID,
		Data:        e.Payload,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.rdb.Publish(ctx, s.Channel(e.Root), raw).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Async отправляет события в фоне с таймаутом и проглатывает ошибки.
type Async struct {
	sink    Sink
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewAsync оборачивает sink. timeout <= 0 — без ограничения времени.
func NewAsync(sink Sink, timeout time.Duration, m *metrics.Metrics) *Async {
	return &Async{sink: sink, timeout: timeout, metrics: m}
}

// Emit не блокирует вызывающего и не возвращает ошибок.
// Логгер берётся из ctx, отмена ctx на доставку не влияет.
func (a *Async) Emit(ctx context.Context, e Event) {
	bg := log.Detach(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := bg, context.CancelFunc(func() {})
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(bg, a.timeout)
		}
		defer cancel()

		defer func() {
			if p := recover(); p != nil {
				a.metrics.NotifyFailure()
				log.From(ctx).Warn("notify_panic", slog.Any("panic", p))
			}
		}()

		if err := a.sink.Notify(ctx, e); err != nil {
			a.metrics.NotifyFailure()
			log.From(ctx).Warn("notify_failed",
				slog.String("root", e.Root.String()),
				slog.Int64("comment_id", e.Payload.CommentID),
				slog.String("reason", string(e.Payload.Reason)),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Wait дожидается завершения отправленных событий (остановка сервиса, тесты).
func (a *Async) Wait() {
	a.wg.Wait()
}
