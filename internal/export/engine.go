// export — асинхронный экспорт выборок комментариев в файл.
//
// Submit сохраняет задачу в состоянии PENDING и публикует её в очередь;
// Run читает очередь и исполняет задачи ограниченным пулом воркеров.
// Любая ошибка исполнения (включая панику) переводит задачу в FAILURE
// с текстом ошибки, успешная — в SUCCESS с описанием файла.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ecodeclub/mq-api"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/comment-tree/internal/metrics"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// ErrNotReady — файл задачи недоступен: задача не завершилась успешно.
var ErrNotReady = errors.New("export job is not ready")

// Source — синхронный запрос к хранилищу комментариев.
type Source interface {
	Query(ctx context.Context, f models.Filter) ([]models.Comment, error)
}

// Options — параметры движка.
type Options struct {
	Topic   string
	Group   string
	Workers int
	// TTL — срок хранения файлов; Sweep удаляет более старые.
	TTL time.Duration
}

// DefaultGroup — группа потребителей очереди экспорта по умолчанию.
const DefaultGroup = "comment_export_workers"

// task — сообщение очереди.
type task struct {
	JobID    string        `json:"job_id"`
	Filter   models.Filter `json:"filter"`
	Encoding string        `json:"encoding"`
}

type Engine struct {
	source    Source
	jobs      storage.Jobs
	artifacts storage.Artifacts
	producer  mq.Producer
	consumer  mq.Consumer
	metrics   *metrics.Metrics

	workers int
	ttl     time.Duration
	now     func() time.Time
}

// New создаёт движок. Потребитель создаётся сразу, до первой публикации.
func New(q mq.MQ, src Source, jobs storage.Jobs, artifacts storage.Artifacts, m *metrics.Metrics, opts Options) (*Engine, error) {
	const op = "export/New"

	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if opts.Group == "" {
		opts.Group = DefaultGroup
	}

	producer, err := q.Producer(opts.Topic)
	if err != nil {
		return nil, fmt.Errorf("%s: producer: %w", op, err)
	}

	consumer, err := q.Consumer(opts.Topic, opts.Group)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("%s: consumer: %w", op, err)
	}

	return &Engine{
		source:    src,
		jobs:      jobs,
		artifacts: artifacts,
		producer:  producer,
		consumer:  consumer,
		metrics:   m,
		workers:   opts.Workers,
		ttl:       opts.TTL,
		now:       time.Now,
	}, nil
}

// Submit регистрирует задачу и ставит её в очередь, не дожидаясь исполнения.
// Ошибка возвращается только при сбое хранилища задач или брокера;
// некорректные фильтр и кодировка проявятся как FAILURE задачи.
func (e *Engine) Submit(ctx context.Context, f models.Filter, encoding string) (string, error) {
	const op = "export/Submit"

	job := models.ExportJob{
		ID:        uuid.NewString(),
		Status:    models.JobPending,
		Encoding:  encoding,
		CreatedAt: e.now().UTC(),
	}

	raw, err := json.Marshal(task{JobID: job.ID, Filter: f, Encoding: encoding})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := e.producer.Produce(ctx, &mq.Message{Value: raw}); err != nil {
		// Задачу никто не исполнит.
		finished := e.now().UTC()
		_ = e.jobs.FinishJob(context.WithoutCancel(ctx), models.ExportJob{
			ID:         job.ID,
			Status:     models.JobFailure,
			Error:      "enqueue: " + err.Error(),
			FinishedAt: &finished,
		})

		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("export_job_submitted", slog.String("job_id", job.ID), slog.String("encoding", encoding))

	return job.ID, nil
}

// Poll возвращает текущее состояние задачи.
// Ошибки: storage.ErrJobNotFound.
func (e *Engine) Poll(ctx context.Context, jobID string) (*models.ExportJob, error) {
	const op = "export/Poll"

	job, err := e.jobs.JobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return job, nil
}

// Open открывает файл успешной задачи для передачи клиенту.
// Ошибки: storage.ErrJobNotFound, ErrNotReady, storage.ErrArtifactNotFound.
func (e *Engine) Open(ctx context.Context, jobID string) (io.ReadCloser, *models.ExportResult, error) {
	const op = "export/Open"

	job, err := e.jobs.JobByID(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if job.Status != models.JobSuccess || job.Result == nil {
		return nil, nil, fmt.Errorf("%s: %w: status %s", op, ErrNotReady, job.Status)
	}

	rc, err := e.artifacts.OpenArtifact(ctx, job.Result.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return rc, job.Result, nil
}

// Run читает очередь до отмены ctx и исполняет задачи пулом из Workers воркеров.
// Начатые задачи доводятся до конца и после отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	lg := log.From(ctx).With("component", "export")
	lg.Info("export_workers_started", slog.Int("workers", e.workers))

	g := &errgroup.Group{}
	g.SetLimit(e.workers)

	jobCtx := context.WithoutCancel(log.Into(ctx, lg))
	backoff := 100 * time.Millisecond

	for {
		msg, err := e.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			lg.Warn("export_consume_failed", slog.String("err", err.Error()))

			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}

			continue
		}

		var t task
		if err := json.Unmarshal(msg.Value, &t); err != nil || t.JobID == "" {
			lg.Error("export_task_malformed", slog.Any("err", err))
			continue
		}

		g.Go(func() error {
			e.execute(jobCtx, t)
			return nil
		})
	}

	_ = g.Wait()
	lg.Info("export_workers_stopped")

	return nil
}

// Close освобождает producer/consumer.
func (e *Engine) Close() error {
	return errors.Join(e.consumer.Close(), e.producer.Close())
}

// execute исполняет задачу и фиксирует терминальное состояние.
func (e *Engine) execute(ctx context.Context, t task) {
	lg := log.From(ctx).With("job_id", t.JobID, "encoding", t.Encoding)

	current, err := e.jobs.JobByID(ctx, t.JobID)
	if err != nil {
		lg.Warn("export_job_lookup_failed", slog.String("err", err.Error()))
		return
	}

	if current.Status.Terminal() {
		// Повторная доставка сообщения.
		lg.Debug("export_job_already_finished", slog.String("status", string(current.Status)))
		return
	}

	lg.Info("export_job_started")
	start := e.now()

	res, runErr := e.safeRun(ctx, t)

	finished := e.now().UTC()
	job := models.ExportJob{ID: t.JobID, FinishedAt: &finished}

	if runErr != nil {
		job.Status = models.JobFailure
		job.Error = runErr.Error()
		lg.Warn("export_job_failed", slog.String("err", job.Error))
	} else {
		job.Status = models.JobSuccess
		job.Result = res
	}

	if err := e.jobs.FinishJob(ctx, job); err != nil {
		lg.Error("export_job_finish_failed", slog.String("err", err.Error()))
		return
	}

	e.metrics.ExportJob(string(job.Status), e.now().Sub(start))

	if job.Status == models.JobSuccess {
		lg.Info("export_job_done", slog.String("filename", res.Filename))
	}
}

// safeRun превращает панику исполнения в ошибку задачи.
func (e *Engine) safeRun(ctx context.Context, t task) (res *models.ExportResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	return e.run(ctx, t)
}

func (e *Engine) run(ctx context.Context, t task) (*models.ExportResult, error) {
	enc, err := EncoderFor(t.Encoding)
	if err != nil {
		return nil, err
	}

	if err := t.Filter.Validate(); err != nil {
		return nil, err
	}

	items, err := e.source.Query(ctx, t.Filter)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, items); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	name := t.JobID + "." + enc.Name()
	if err := e.artifacts.PutArtifact(ctx, name, enc.MediaType(), &buf, int64(buf.Len())); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &models.ExportResult{
		Filename:  name,
		MediaType: enc.MediaType(),
		Encoding:  enc.Name(),
	}, nil
}

// Sweep удаляет файлы старше TTL. TTL <= 0 — ничего не делает.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	const op = "export/Sweep"

	if e.ttl <= 0 {
		return 0, nil
	}

	n, err := e.artifacts.RemoveExpired(ctx, e.now().Add(-e.ttl))
	e.metrics.ArtifactsSwept(n)
	if err != nil {
		return n, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// RunSweeper вызывает Sweep каждые interval до отмены ctx.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	lg := log.From(ctx).With("component", "export_sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.Sweep(ctx)
			if err != nil {
				lg.Warn("export_sweep_failed", slog.String("err", err.Error()))
				continue
			}

			if n > 0 {
				lg.Info("export_artifacts_swept", slog.Int("removed", n))
			}
		}
	}
}
