package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix — префикс ключей задач по умолчанию.
const DefaultPrefix = "comment-tree:export:"

// maxFinishRetries — число попыток FinishJob при конкурентном изменении ключа.
const maxFinishRetries = 3

// Jobs — storage.Jobs поверх Redis.
type Jobs struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewJobs создаёт хранилище задач. Пустой prefix — DefaultPrefix.
func NewJobs(rdb *goredis.Client, prefix string, ttl time.Duration) *Jobs {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Jobs{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (j *Jobs) key(id string) string { return j.prefix + id }

// Храним как Redis Hash с полями: status, enc, err, res (json), created, finished (unix nano).
func (j *Jobs) CreateJob(ctx context.Context, job models.ExportJob) error {
	const op = "storage/redis/CreateJob"

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	kv := map[string]string{
		"status":  string(job.Status),
		"enc":     job.Encoding,
		"created": strconv.FormatInt(job.CreatedAt.UnixNano(), 10),
	}

	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, j.key(job.ID), kv)
	if j.ttl > 0 {
		pipe.Expire(ctx, j.key(job.ID), j.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (j *Jobs) JobByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const op = "storage/redis/JobByID"

	m, err := j.rdb.HGetAll(ctx, j.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrJobNotFound)
	}

	job, err := decodeJob(id, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return job, nil
}

// FinishJob переводит задачу в терминальное состояние под WATCH,
// поэтому из двух конкурентных вызовов успешен только один.
// HSET сохраняет оставшийся TTL ключа.
func (j *Jobs) FinishJob(ctx context.Context, job models.ExportJob) error {
	const op = "storage/redis/FinishJob"

	key := j.key(job.ID)

	kv := map[string]string{
		"status": string(job.Status),
		"err":    job.Error,
	}

	if job.Result != nil {
		raw, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		kv["res"] = string(raw)
	}

	if job.FinishedAt != nil {
		kv["finished"] = strconv.FormatInt(job.FinishedAt.UnixNano(), 10)
	}

	txf := func(tx *goredis.Tx) error {
		status, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, goredis.Nil) {
			return storage.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		if models.JobStatus(status).Terminal() {
			return storage.ErrJobFinished
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, kv)
			return nil
		})

		return err
	}

	var err error
	for i := 0; i < maxFinishRetries; i++ {
		err = j.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func decodeJob(id string, m map[string]string) (*models.ExportJob, error) {
	job := &models.ExportJob{
		ID:       id,
		Status:   models.JobStatus(m["status"]),
		Encoding: m["enc"],
		Error:    m["err"],
	}

	if v := m["created"]; v != "" {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("created: %w", err)
		}
		job.CreatedAt = time.Unix(0, ns).UTC()
	}

	if v := m["finished"]; v != "" {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("finished: %w", err)
		}
		at := time.Unix(0, ns).UTC()
		job.FinishedAt = &at
	}

	if v := m["res"]; v != "" {
		var res models.ExportResult
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		job.Result = &res
	}

	return job, nil
}

var _ storage.Jobs = (*Jobs)(nil)
