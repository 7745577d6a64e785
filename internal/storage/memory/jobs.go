package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// Jobs — хранилище задач экспорта в памяти.
// Задача «истекает» через ttl после создания; ttl <= 0 — без ограничения.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]models.ExportJob
	ttl  time.Duration
	now  func() time.Time
}

// NewJobs создаёт хранилище задач.
func NewJobs(ttl time.Duration) *Jobs {
	return &Jobs{
		jobs: make(map[string]models.ExportJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (j *Jobs) CreateJob(ctx context.Context, job models.ExportJob) error {
	const op = "storage/memory/CreateJob"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = j.now().UTC()
	}

	j.jobs[job.ID] = job

	return nil
}

func (j *Jobs) JobByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const op = "storage/memory/JobByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.lookupLocked(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrJobNotFound)
	}

	return &job, nil
}

func (j *Jobs) FinishJob(ctx context.Context, job models.ExportJob) error {
	const op = "storage/memory/FinishJob"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cur, ok := j.lookupLocked(job.ID)
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrJobNotFound)
	}

	if cur.Status.Terminal() {
		return fmt.Errorf("%s: %w", op, storage.ErrJobFinished)
	}

	cur.Status = job.Status
	cur.Result = job.Result
	cur.Error = job.Error
	cur.FinishedAt = job.FinishedAt
	j.jobs[job.ID] = cur

	return nil
}

// lookupLocked вызывается под j.mu; просроченные задачи удаляются лениво.
func (j *Jobs) lookupLocked(id string) (models.ExportJob, bool) {
	job, ok := j.jobs[id]
	if !ok {
		return models.ExportJob{}, false
	}

	if j.ttl > 0 && j.now().Sub(job.CreatedAt) > j.ttl {
		delete(j.jobs, id)
		return models.ExportJob{}, false
	}

	return job, true
}

var _ storage.Jobs = (*Jobs)(nil)
