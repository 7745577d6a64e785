package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/comment-tree/internal/models"
)

var (
	// ErrJobNotFound — задачи нет (не создавалась или истёк срок хранения).
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished — задача уже в терминальном состоянии.
	ErrJobFinished = errors.New("job already finished")
)

// Jobs — состояние задач экспорта, ключ — id задачи.
type Jobs interface {
	// CreateJob сохраняет новую задачу в состоянии PENDING.
	CreateJob(ctx context.Context, job models.ExportJob) error
	// JobByID возвращает задачу. Нет — ErrJobNotFound.
	JobByID(ctx context.Context, id string) (*models.ExportJob, error)
	// FinishJob единожды переводит задачу в терминальное состояние (Status/Result/Error/FinishedAt из job).
	// Повторный вызов — ErrJobFinished, отсутствие задачи — ErrJobNotFound.
	FinishJob(ctx context.Context, job models.ExportJob) error
}
