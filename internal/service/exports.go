package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pribylovaa/comment-tree/internal/export"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

// SubmitExport ставит выгрузку в очередь и сразу возвращает id задачи.
// Некорректные фильтр и кодировка не отклоняются: задача завершится FAILURE.
// Ошибки: ErrInternal (хранилище задач или брокер недоступны).
func (s *Service) SubmitExport(ctx context.Context, f models.Filter, encoding string) (string, error) {
	const op = "service/exports/SubmitExport"

	lg := log.From(ctx).With("op", op, "encoding", encoding)

	if s.exporter == nil {
		lg.Error("export engine is not configured")
		return "", fmt.Errorf("%s: %w: export disabled", op, ErrInternal)
	}

	id, err := s.exporter.Submit(ctx, f, strings.ToLower(strings.TrimSpace(encoding)))
	if err != nil {
		lg.Error("submit failed", "err", err)
		return "", internal(op, err)
	}

	return id, nil
}

// PollExport возвращает состояние задачи, не дожидаясь её завершения.
// Ошибки: ErrNotFound, ErrInternal.
func (s *Service) PollExport(ctx context.Context, jobID string) (*models.ExportJob, error) {
	const op = "service/exports/PollExport"

	lg := log.From(ctx).With("op", op, "job_id", jobID)

	if s.exporter == nil {
		return nil, fmt.Errorf("%s: %w: export disabled", op, ErrInternal)
	}

	if jobID == "" {
		return nil, fmt.Errorf("%s: %w: empty job id", op, ErrValidation)
	}

	job, err := s.exporter.Poll(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			lg.Warn("job not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		lg.Error("poll failed", "err", err)
		return nil, internal(op, err)
	}

	return job, nil
}

// OpenExport открывает файл успешно завершённой задачи. Закрывает поток вызывающий.
// Ошибки: ErrNotFound (нет задачи или файл уже удалён), ErrJobNotReady, ErrInternal.
func (s *Service) OpenExport(ctx context.Context, jobID string) (io.ReadCloser, *models.ExportResult, error) {
	const op = "service/exports/OpenExport"

	lg := log.From(ctx).With("op", op, "job_id", jobID)

	if s.exporter == nil {
		return nil, nil, fmt.Errorf("%s: %w: export disabled", op, ErrInternal)
	}

	if jobID == "" {
		return nil, nil, fmt.Errorf("%s: %w: empty job id", op, ErrValidation)
	}

	rc, res, err := s.exporter.Open(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrNotReady):
			lg.Warn("job not ready", "err", err)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrJobNotReady)
		case errors.Is(err, storage.ErrJobNotFound), errors.Is(err, storage.ErrArtifactNotFound):
			lg.Warn("export not found", "err", err)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		default:
			lg.Error("open failed", "err", err)
			return nil, nil, internal(op, err)
		}
	}

	return rc, res, nil
}

// ListJob — задача выборки комментариев; Items заполнен только для SUCCESS.
type ListJob struct {
	Job   *models.ExportJob
	Items []models.Comment
}

// SubmitList ставит в очередь выборку комментариев по фильтру.
// Результат забирается через ListResult; некорректный фильтр завершит задачу FAILURE.
func (s *Service) SubmitList(ctx context.Context, f models.Filter) (string, error) {
	return s.SubmitExport(ctx, f, export.EncodingJSON)
}

// ListResult возвращает состояние задачи выборки и, если она успешна, сами комментарии.
// Ошибки: ErrValidation (задача выгружает не JSON), ErrNotFound, ErrInternal.
func (s *Service) ListResult(ctx context.Context, jobID string) (*ListJob, error) {
	const op = "service/exports/ListResult"

	lg := log.From(ctx).With("op", op, "job_id", jobID)

	job, err := s.PollExport(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := &ListJob{Job: job}
	if job.Status != models.JobSuccess {
		return out, nil
	}

	if job.Encoding != export.EncodingJSON {
		lg.Warn("not a list job", "encoding", job.Encoding)
		return nil, fmt.Errorf("%s: %w: job encoding is %q", op, ErrValidation, job.Encoding)
	}

	rc, _, err := s.OpenExport(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	items, err := export.DecodeJSON(rc)
	if err != nil {
		lg.Error("decode list result failed", "err", err)
		return nil, internal(op, err)
	}
	out.Items = items

	return out, nil
}

var _ Exporter = (*export.Engine)(nil)
