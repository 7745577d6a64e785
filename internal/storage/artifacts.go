package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrArtifactNotFound — файла нет (не создан или уже удалён).
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifacts — временное хранилище файлов экспорта, ключ — имя файла (<job_id>.<format>).
// Жизненный цикл ограничен: RemoveExpired удаляет файлы старше заданного момента.
type Artifacts interface {
	// PutArtifact сохраняет файл. size < 0 — размер неизвестен.
	PutArtifact(ctx context.Context, name, mediaType string, r io.Reader, size int64) error
	// OpenArtifact открывает файл на чтение. Нет — ErrArtifactNotFound.
	OpenArtifact(ctx context.Context, name string) (io.ReadCloser, error)
	// RemoveExpired удаляет файлы, изменённые раньше before, и возвращает их число.
	RemoveExpired(ctx context.Context, before time.Time) (int, error)
}
