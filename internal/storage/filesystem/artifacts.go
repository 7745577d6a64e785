// filesystem — хранилище файлов экспорта в локальном каталоге
// (окружение local и тесты; в проде — MinIO).
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pribylovaa/comment-tree/internal/storage"
)

// ErrInvalidName — имя файла содержит разделители пути.
var ErrInvalidName = errors.New("invalid artifact name")

type ArtifactsStorage struct {
	dir string
}

// New создаёт каталог dir (если его нет) и хранилище поверх него.
func New(dir string) (*ArtifactsStorage, error) {
	const op = "storage/filesystem/New"

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &ArtifactsStorage{dir: dir}, nil
}

func (s *ArtifactsStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(s.dir, name), nil
}

// PutArtifact пишет во временный файл и атомарно переименовывает его,
// так что читатель никогда не видит недописанный файл.
func (s *ArtifactsStorage) PutArtifact(ctx context.Context, name, _ string, r io.Reader, _ int64) error {
	const op = "storage/filesystem/PutArtifact"

	dst, err := s.path(name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// OpenArtifact. Ошибки: storage.ErrArtifactNotFound.
func (s *ArtifactsStorage) OpenArtifact(_ context.Context, name string) (io.ReadCloser, error) {
	const op = "storage/filesystem/OpenArtifact"

	p, err := s.path(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrArtifactNotFound)
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrArtifactNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f, nil
}

// RemoveExpired удаляет файлы с mtime раньше before.
// Временные файлы незавершённой записи не трогаются.
func (s *ArtifactsStorage) RemoveExpired(ctx context.Context, before time.Time) (int, error) {
	const op = "storage/filesystem/RemoveExpired"

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("%s: %w", op, err)
		}

		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return removed, fmt.Errorf("%s: %w", op, err)
		}

		if !info.ModTime().Before(before) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%s: %w", op, err)
		}

		removed++
	}

	return removed, nil
}

var _ storage.Artifacts = (*ArtifactsStorage)(nil)
