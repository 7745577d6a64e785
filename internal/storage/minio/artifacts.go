package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

func (s *ArtifactsStorage) key(name string) string { return s.prefix + name }

// PutArtifact загружает файл; size < 0 — потоковая загрузка без известного размера.
func (s *ArtifactsStorage) PutArtifact(ctx context.Context, name, mediaType string, r io.Reader, size int64) error {
	const op = "storage/minio/artifacts/PutArtifact"

	if size < 0 {
		size = -1
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, size, mclient.PutObjectOptions{
		ContentType: mediaType,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// OpenArtifact проверяет наличие объекта и открывает его на чтение.
// Ошибки: storage.ErrArtifactNotFound.
func (s *ArtifactsStorage) OpenArtifact(ctx context.Context, name string) (io.ReadCloser, error) {
	const op = "storage/minio/artifacts/OpenArtifact"

	if _, err := s.client.StatObject(ctx, s.bucket, s.key(name), mclient.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrArtifactNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), mclient.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return obj, nil
}

// RemoveExpired удаляет объекты под префиксом, изменённые раньше before.
func (s *ArtifactsStorage) RemoveExpired(ctx context.Context, before time.Time) (int, error) {
	const op = "storage/minio/artifacts/RemoveExpired"

	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, mclient.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("%s: %w", op, obj.Err)
		}

		if !obj.LastModified.Before(before) || !strings.HasPrefix(obj.Key, s.prefix) {
			continue
		}

		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, mclient.RemoveObjectOptions{}); err != nil {
			if isNotFound(err) {
				continue
			}

			return removed, fmt.Errorf("%s: %w", op, err)
		}

		removed++
	}

	return removed, nil
}

func isNotFound(err error) bool {
	errResp := mclient.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.StatusCode == http.StatusNotFound
}
