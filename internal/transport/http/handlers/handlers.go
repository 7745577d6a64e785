package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
	apierrors "github.com/pribylovaa/comment-tree/internal/transport/http/errors"
	"github.com/pribylovaa/comment-tree/internal/transport/http/middleware"
)

// Service — операции comment-tree, доступные через HTTP.
type Service interface {
	CreateComment(ctx context.Context, in service.CreateCommentInput) (*models.Comment, error)
	UpdateComment(ctx context.Context, in service.UpdateCommentInput) (*models.Comment, error)
	DeleteComment(ctx context.Context, in service.DeleteCommentInput) error
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)
	IsLeaf(ctx context.Context, id int64) (bool, error)
	ListComments(ctx context.Context, f models.Filter) ([]models.Comment, error)
	SubmitList(ctx context.Context, f models.Filter) (string, error)
	ListResult(ctx context.Context, jobID string) (*service.ListJob, error)
	RootLevelPage(ctx context.Context, root models.RootRef, number int) (*models.Page, error)
	ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error)
	SubmitExport(ctx context.Context, f models.Filter, encoding string) (string, error)
	PollExport(ctx context.Context, jobID string) (*models.ExportJob, error)
	OpenExport(ctx context.Context, jobID string) (io.ReadCloser, *models.ExportResult, error)
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	svc Service
}

func New(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return invalid("body: %v", err)
	}

	return nil
}

// invalid — локальная ошибка разбора запроса -> 400.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", service.ErrValidation, fmt.Sprintf(format, args...))
}

// requireActor — изменяющие запросы выполняются только от имени пользователя.
func requireActor(r *http.Request) (int64, error) {
	id, ok := middleware.ActorFrom(r.Context())
	if !ok {
		return 0, apierrors.ErrUnauthenticated
	}

	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("%s: %q", name, raw)
	}

	return id, nil
}

func queryInt64(q map[string][]string, name string) (*int64, error) {
	raw := strings.TrimSpace(first(q, name))
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, invalid("%s: %q", name, raw)
	}

	return &v, nil
}

func queryInt(q map[string][]string, name string) (*int, error) {
	v, err := queryInt64(q, name)
	if err != nil || v == nil {
		return nil, err
	}

	n := int(*v)
	return &n, nil
}

func queryTime(q map[string][]string, name string) (*time.Time, error) {
	raw := strings.TrimSpace(first(q, name))
	if raw == "" {
		return nil, nil
	}

	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, invalid("%s: %q", name, raw)
	}

	return &v, nil
}

func first(q map[string][]string, name string) string {
	if vs := q[name]; len(vs) > 0 {
		return vs[0]
	}

	return ""
}

var _ Service = (*service.Service)(nil)
