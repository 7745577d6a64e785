package http

// Сквозные тесты REST-поверхности: chi-роутер + middleware + сервис
// на хранилище в памяти + движок экспорта на memory MQ и файловой системе.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ecodeclub/mq-api/memory"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/export"
	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/storage/filesystem"
	memstore "github.com/pribylovaa/comment-tree/internal/storage/memory"
	"github.com/pribylovaa/comment-tree/internal/transport/http/handlers"
)

const topic = "comment_export_jobs"

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	ctx := context.Background()

	dir := memstore.NewDirectory()
	dir.AddUser(1)
	dir.AddUser(2)
	dir.AddEntity(models.RootPage, 1, 1)

	store := memstore.New()

	q := memory.NewMQ()
	require.NoError(t, q.CreateTopic(ctx, topic, 1))

	arts, err := filesystem.New(t.TempDir())
	require.NoError(t, err)

	engine, err := export.New(q, store, memstore.NewJobs(time.Hour), arts, nil, export.Options{
		Topic: topic, Workers: 2, TTL: time.Hour,
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = engine.Close()
	})

	svc := service.New(service.Deps{
		Storage:  store,
		Roots:    dir.Registry(),
		Identity: dir,
		Exporter: engine,
	})

	return NewRouter(svc, Options{Timeout: 5 * time.Second})
}

func do(t *testing.T, h http.Handler, method, target string, actor int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rd)
	if actor > 0 {
		req.Header.Set("X-User-Id", strconv.FormatInt(actor, 10))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())

	return out
}

func TestRouter_CommentLifecycle(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments", 1, map[string]any{
		"content_type": "page", "object_id": 1, "text": "root",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	root := decode[handlers.CommentResponse](t, rr)
	require.Equal(t, 0, root.Level)
	require.Nil(t, root.Parent)
	require.Equal(t, models.RootPage, root.ContentType)

	rr = do(t, h, http.MethodPost, "/comments", 2, map[string]any{"parent": root.ID, "text": "reply"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	reply := decode[handlers.CommentResponse](t, rr)
	require.Equal(t, 1, reply.Level)
	require.Equal(t, []int64{root.ID}, reply.Ancestors)

	rr = do(t, h, http.MethodGet, "/comments/"+strconv.FormatInt(root.ID, 10), 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[handlers.CommentResponse](t, rr)
	require.NotNil(t, got.IsLeaf)
	require.False(t, *got.IsLeaf)

	// Чужой комментарий менять нельзя.
	rr = do(t, h, http.MethodPatch, "/comments/"+strconv.FormatInt(reply.ID, 10), 1, map[string]any{"text": "hijack"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodPatch, "/comments/"+strconv.FormatInt(reply.ID, 10), 2, map[string]any{"text": "edited"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "edited", decode[handlers.CommentResponse](t, rr).Text)

	// Корень с ответом удалить нельзя.
	rr = do(t, h, http.MethodDelete, "/comments/"+strconv.FormatInt(root.ID, 10), 1, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "not_leaf", decode[errEnvelope](t, rr).Error.Code)

	rr = do(t, h, http.MethodDelete, "/comments/"+strconv.FormatInt(reply.ID, 10), 2, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/history?comment_id="+strconv.FormatInt(reply.ID, 10), 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	records := decode[[]handlers.HistoryResponse](t, rr)
	require.Len(t, records, 3)
	require.Equal(t, models.ChangeDeleted, records[0].Kind)

	rr = do(t, h, http.MethodGet, "/history?kind=Created", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]handlers.HistoryResponse](t, rr), 2)
}

func TestRouter_RootLevelPage(t *testing.T) {
	h := newTestRouter(t)

	for i := 0; i < 12; i++ {
		rr := do(t, h, http.MethodPost, "/comments", 1, map[string]any{
			"content_type": "page", "object_id": 1, "text": "root " + strconv.Itoa(i),
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := do(t, h, http.MethodGet, "/roots/page/1/comments", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p1 := decode[handlers.PageResponse](t, rr)
	require.Equal(t, 12, p1.Count)
	require.Len(t, p1.Results, 10)
	require.Equal(t, 2, *p1.Next)
	require.Nil(t, p1.Previous)

	rr = do(t, h, http.MethodGet, "/roots/page/1/comments?page=2", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p2 := decode[handlers.PageResponse](t, rr)
	require.Len(t, p2.Results, 2)
	require.Nil(t, p2.Next)

	rr = do(t, h, http.MethodGet, "/roots/page/1/comments?page=3", 0, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/roots/video/1/comments", 0, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/comments?content_type=page&object_id=1&level=0", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]handlers.CommentResponse](t, rr), 12)
}

func TestRouter_Errors(t *testing.T) {
	h := newTestRouter(t)

	tcs := []struct {
		name       string
		method     string
		target     string
		actor      int64
		body       any
		wantStatus int
		wantCode   string
	}{
		{"anonymous create", http.MethodPost, "/comments", 0, map[string]any{"content_type": "page", "object_id": 1, "text": "x"}, http.StatusUnauthorized, "unauthenticated"},
		{"unknown field", http.MethodPost, "/comments", 1, map[string]any{"txt": "x"}, http.StatusBadRequest, "invalid_argument"},
		{"unknown owner", http.MethodPost, "/comments", 9, map[string]any{"content_type": "page", "object_id": 1, "text": "x"}, http.StatusBadRequest, "invalid_argument"},
		{"missing root entity", http.MethodPost, "/comments", 1, map[string]any{"content_type": "page", "object_id": 404, "text": "x"}, http.StatusConflict, "consistency"},
		{"missing parent", http.MethodPost, "/comments", 1, map[string]any{"parent": 404, "text": "x"}, http.StatusConflict, "consistency"},
		{"bad id", http.MethodGet, "/comments/abc", 0, nil, http.StatusBadRequest, "invalid_argument"},
		{"not found", http.MethodGet, "/comments/404", 0, nil, http.StatusNotFound, "not_found"},
		{"bad time", http.MethodGet, "/comments?created_from=yesterday", 0, nil, http.StatusBadRequest, "invalid_argument"},
		{"bad history kind", http.MethodGet, "/history?kind=Renamed", 0, nil, http.StatusBadRequest, "invalid_argument"},
		{"unknown job", http.MethodGet, "/comments/exports/nope", 0, nil, http.StatusNotFound, "not_found"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.target, tc.actor, tc.body)
			require.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())

			env := decode[errEnvelope](t, rr)
			require.Equal(t, tc.wantCode, env.Error.Code)
			require.NotEmpty(t, env.Error.RequestID)
		})
	}
}

func waitJob(t *testing.T, h http.Handler, id string) models.ExportJob {
	t.Helper()

	var job models.ExportJob
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/comments/exports/"+id, 0, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return job
}

func TestRouter_ExportRoundTrip(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments", 1, map[string]any{"content_type": "page", "object_id": 1, "text": "a"})
	require.Equal(t, http.StatusCreated, rr.Code)
	a := decode[handlers.CommentResponse](t, rr)

	rr = do(t, h, http.MethodPost, "/comments", 2, map[string]any{"parent": a.ID, "text": "b"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, h, http.MethodPost, "/comments/exports", 0, map[string]any{
		"filter": map[string]any{"content_type": "page", "object_id": 1},
		"format": "json",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	sub := decode[handlers.ExportSubmitted](t, rr)
	require.NotEmpty(t, sub.TaskID)

	job := waitJob(t, h, sub.TaskID)
	require.Equal(t, models.JobSuccess, job.Status, job.Error)
	require.Equal(t, sub.TaskID+".json", job.Result.Filename)

	rr = do(t, h, http.MethodGet, "/comments/exports/"+sub.TaskID+"/file", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), sub.TaskID+".json")

	items := decode[[]map[string]any](t, rr)
	require.Len(t, items, 2)
	require.Nil(t, items[0]["parent"])
	require.Equal(t, "page", items[0]["content_type"])
}

func TestRouter_ExportUnknownFormat(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments/exports", 0, map[string]any{"format": "pdf"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	sub := decode[handlers.ExportSubmitted](t, rr)

	job := waitJob(t, h, sub.TaskID)
	require.Equal(t, models.JobFailure, job.Status)
	require.Contains(t, job.Error, "not implemented")

	rr = do(t, h, http.MethodGet, "/comments/exports/"+sub.TaskID+"/file", 0, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "not_ready", decode[errEnvelope](t, rr).Error.Code)
}

func waitList(t *testing.T, h http.Handler, id string) handlers.ListTaskResponse {
	t.Helper()

	var task handlers.ListTaskResponse
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/comments?task_id="+id, 0, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &task); err != nil {
			return false
		}
		return task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return task
}

func TestRouter_ListCommentsQueued(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments", 1, map[string]any{"content_type": "page", "object_id": 1, "text": "a"})
	require.Equal(t, http.StatusCreated, rr.Code)
	a := decode[handlers.CommentResponse](t, rr)

	rr = do(t, h, http.MethodPost, "/comments", 2, map[string]any{"parent": a.ID, "text": " b "})
	require.Equal(t, http.StatusCreated, rr.Code)
	b := decode[handlers.CommentResponse](t, rr)

	rr = do(t, h, http.MethodGet, "/comments?content_type=page&object_id=1", 0, nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	sub := decode[handlers.ExportSubmitted](t, rr)
	require.NotEmpty(t, sub.TaskID)
	require.Equal(t, "/comments?task_id="+sub.TaskID, rr.Header().Get("Location"))

	task := waitList(t, h, sub.TaskID)
	require.Equal(t, models.JobSuccess, task.Status, task.Error)
	require.Equal(t, sub.TaskID, task.TaskID)
	require.Len(t, task.Result, 2)

	// level ASC: корень, затем ответ; текст и время без искажений.
	require.Equal(t, a.ID, task.Result[0].ID)
	require.Equal(t, a.Created, task.Result[0].Created)
	require.Equal(t, b.ID, task.Result[1].ID)
	require.Equal(t, " b ", task.Result[1].Text)
	require.Equal(t, []int64{a.ID}, task.Result[1].Ancestors)

	rr = do(t, h, http.MethodGet, "/comments?task_id=nope", 0, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ListCommentsBadFilter(t *testing.T) {
	h := newTestRouter(t)

	// Без level некорректный дескриптор проявляется как FAILURE задачи.
	rr := do(t, h, http.MethodGet, "/comments?content_type=video&object_id=1", 0, nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	sub := decode[handlers.ExportSubmitted](t, rr)

	task := waitList(t, h, sub.TaskID)
	require.Equal(t, models.JobFailure, task.Status)
	require.Contains(t, task.Error, "invalid filter")
	require.Nil(t, task.Result)

	// С level выборка синхронная: ошибка сразу.
	rr = do(t, h, http.MethodGet, "/comments?content_type=video&object_id=1&level=0", 0, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_argument", decode[errEnvelope](t, rr).Error.Code)
}

func TestRouter_ListResultOfFileExport(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments/exports", 0, map[string]any{"format": "xml"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	sub := decode[handlers.ExportSubmitted](t, rr)
	require.Equal(t, models.JobSuccess, waitJob(t, h, sub.TaskID).Status)

	rr = do(t, h, http.MethodGet, "/comments?task_id="+sub.TaskID, 0, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ExportBadFilterFails(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/comments/exports", 0, map[string]any{
		"filter": map[string]any{"content_type": "video", "object_id": 1},
		"format": "json",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	sub := decode[handlers.ExportSubmitted](t, rr)

	job := waitJob(t, h, sub.TaskID)
	require.Equal(t, models.JobFailure, job.Status)
	require.Contains(t, job.Error, "root kind")
}

func TestIsDownload(t *testing.T) {
	require.True(t, isDownload(httptest.NewRequest(http.MethodGet, "/comments/exports/abc/file", nil)))
	require.True(t, isDownload(httptest.NewRequest(http.MethodGet, "/api/comments/exports/abc/file", nil)))
	require.False(t, isDownload(httptest.NewRequest(http.MethodGet, "/comments/exports/abc", nil)))
	require.False(t, isDownload(httptest.NewRequest(http.MethodPost, "/comments/exports/abc/file", nil)))
}
