package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/comment-tree/internal/transport/http/handlers"
	"github.com/pribylovaa/comment-tree/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования: request_id попадает в логгер
		middleware.Logging(opts.Logger),
		middleware.Actor(),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout, isDownload))
	}

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// comments
	r.Post("/comments", h.CreateComment)
	r.Get("/comments", h.ListComments)
	r.Get("/comments/{id}", h.GetComment)
	r.Patch("/comments/{id}", h.UpdateComment)
	r.Delete("/comments/{id}", h.DeleteComment)
	r.Get("/roots/{kind}/{id}/comments", h.RootLevelPage)

	// exports
	r.Post("/comments/exports", h.SubmitExport)
	r.Get("/comments/exports/{job_id}", h.PollExport)
	r.Get("/comments/exports/{job_id}/file", h.DownloadExport)

	// history
	r.Get("/history", h.ListHistory)
}

// isDownload — отдача файла экспорта (GET /comments/exports/{job_id}/file).
func isDownload(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		strings.HasSuffix(r.URL.Path, "/file") &&
		strings.Contains(r.URL.Path, "/comments/exports/")
}
