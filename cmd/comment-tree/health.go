package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pribylovaa/comment-tree/internal/pkg/log"
)

// pinger — зависимость, доступность которой проверяет /healthz.
type pinger func(ctx context.Context) error

// healthz отвечает 200, только если сервис поднят и все зависимости отвечают за timeout.
func healthz(ready *atomic.Bool, timeout time.Duration, deps map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		for name, ping := range deps {
			if err := ping(ctx); err != nil {
				log.From(r.Context()).Warn("healthz_dependency_down", slog.String("dep", name), slog.String("err", err.Error()))
				http.Error(w, fmt.Sprintf("%s unavailable", name), http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
