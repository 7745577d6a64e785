package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pribylovaa/comment-tree/internal/pkg/log"
	"github.com/pribylovaa/comment-tree/internal/service"
	apierrors "github.com/pribylovaa/comment-tree/internal/transport/http/errors"
)

// HeaderUserID — заголовок, в котором провайдер идентификации передаёт id пользователя.
const HeaderUserID = "X-User-Id"

// Actor вынимает id пользователя из X-User-Id в контекст.
// Пустой заголовок — анонимный запрос (чтение); некорректный — 400.
func Actor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				apierrors.WriteError(w, r, fmt.Errorf("%w: bad %s header", service.ErrValidation, HeaderUserID))
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, id)
			ctx = log.With(ctx, "actor_id", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom возвращает id пользователя из контекста.
func ActorFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorKey).(int64)
	return id, ok
}
