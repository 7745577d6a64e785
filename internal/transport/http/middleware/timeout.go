package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout ограничивает обработку запроса сроком d, если у запроса ещё нет deadline.
// d <= 0 отключает ограничение.
//
// Запросы, для которых один из exempt вернул true, идут без deadline:
// потоковую отдачу файла прерывает только отключение клиента.
func Timeout(d time.Duration, exempt ...func(*http.Request) bool) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			for _, skip := range exempt {
				if skip(r) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
