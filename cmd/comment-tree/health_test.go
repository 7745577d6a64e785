package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func getHealthz(h http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	return rr
}

func TestHealthz(t *testing.T) {
	var ready atomic.Bool
	down := false

	h := healthz(&ready, time.Second, map[string]pinger{
		"postgres": func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.Equal(t, http.StatusServiceUnavailable, getHealthz(h).Code)

	ready.Store(true)
	require.Equal(t, http.StatusOK, getHealthz(h).Code)

	down = true
	rr := getHealthz(h)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "postgres unavailable")
}

func TestHealthDeps_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	deps := healthDeps(&commentStore{}, rdb)
	require.Len(t, deps, 1)
	require.NoError(t, deps["redis"](context.Background()))

	mr.Close()
	require.Error(t, deps["redis"](context.Background()))

	require.Empty(t, healthDeps(&commentStore{}, nil))
}
