package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/service"
)

func TestToHTTP_BaseMapping(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("op: %w", service.ErrValidation), http.StatusBadRequest, "invalid_argument"},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"not_leaf", fmt.Errorf("op: %w: %w", service.ErrForbidden, service.ErrNotLeaf), http.StatusConflict, "not_leaf"},
		{"forbidden", fmt.Errorf("op: %w", service.ErrForbidden), http.StatusForbidden, "permission_denied"},
		{"not_found", fmt.Errorf("op: %w", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{"consistency", fmt.Errorf("op: %w", service.ErrConsistency), http.StatusConflict, "consistency"},
		{"not_ready", fmt.Errorf("op: %w", service.ErrJobNotReady), http.StatusConflict, "not_ready"},
		{"canceled", fmt.Errorf("op: %w", context.Canceled), StatusClientClosedRequest, "canceled"},
		{"deadline", fmt.Errorf("op: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "deadline_exceeded"},
		{"internal", fmt.Errorf("op: %w", service.ErrInternal), http.StatusInternalServerError, "internal"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, "internal", resp.Error.Code)
	require.Equal(t, "internal error", resp.Error.Message)
}

func TestWriteError_EnvelopeWithRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/comments/1", nil)
	req.Header.Set("X-Request-Id", "rid-1")

	WriteError(rr, req, fmt.Errorf("op: %w", service.ErrNotFound))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "not_found", resp.Error.Code)
	require.Equal(t, "rid-1", resp.Error.RequestID)
	require.NotContains(t, rr.Body.String(), "op:")
}
