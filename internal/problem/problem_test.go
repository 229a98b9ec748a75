package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func TestWriteUnauthorized(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://api.local/api/current/task?x=1", nil)
	rec := httptest.NewRecorder()
	Write(rec, req, http.StatusUnauthorized, "Unauthorized access")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, Problem{
		Type:     "http://api.local/problems/unauthorized",
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   "Unauthorized access",
		Instance: "http://api.local/api/current/task?x=1",
	}, p)
}

func TestForwardedHeadersWin(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://internal:8080/x", nil)
	req.Header.Set("X-Forwarded-Host", "api.example.org, proxy")
	req.Header.Set("X-Forwarded-Proto", "https")
	p := New(req, http.StatusTeapot, "short and stout")
	require.Equal(t, "https://api.example.org/problems/error", p.Type)
	require.Equal(t, "https://api.example.org/x", p.Instance)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("task t1: %w", facility.ErrNotFound), http.StatusNotFound, "task t1: not found"},
		{fmt.Errorf("%w: size must be > 0", facility.ErrInvalidArgument), http.StatusBadRequest, "invalid argument: size must be > 0"},
		{facility.ErrUnsupported, http.StatusNotImplemented, "unsupported"},
		{fmt.Errorf("enqueue task t2: %w", fmt.Errorf("queue full: %w", facility.ErrUnavailable)), http.StatusServiceUnavailable, "enqueue task t2: queue full: service unavailable"},
		{facility.ErrTaskTerminal, http.StatusConflict, "task is in a terminal state"},
		{errors.New("db exploded"), http.StatusInternalServerError, "An unexpected error occurred"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		require.Equal(t, tc.status, rec.Code)
		var p Problem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		require.Equal(t, tc.detail, p.Detail)
	}
}
