package v1_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	v1 "github.com/zimshelf/zim-library/internal/api/v1"
)

func TestHealthRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		ready      v1.ReadinessCheck
		wantStatus int
		wantBody   string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantBody: "healthy"},
		{
			name:       "ready",
			path:       "/readiness",
			ready:      func(context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "not ready",
			path:       "/readiness",
			ready:      func(context.Context) error { return errors.New("store is closed") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "store is closed",
		},
		{name: "version", path: "/version", wantStatus: http.StatusOK, wantBody: "go_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := httptest.NewRecorder()
			v1.HealthRouter(tt.ready).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}
