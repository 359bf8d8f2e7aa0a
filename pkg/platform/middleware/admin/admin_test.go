package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireOpsToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name     string
		expected string
		header   string
		value    string
		status   int
	}{
		{name: "open when unset", expected: "", status: http.StatusNoContent},
		{name: "missing token", expected: "s3cret", status: http.StatusUnauthorized},
		{name: "wrong token", expected: "s3cret", header: HeaderOpsToken, value: "nope", status: http.StatusUnauthorized},
		{name: "ops header", expected: "s3cret", header: HeaderOpsToken, value: "s3cret", status: http.StatusNoContent},
		{name: "bearer", expected: "s3cret", header: "Authorization", value: "Bearer s3cret", status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			RequireOpsToken(tt.expected, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
