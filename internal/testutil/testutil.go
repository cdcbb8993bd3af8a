// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// LoopbackRemoteAddr is a client address tsweb accepts for /debug/ routes.
const LoopbackRemoteAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request that passes tsweb's debug access check.
// POST requests carry a form content type so FormValue works.
func NewDebugRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = LoopbackRemoteAddr
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

// ServeDebug sends a debug request through mux and returns the recorder.
func ServeDebug(mux http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, NewDebugRequest(method, path, body))
	return rec
}

// WriteTempFile writes body to name inside a fresh test directory and
// returns the full path.
func WriteTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
