package tika_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/textextractor/tika"
)

func writeTempDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtractPath_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("  MSME \tloan\n\npolicy  text \x00here "))
	}))
	defer server.Close()

	c := tika.New(server.URL)
	path := writeTempDoc(t, "policy.pdf", "%PDF-1.4 fake")

	got, err := c.ExtractPath(context.Background(), "policy.pdf", path)
	require.NoError(t, err)
	assert.Equal(t, "MSME loan policy text here", got)
}

func TestExtractPath_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := tika.New(server.URL)
	path := writeTempDoc(t, "broken.pdf", "junk")

	_, err := c.ExtractPath(context.Background(), "broken.pdf", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tika status 422")
}

func TestExtractPath_DisallowedPath(t *testing.T) {
	c := tika.New("http://unused")
	_, err := c.ExtractPath(context.Background(), "passwd", "/etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed path")
}

func TestExtractPath_MissingFile(t *testing.T) {
	c := tika.New("http://unused")
	_, err := c.ExtractPath(context.Background(), "nope.pdf", filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
}
