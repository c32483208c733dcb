// Package tika provides Apache Tika integration for text extraction.
//
// It extracts text content from various document formats including
// PDF, Word, and plain text files. The package handles document
// parsing and provides clean text output for further processing.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/msme-loan-scorer/pkg/textx"
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ExtractPath uploads the file at path to the Tika server and returns plain text.
func (c *Client) ExtractPath(ctx context.Context, fileName, path string) (string, error) {
	// Constrain allowed paths to the temp dir or working dir unless absolute
	// paths are explicitly enabled, so a crafted document name cannot pull in
	// arbitrary files.
	openPath, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	bfile, err := os.ReadFile(openPath)
	if err != nil {
		return "", err
	}

	u := c.baseURL
	if u == "" {
		u = "http://localhost:9998"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u+"/tika", bytes.NewReader(bfile))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	// Content-Type best-effort from extension
	if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tika status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	// Sanitize control characters and then collapse all whitespace to single spaces
	sanitized := textx.SanitizeText(string(b))
	return strings.Join(strings.Fields(sanitized), " "), nil
}

func resolvePath(path string) (string, error) {
	if os.Getenv("TIKA_ALLOW_ABSPATHS") == "1" {
		if abs, err := filepath.Abs(path); err == nil {
			return filepath.Clean(abs), nil
		}
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	for _, base := range []string{filepath.Clean(os.TempDir()), workingDir()} {
		if base == "" {
			continue
		}
		if abs == base || strings.HasPrefix(abs, base+string(os.PathSeparator)) {
			rel, err := filepath.Rel(base, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(base, rel), nil
		}
	}
	return "", fmt.Errorf("disallowed path: %s", abs)
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Clean(wd)
}

func contentTypeFromExt(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		if ext != "" {
			return mime.TypeByExtension(ext)
		}
	}
	return ""
}
