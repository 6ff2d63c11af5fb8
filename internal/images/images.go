// Package images mirrors remote product images to local files.
package images

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

const maxImageBytes = 5 * 1024 * 1024

// Fetcher downloads product images through an SSRF-guarded client and
// stores them under a local directory. Any failure degrades to "no local
// image"; callers never block on it for correctness.
type Fetcher struct {
	client *safeurl.WrappedClient
	dir    string
}

// New creates a Fetcher writing into dir.
func New(dir string) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(10 * time.Second).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return &Fetcher{client: safeurl.Client(config), dir: dir}, nil
}

// Fetch downloads the image at url and returns the local path.
func (f *Fetcher) Fetch(_ context.Context, url string) (string, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("get image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	sum := sha256.Sum256([]byte(url))
	name := fmt.Sprintf("%x%s", sum[:8], extensionFor(contentType))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
