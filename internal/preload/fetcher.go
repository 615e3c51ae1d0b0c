package preload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPFetcher downloads image references into an on-disk cache directory.
// The cache is best-effort: entries are keyed by a digest of the reference
// and a fetch that finds the file already present is a no-op.
type HTTPFetcher struct {
	client   *http.Client
	cacheDir string
}

// NewHTTPFetcher builds a fetcher caching into dir, creating it if needed.
func NewHTTPFetcher(dir string, timeout time.Duration) (*HTTPFetcher, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: dir,
	}, nil
}

// CachedPath returns the on-disk path for ref and whether it is present.
func (f *HTTPFetcher) CachedPath(ref string) (string, bool) {
	path := f.pathFor(ref)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Prefetch downloads ref into the cache. Already-cached references return
// immediately.
func (f *HTTPFetcher) Prefetch(ctx context.Context, ref string) error {
	path := f.pathFor(ref)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", ref, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", ref, resp.StatusCode)
	}

	// Write through a temp file so a partial download never looks cached.
	tmp, err := os.CreateTemp(f.cacheDir, "fetch-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *HTTPFetcher) pathFor(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:16])+".img")
}
