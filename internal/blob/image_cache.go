package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// DefaultFetchTimeout bounds a single image download.
const DefaultFetchTimeout = 10 * time.Second

const maxImageBytes = 20 << 20

// ImageCache downloads images by URL and keeps them in a Store keyed by the
// sha256 of the URL, so each image is downloaded once.
type ImageCache struct {
	store  Store
	client *http.Client
}

func NewImageCache(store Store, timeout time.Duration) *ImageCache {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ImageCache{store: store, client: &http.Client{Timeout: timeout}}
}

// Key returns the store key of an image URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "images/" + hex.EncodeToString(sum[:])
}

func (c *ImageCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := Key(url)
	cached, err := c.store.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrNotFound) {
		log.Printf("[BLOB] WARN: cache lookup for %s failed: %v", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url %s: %w", url, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	if err := c.store.Put(ctx, key, data, resp.Header.Get("Content-Type")); err != nil {
		log.Printf("[BLOB] WARN: failed to cache %s: %v", url, err)
	}
	return data, nil
}
