// Package blob stores evidence artifacts and resolves their URLs.
//
// Evidence rows reference artifacts by URL; the engine never embeds
// artifact bytes in booking records.
package blob

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("blob: not found")
	ErrEmpty    = errors.New("blob: empty payload")
)

// MaxBlobSize caps a single evidence artifact.
const MaxBlobSize = 10 << 20 // 10 MiB

// Store persists evidence artifacts.
type Store interface {
	// Put stores data under a generated name and returns its URL.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Exists reports whether the URL still resolves to an artifact.
	Exists(ctx context.Context, url string) (bool, error)
}

func newName() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "blb_" + hex.EncodeToString(b)
}

// HTTPStore stores artifacts in an external blob service over HTTP.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store backed by the blob service at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTPStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxBlobSize {
		return "", fmt.Errorf("blob: payload exceeds %d bytes", MaxBlobSize)
	}

	url := fmt.Sprintf("%s/blobs/%s", s.baseURL, newName())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("blob: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob: upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("blob: upload returned status %d", resp.StatusCode)
	}
	return url, nil
}

func (s *HTTPStore) Exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("blob: create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("blob: head: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	default:
		return false, fmt.Errorf("blob: head returned status %d", resp.StatusCode)
	}
}

// MemoryStore keeps artifacts in memory. Used when no blob service is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxBlobSize {
		return "", fmt.Errorf("blob: payload exceeds %d bytes", MaxBlobSize)
	}

	url := "mem://" + newName()
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.blobs[url] = cp
	m.mu.Unlock()
	return url, nil
}

func (m *MemoryStore) Exists(ctx context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[url]
	return ok, nil
}

// Get returns a stored artifact. Test helper.
func (m *MemoryStore) Get(url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
