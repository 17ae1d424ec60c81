// Package storage archives generated card images in object storage.
// Provider image URLs expire, so a copy is kept under a stable key.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kardai/apiserver/config"
)

const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
	BackendS3    = "s3"

	maxImageBytes      = 20 << 20
	defaultContentType = "image/png"
	downloadTimeout    = 30 * time.Second
)

var ErrImageTooLarge = errors.New("image exceeds size limit")

// Backend defines the object operations archival needs.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// NewBackend constructs the configured backend. It returns nil when archival
// is disabled.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case BackendMinio:
		return NewMinioBackend(cfg.Minio)
	case BackendGCS:
		return NewGCSBackend(ctx, cfg.GCS)
	case BackendS3:
		return NewS3Backend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Archiver downloads an image and stores it in a Backend.
type Archiver struct {
	backend    Backend
	httpClient *http.Client
}

func NewArchiver(backend Backend) *Archiver {
	return &Archiver{
		backend:    backend,
		httpClient: newDownloadClient(),
	}
}

// Archive copies the image at sourceURL into the bucket and returns its key.
func (a *Archiver) Archive(ctx context.Context, userID int, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", ErrImageTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.HasPrefix(mediaType, "image/") {
		contentType = defaultContentType
	}

	key := ObjectKey(userID, uuid.NewString(), contentType)
	if err := a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// ObjectKey returns the bucket key for an archived card image.
func ObjectKey(userID int, id, contentType string) string {
	ext := ".png"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("cards/%d/%s%s", userID, id, ext)
}

func newDownloadClient() *http.Client {
	return &http.Client{
		Timeout: downloadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
