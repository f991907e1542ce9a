// Package storage implements durable re-hosting of reference images and
// finished outputs behind the generation.Uploader interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUploadRejected indicates the storage endpoint refused the object.
var ErrUploadRejected = errors.New("storage endpoint rejected upload")

// HTTPUploader stores objects by PUTting them to a base URL, the way a
// pre-signed bucket gateway accepts writes. The readable URL is the same
// object path under PublicBaseURL.
type HTTPUploader struct {
	uploadBase string
	publicBase string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPUploader builds an uploader writing to uploadBase. publicBase
// may be empty, in which case uploaded objects are read back from
// uploadBase itself.
func NewHTTPUploader(uploadBase, publicBase string, timeout time.Duration, logger *slog.Logger) (*HTTPUploader, error) {
	if uploadBase == "" {
		return nil, errors.New("upload base URL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if publicBase == "" {
		publicBase = uploadBase
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPUploader{
		uploadBase: strings.TrimRight(uploadBase, "/"),
		publicBase: strings.TrimRight(publicBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "storage"),
	}, nil
}

// Upload reads the source (a local path or a fetchable URL), writes it
// under a fresh object key grouped by destinationHint, and returns the
// durable URL.
func (u *HTTPUploader) Upload(ctx context.Context, source string, destinationHint string) (string, error) {
	body, err := u.open(ctx, source)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	key := objectKey(source, destinationHint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.uploadBase+"/"+key, body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d for %s", ErrUploadRejected, resp.StatusCode, key)
	}

	durable := u.publicBase + "/" + key
	u.logger.Debug("object uploaded", "key", key, "source_kind", sourceKind(source))
	return durable, nil
}

// open yields a reader for the source, fetching remote URLs and opening
// local paths.
func (u *HTTPUploader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if isRemote(source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build fetch request: %w", err)
		}
		resp, err := u.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch source: status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	return f, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func sourceKind(source string) string {
	if isRemote(source) {
		return "url"
	}
	return "file"
}

// objectKey builds a collision-free key preserving the source extension.
func objectKey(source, destinationHint string) string {
	ext := path.Ext(source)
	if isRemote(source) {
		if parsed, err := url.Parse(source); err == nil {
			ext = path.Ext(parsed.Path)
		}
	}
	if destinationHint == "" {
		destinationHint = "misc"
	}
	return destinationHint + "/" + uuid.New().String() + ext
}

// Passthrough returns already-durable sources unchanged and fails on
// local paths. It is the uploader for deployments where the provider
// writes directly to durable storage.
type Passthrough struct{}

// Upload returns remote sources as-is.
func (Passthrough) Upload(_ context.Context, source string, _ string) (string, error) {
	if !isRemote(source) {
		return "", fmt.Errorf("cannot upload local file %q without a configured storage endpoint", source)
	}
	return source, nil
}
