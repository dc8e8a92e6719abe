// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/imagerank/core"
)

const (
	// DefaultMaxAttempts is the default number of download attempts per image.
	DefaultMaxAttempts = 3

	// DefaultQuality is the JPEG quality of stored images.
	DefaultQuality = 95

	// DefaultTimeout bounds each request made by the default client.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBytes caps the size of a downloaded payload.
	DefaultMaxBytes = 20 << 20

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Image describes a normalized image written to disk.
type Image struct {
	Path         string      // Final path, always with core.ImageExtension
	SourceFormat string      // Format of the downloaded payload ("png", "webp", ...)
	Width        int         // Stored width in pixels
	Height       int         // Stored height in pixels
	Digest       core.Digest // Digest of the stored bytes
}

// Fetcher downloads remote images and stores them in the canonical format.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	maxAttempts  int
	backoffUnit  time.Duration
	quality      int
	maxDimension uint
	maxBytes     int64
	userAgent    string
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client. Its Timeout bounds each request.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithTimeout sets the total timeout of each request on the default client.
// It has no effect on a client supplied with WithHTTPClient.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// WithMaxAttempts sets the number of download attempts.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		f.maxAttempts = n
	}
}

// WithBackoffUnit sets the backoff time unit. Failed attempt n waits unit * 2^n.
func WithBackoffUnit(unit time.Duration) Option {
	return func(f *Fetcher) {
		f.backoffUnit = unit
	}
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(quality int) Option {
	return func(f *Fetcher) {
		if quality >= 1 && quality <= 100 {
			f.quality = quality
		}
	}
}

// WithMaxDimension downscales images whose longer edge exceeds dim. Zero disables.
func WithMaxDimension(dim uint) Option {
	return func(f *Fetcher) {
		f.maxDimension = dim
	}
}

// WithMaxBytes limits the downloaded payload size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
	}
}

// NewFetcher creates a fetcher with the given options.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoffUnit: time.Second,
		quality:     DefaultQuality,
		maxBytes:    DefaultMaxBytes,
		userAgent:   defaultUserAgent,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	f.logger = f.logger.With("component", "image-fetcher")
	return f
}

// Fetch downloads imageURL and stores it as stem + core.ImageExtension.
// Every failure is reported as an error wrapping core.ErrFetchFailure; callers
// skip the candidate.
func (f *Fetcher) Fetch(ctx context.Context, imageURL, stem string) (*Image, error) {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		f.logger.Warn("skipping non-http image", "url", truncate(imageURL, 64))
		return nil, fmt.Errorf("%w: %w", core.ErrFetchFailure, ErrUnsupportedURL)
	}

	var result *Image
	err = RetryWithBackoff(ctx, func(attempt int) error {
		img, err := f.fetchOnce(ctx, imageURL, stem)
		if err != nil {
			return err
		}
		result = img
		return nil
	}, f.maxAttempts, f.backoffUnit, f.logger.With("url", imageURL))
	if err != nil {
		f.logger.Error("giving up on image", "url", imageURL, "attempts", f.maxAttempts, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrFetchFailure, err)
	}

	f.logger.Info("stored image", "path", result.Path, "format", result.SourceFormat,
		"width", result.Width, "height", result.Height)
	return result, nil
}

// fetchOnce performs a single download, decode and re-encode.
func (f *Fetcher) fetchOnce(ctx context.Context, imageURL, stem string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	// The raw payload lands in a temporary file that never outlives this call
	dir := filepath.Dir(stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(stem)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if n > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind temporary file: %w", err)
	}

	decoded, format, err := decode(tmp)
	if err != nil {
		return nil, err
	}
	encoded, stored, err := normalize(decoded, f.quality, f.maxDimension)
	if err != nil {
		return nil, err
	}

	path := stem + core.ImageExtension
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	bounds := stored.Bounds()
	return &Image{
		Path:         path,
		SourceFormat: format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Digest:       core.DigestBytes(encoded),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
