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


package imagerank

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/poiesic/imagerank/ai"
	"github.com/poiesic/imagerank/crawl"
	"github.com/poiesic/imagerank/fetch"
	"github.com/poiesic/imagerank/ranking"
)

// Config holds the settings of one pipeline.
type Config struct {
	// ImageDir holds the candidate images.
	ImageDir string

	// MetadataPath is the location of the JSON metadata document.
	MetadataPath string

	// ResultCap is the maximum number of candidates collected by a crawl.
	// Default: 7
	ResultCap int

	// TopK is the number of candidates kept after ranking.
	// Default: 5
	TopK int

	// HTTPTimeout bounds each image download request.
	HTTPTimeout time.Duration

	// WaitTimeout bounds each wait for page elements during a crawl.
	WaitTimeout time.Duration

	// MaxAttempts is the number of download attempts per image.
	MaxAttempts int

	// BackoffUnit is the base delay between download attempts.
	BackoffUnit time.Duration

	// JPEGQuality is the quality of stored images (1-100).
	JPEGQuality int

	// MaxImageDimension downscales larger images. Zero disables.
	MaxImageDimension uint

	// Headless runs the browser without a window.
	Headless bool

	// SearchURL is the image search endpoint.
	SearchURL string

	// RankConcurrency is how many candidates are scored at once.
	// Default: 1
	RankConcurrency int

	// AI configures the embedding, completion and vision services.
	AI *ai.Config
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithAssetRoot places the image directory and metadata document under root.
func WithAssetRoot(root string) ConfigOption {
	return func(c *Config) {
		c.ImageDir = filepath.Join(root, "images")
		c.MetadataPath = filepath.Join(root, "metadata", "google_images_data.json")
	}
}

// WithResultCap sets the crawl candidate ceiling.
func WithResultCap(n int) ConfigOption {
	return func(c *Config) {
		c.ResultCap = n
	}
}

// WithTopK sets how many candidates survive ranking.
func WithTopK(k int) ConfigOption {
	return func(c *Config) {
		c.TopK = k
	}
}

// WithHeadless toggles the headless browser.
func WithHeadless(headless bool) ConfigOption {
	return func(c *Config) {
		c.Headless = headless
	}
}

// WithAIConfig replaces the AI service configuration.
func WithAIConfig(cfg *ai.Config) ConfigOption {
	return func(c *Config) {
		c.AI = cfg
	}
}

// DefaultConfig returns a Config with the standard pipeline settings.
func DefaultConfig() *Config {
	cfg := &Config{
		ResultCap:         crawl.DefaultResultCap,
		TopK:              ranking.DefaultTopK,
		HTTPTimeout:       10 * time.Second,
		WaitTimeout:       crawl.DefaultWaitTimeout,
		MaxAttempts:       fetch.DefaultMaxAttempts,
		BackoffUnit:       time.Second,
		JPEGQuality:       fetch.DefaultQuality,
		MaxImageDimension: 2048,
		Headless:          true,
		SearchURL:         crawl.DefaultSearchURL,
		RankConcurrency:   1,
		AI:                ai.DefaultConfig(),
	}
	WithAssetRoot("assets")(cfg)
	return cfg
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ImageDir == "" {
		return errors.New("config: ImageDir is required")
	}
	if c.MetadataPath == "" {
		return errors.New("config: MetadataPath is required")
	}
	if c.ResultCap < 1 {
		return errors.New("config: ResultCap must be positive")
	}
	if c.TopK < 1 {
		return errors.New("config: TopK must be positive")
	}
	if c.HTTPTimeout <= 0 || c.WaitTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	if c.MaxAttempts < 1 {
		return errors.New("config: MaxAttempts must be at least 1")
	}
	if c.BackoffUnit < 0 {
		return errors.New("config: BackoffUnit cannot be negative")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("config: JPEGQuality must be between 1 and 100")
	}
	if c.RankConcurrency < 1 {
		return errors.New("config: RankConcurrency must be at least 1")
	}
	if c.SearchURL == "" {
		return errors.New("config: SearchURL is required")
	}
	if c.AI == nil {
		return errors.New("config: AI is required")
	}
	return nil
}
