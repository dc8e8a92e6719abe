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


package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/imagerank/browser"
	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/fetch"
	"github.com/poiesic/imagerank/storage"
)

const (
	// DefaultResultCap is the maximum number of candidates kept per crawl.
	DefaultResultCap = 7

	// DefaultWaitTimeout bounds each wait for page elements.
	DefaultWaitTimeout = 30 * time.Second
)

// ImageFetcher retrieves and normalizes a remote image.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL, stem string) (*fetch.Image, error)
}

// Crawler collects image candidates from a search results page.
type Crawler struct {
	launcher    browser.Launcher
	fetcher     ImageFetcher
	store       storage.AssetStore
	resultCap   int
	waitTimeout time.Duration
	searchURL   string
	selectors   Selectors
	logger      *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithResultCap sets the maximum number of candidates per crawl.
func WithResultCap(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.resultCap = n
		}
	}
}

// WithWaitTimeout bounds each wait for page elements.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) Option {
	return func(c *Crawler) {
		if u != "" {
			c.searchURL = u
		}
	}
}

// WithSelectors overrides the page selectors.
func WithSelectors(sel Selectors) Option {
	return func(c *Crawler) {
		c.selectors = sel
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewCrawler creates a crawler.
func NewCrawler(launcher browser.Launcher, fetcher ImageFetcher, store storage.AssetStore, opts ...Option) (*Crawler, error) {
	if launcher == nil {
		return nil, ErrLauncherRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	c := &Crawler{
		launcher:    launcher,
		fetcher:     fetcher,
		store:       store,
		resultCap:   DefaultResultCap,
		waitTimeout: DefaultWaitTimeout,
		searchURL:   DefaultSearchURL,
		selectors:   DefaultSelectors(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "crawler")
	return c, nil
}

// elementResult is the outcome of processing one result element.
type elementResult struct {
	candidate *core.Candidate
	digest    core.Digest
	err       error
}

// Crawl searches for query and persists up to the result cap of candidates.
//
// The image directory is reset and the metadata document emptied once the
// results have rendered. If they never render, core.ErrCrawlTimeout is
// returned and nothing is persisted. The browser session is closed on every
// exit path.
func (c *Crawler) Crawl(ctx context.Context, query string) ([]*core.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn("error closing browser session", "err", err)
		}
	}()

	searchURL := buildSearchURL(c.searchURL, query)
	c.logger.Info("navigating to search results", "url", searchURL)
	if err := session.Navigate(ctx, searchURL); err != nil {
		return nil, fmt.Errorf("failed to load search results: %w", err)
	}

	if err := c.waitFor(ctx, session, c.selectors.Results); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s after %v: %w", core.ErrCrawlTimeout, c.selectors.Results, c.waitTimeout, err)
	}

	if err := c.store.ResetImageDirectory(ctx); err != nil {
		return nil, err
	}
	if err := c.store.WriteMetadata(ctx, nil); err != nil {
		return nil, err
	}

	elements, err := session.QueryAll(ctx, c.selectors.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate results: %w", err)
	}
	c.logger.Info("found result elements", "count", len(elements))

	candidates := make([]*core.Candidate, 0, c.resultCap)
	seen := make(map[core.Digest]int)
	for position, element := range elements {
		if len(candidates) >= c.resultCap {
			c.logger.Info("reached result cap", "cap", c.resultCap)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		index := len(candidates) + 1
		result := c.processElement(ctx, session, element, index)
		if result.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn("skipping result", "position", position+1, "err", result.err)
			continue
		}

		if first, dup := seen[result.digest]; dup {
			c.logger.Info("skipping duplicate image", "position", position+1, "duplicateOf", first)
			if err := c.store.DeleteImage(ctx, result.candidate.ImageFile); err != nil {
				c.logger.Warn("error removing duplicate image", "file", result.candidate.ImageFile, "err", err)
			}
			continue
		}
		seen[result.digest] = index

		c.logger.Debug("candidate prepared", "index", index, "source", result.candidate.SourceName)
		candidates = append(candidates, result.candidate)
	}

	if err := c.store.WriteMetadata(ctx, candidates); err != nil {
		return nil, err
	}
	c.logger.Info("crawl finished", "query", query, "candidates", len(candidates))
	return candidates, nil
}

// waitFor waits for selector within the crawler's wait timeout.
func (c *Crawler) waitFor(ctx context.Context, session browser.Session, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()
	return session.WaitForSelector(waitCtx, selector)
}

// processElement activates a result, reads its preview and stores the image
// into the slot for index.
func (c *Crawler) processElement(ctx context.Context, session browser.Session, element browser.Element, index int) elementResult {
	fail := func(err error) elementResult {
		return elementResult{err: err}
	}

	if err := element.Click(ctx); err != nil {
		return fail(fmt.Errorf("failed to activate result: %w", err))
	}
	if err := c.waitFor(ctx, session, c.selectors.Preview); err != nil {
		return fail(fmt.Errorf("%w: %w", errPreviewMissing, err))
	}
	preview, err := session.Query(ctx, c.selectors.Preview)
	if err != nil {
		return fail(fmt.Errorf("failed to query preview: %w", err))
	}
	if preview == nil {
		return fail(errPreviewMissing)
	}

	src, ok, err := preview.Attribute(ctx, "src")
	if err != nil {
		return fail(err)
	}
	if !ok || strings.TrimSpace(src) == "" {
		return fail(errNoImageSource)
	}
	alt, _, err := preview.Attribute(ctx, "alt")
	if err != nil {
		return fail(err)
	}

	sourceURL := core.SourceUnavailable
	if html, err := session.Content(ctx); err != nil {
		c.logger.Debug("could not read page content for source link", "err", err)
	} else {
		sourceURL = extractSourceURL(html, c.selectors)
	}

	img, err := c.fetcher.Fetch(ctx, src, c.store.ImageStem(index))
	if err != nil {
		return fail(err)
	}

	return elementResult{
		candidate: &core.Candidate{
			Index:       index,
			Description: alt,
			SourceURL:   sourceURL,
			SourceName:  core.ExtractDomain(sourceURL),
			ImageFile:   img.Path,
		},
		digest: img.Digest,
	}
}
