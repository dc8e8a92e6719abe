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
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/poiesic/imagerank/ai"
	"github.com/poiesic/imagerank/ai/openai"
	"github.com/poiesic/imagerank/browser"
	"github.com/poiesic/imagerank/browser/chrome"
	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/crawl"
	"github.com/poiesic/imagerank/fetch"
	"github.com/poiesic/imagerank/ranking"
	"github.com/poiesic/imagerank/similarity"
	"github.com/poiesic/imagerank/storage"
	"github.com/poiesic/imagerank/storage/disk"
)

// Pipeline collects image candidates for a query and ranks them against a text.
// It owns the capability handles for one invocation.
type Pipeline struct {
	config       *Config
	runID        string
	store        storage.AssetStore
	provider     ai.AIProvider
	ownsProvider bool
	crawler      *crawl.Crawler
	ranker       *ranking.Ranker
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	provider   ai.AIProvider
	launcher   browser.Launcher
	fetcher    crawl.ImageFetcher
	httpClient *http.Client
	progress   io.Writer
	logger     *slog.Logger
}

// WithProvider supplies the AI services. The caller keeps ownership.
// By default an OpenAI-compatible provider is built from Config.AI.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *pipelineOptions) {
		o.provider = provider
	}
}

// WithLauncher supplies the browser driver. Default is a local Chrome.
func WithLauncher(launcher browser.Launcher) Option {
	return func(o *pipelineOptions) {
		o.launcher = launcher
	}
}

// WithImageFetcher replaces the image downloader.
func WithImageFetcher(fetcher crawl.ImageFetcher) Option {
	return func(o *pipelineOptions) {
		o.fetcher = fetcher
	}
}

// WithHTTPClient sets the client used for image downloads.
// Config.HTTPTimeout is not applied to a supplied client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *pipelineOptions) {
		o.httpClient = client
	}
}

// WithProgress reports ranking progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *pipelineOptions) {
		o.progress = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

// NewPipeline wires the store, crawler, scorer and ranker described by config.
func NewPipeline(config *Config, opts ...Option) (*Pipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := &pipelineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	runID := uuid.NewString()
	logger := options.logger.With("run", runID)

	store, err := disk.NewStore(config.ImageDir, config.MetadataPath, logger)
	if err != nil {
		return nil, err
	}

	provider, ownsProvider := options.provider, false
	if provider == nil {
		provider, err = openai.NewProvider(config.AI)
		if err != nil {
			return nil, err
		}
		ownsProvider = true
	}

	p := &Pipeline{
		config:       config,
		runID:        runID,
		store:        store,
		provider:     provider,
		ownsProvider: ownsProvider,
		logger:       logger.With("component", "pipeline"),
	}

	launcher := options.launcher
	if launcher == nil {
		launcher = chrome.NewLauncher(chrome.WithHeadless(config.Headless), chrome.WithLogger(logger))
	}
	fetcher := options.fetcher
	if fetcher == nil {
		fetcher = newFetcher(config, options.httpClient, logger)
	}

	p.crawler, err = crawl.NewCrawler(launcher, fetcher, store,
		crawl.WithResultCap(config.ResultCap),
		crawl.WithWaitTimeout(config.WaitTimeout),
		crawl.WithSearchURL(config.SearchURL),
		crawl.WithLogger(logger),
	)
	if err != nil {
		p.Close()
		return nil, err
	}

	scorer, err := similarity.NewScorer(provider.Embedder(), provider.Completer(), similarity.WithLogger(logger))
	if err != nil {
		p.Close()
		return nil, err
	}

	rankOpts := []ranking.Option{
		ranking.WithTopK(config.TopK),
		ranking.WithConcurrency(config.RankConcurrency),
		ranking.WithLogger(logger),
	}
	if options.progress != nil {
		rankOpts = append(rankOpts, ranking.WithProgress(options.progress))
	}
	p.ranker, err = ranking.NewRanker(store, provider.Describer(), scorer, rankOpts...)
	if err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

func newFetcher(config *Config, client *http.Client, logger *slog.Logger) *fetch.Fetcher {
	opts := []fetch.Option{
		fetch.WithMaxAttempts(config.MaxAttempts),
		fetch.WithBackoffUnit(config.BackoffUnit),
		fetch.WithQuality(config.JPEGQuality),
		fetch.WithMaxDimension(config.MaxImageDimension),
		fetch.WithLogger(logger),
	}
	if client != nil {
		opts = append(opts, fetch.WithHTTPClient(client))
	} else {
		opts = append(opts, fetch.WithTimeout(config.HTTPTimeout))
	}
	return fetch.NewFetcher(opts...)
}

// RunID identifies this pipeline invocation in log output.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Store returns the asset store shared by both stages.
func (p *Pipeline) Store() storage.AssetStore {
	return p.store
}

// Crawl searches for query and persists up to Config.ResultCap candidates.
func (p *Pipeline) Crawl(ctx context.Context, query string) ([]*core.Candidate, error) {
	p.logger.Info("crawl started", "query", query)
	return p.crawler.Crawl(ctx, query)
}

// Rank scores the persisted candidates against text and keeps the top Config.TopK.
func (p *Pipeline) Rank(ctx context.Context, text string) ([]*core.Candidate, error) {
	p.logger.Info("rank started")
	return p.ranker.Rank(ctx, text)
}

// Close releases the worker pool and, if the pipeline created it, the AI provider.
func (p *Pipeline) Close() error {
	if p.ranker != nil {
		p.ranker.Release()
	}
	if p.ownsProvider {
		if err := p.provider.Close(); err != nil {
			p.logger.Error("error closing AI provider", "err", err)
			return err
		}
	}
	return nil
}
