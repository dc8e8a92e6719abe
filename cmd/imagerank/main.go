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


package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/imagerank"
	"github.com/poiesic/imagerank/ai"
	"github.com/poiesic/imagerank/core"
	"github.com/urfave/cli/v2"
)

// logLevelEnv is read after the env file is loaded, so it is not bound to the
// flag: app flags are parsed before the Before hook runs.
const logLevelEnv = "IMAGERANK_LOG_LEVEL"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "imagerank",
		Usage: "Collect image search results for a query and keep the most relevant ones",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error) [$" + logLevelEnv + "]",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			{
				Name:   "crawl",
				Usage:  "Search for images and store up to result-cap candidates",
				Action: crawlCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
				}, pipelineFlags()...),
			},
			{
				Name:   "rank",
				Usage:  "Rank stored candidates against a text and keep the top-k",
				Action: rankCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "text",
						Aliases:  []string{"t"},
						Usage:    "Text to rank candidates against",
						Required: true,
					},
				}, pipelineFlags()...),
			},
			{
				Name:   "run",
				Usage:  "Crawl then rank",
				Action: runCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "text",
						Aliases: []string{"t"},
						Usage:   "Text to rank candidates against (defaults to the query)",
					},
				}, pipelineFlags()...),
			},
		},
	}
}

// pipelineFlags are shared by every command. They are parsed after the
// app's Before hook, so values from the env file reach them.
func pipelineFlags() []cli.Flag {
	defaults := imagerank.DefaultConfig()
	aiDefaults := ai.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "assets",
			Usage:   "Directory holding images/ and metadata/",
			Value:   "assets",
			EnvVars: []string{"IMAGERANK_ASSETS"},
		},
		&cli.IntFlag{
			Name:  "result-cap",
			Usage: "Maximum number of candidates collected by a crawl",
			Value: defaults.ResultCap,
		},
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "Number of candidates kept after ranking",
			Value: defaults.TopK,
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser without a window",
			Value: defaults.Headless,
		},
		&cli.DurationFlag{
			Name:  "wait-timeout",
			Usage: "Maximum wait for search results to render",
			Value: defaults.WaitTimeout,
		},
		&cli.DurationFlag{
			Name:  "http-timeout",
			Usage: "Timeout of each image download",
			Value: defaults.HTTPTimeout,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Download attempts per image",
			Value: defaults.MaxAttempts,
		},
		&cli.IntFlag{
			Name:  "rank-concurrency",
			Usage: "Candidates scored at once",
			Value: defaults.RankConcurrency,
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   aiDefaults.EmbeddingHost,
			EnvVars: []string{"IMAGERANK_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "completion-host",
			Usage:   "Chat completion service host URL (judge and vision models)",
			Value:   aiDefaults.CompletionHost,
			EnvVars: []string{"IMAGERANK_COMPLETION_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   aiDefaults.EmbeddingModel,
			EnvVars: []string{"IMAGERANK_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "completion-model",
			Usage:   "Model that judges text relevance",
			Value:   aiDefaults.CompletionModel,
			EnvVars: []string{"IMAGERANK_COMPLETION_MODEL"},
		},
		&cli.StringFlag{
			Name:    "vision-model",
			Usage:   "Model that describes images",
			Value:   aiDefaults.VisionModel,
			EnvVars: []string{"IMAGERANK_VISION_MODEL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API token for the AI services",
			EnvVars: []string{"IMAGERANK_API_KEY", "OPENAI_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "requests-per-minute",
			Usage:   "Cap on completion requests per minute (0 = unlimited)",
			EnvVars: []string{"IMAGERANK_REQUESTS_PER_MINUTE"},
		},
	}
}

// buildConfig maps command flags onto a pipeline configuration.
func buildConfig(c *cli.Context) (*imagerank.Config, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithCompletionHost(c.String("completion-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithCompletionModel(c.String("completion-model")),
		ai.WithVisionModel(c.String("vision-model")),
		ai.WithToken(c.String("api-key")),
		ai.WithRequestsPerMinute(c.Int("requests-per-minute")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	cfg := imagerank.NewConfig(
		imagerank.WithAssetRoot(c.String("assets")),
		imagerank.WithResultCap(c.Int("result-cap")),
		imagerank.WithTopK(c.Int("top-k")),
		imagerank.WithHeadless(c.Bool("headless")),
		imagerank.WithAIConfig(aiConfig),
	)
	cfg.WaitTimeout = c.Duration("wait-timeout")
	cfg.HTTPTimeout = c.Duration("http-timeout")
	cfg.MaxAttempts = c.Int("max-attempts")
	cfg.RankConcurrency = c.Int("rank-concurrency")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPipeline(c *cli.Context) (*imagerank.Pipeline, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := imagerank.NewPipeline(cfg, imagerank.WithProgress(c.App.ErrWriter))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, nil
}

func crawlCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	p, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	candidates, err := p.Crawl(ctx, c.String("query"))
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	printCandidates(c, candidates)
	return nil
}

func rankCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	p, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	kept, err := p.Rank(ctx, c.String("text"))
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}
	printCandidates(c, kept)
	return nil
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	text := c.String("text")
	if strings.TrimSpace(text) == "" {
		text = c.String("query")
	}

	p, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := p.Crawl(ctx, c.String("query")); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	kept, err := p.Rank(ctx, text)
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}
	printCandidates(c, kept)
	return nil
}

func printCandidates(c *cli.Context, candidates []*core.Candidate) {
	w := c.App.Writer
	for i, cand := range candidates {
		score := "-"
		if cand.Ranked() {
			score = fmt.Sprintf("%.4f", cand.Score())
		}
		fmt.Fprintf(w, "%d. %s  score=%s  source=%s\n", i+1, filepath.Base(cand.ImageFile), score, cand.SourceName)
		if cand.GeneratedDescription != "" {
			fmt.Fprintf(w, "   %s\n", cand.GeneratedDescription)
		}
	}
}

func before(c *cli.Context) error {
	if err := loadEnvFile(c); err != nil {
		return err
	}
	return setupLogger(c)
}

// loadEnvFile loads the env file. A missing default file is not an error.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !c.IsSet("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := c.String("log-level")
	if env := os.Getenv(logLevelEnv); env != "" && !c.IsSet("log-level") {
		levelStr = env
	}
	levelStr = strings.ToLower(levelStr)

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
