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


package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/imagerank/ai"
	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/storage"
)

// DefaultTopK is the number of candidates kept after ranking.
const DefaultTopK = 5

// Scorer computes the relevance of a candidate description to the original text.
type Scorer interface {
	FusedSimilarity(ctx context.Context, original, description string) (float64, error)
}

// Ranker scores stored candidates against a text and keeps the best ones.
type Ranker struct {
	store     storage.AssetStore
	describer ai.Describer
	scorer    Scorer
	pool      *ants.Pool
	topK      int
	progress  io.Writer
	logger    *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker) error

// WithTopK sets how many candidates survive ranking.
func WithTopK(k int) Option {
	return func(r *Ranker) error {
		if k < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidTopK, k)
		}
		r.topK = k
		return nil
	}
}

// WithConcurrency sets how many candidates are described and scored at once.
// Default is 1, which keeps calls to the AI services strictly sequential.
func WithConcurrency(size int) Option {
	return func(r *Ranker) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if r.pool != nil {
			r.pool.Release()
		}
		r.pool = pool
		return nil
	}
}

// WithProgress reports scoring progress to w.
func WithProgress(w io.Writer) Option {
	return func(r *Ranker) error {
		r.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRanker creates a ranker. Call Release when done.
func NewRanker(store storage.AssetStore, describer ai.Describer, scorer Scorer, opts ...Option) (*Ranker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if describer == nil {
		return nil, ErrDescriberRequired
	}
	if scorer == nil {
		return nil, ErrScorerRequired
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	r := &Ranker{
		store:     store,
		describer: describer,
		scorer:    scorer,
		pool:      pool,
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.Release()
			return nil, optErr
		}
	}
	r.logger = r.logger.With("component", "ranker")
	return r, nil
}

// Release frees the worker pool.
func (r *Ranker) Release() {
	if r.pool != nil {
		r.pool.Release()
		r.pool = nil
	}
}

// Rank reads the stored candidates, ranks them against text and persists the survivors.
func (r *Ranker) Rank(ctx context.Context, text string) ([]*core.Candidate, error) {
	candidates, err := r.store.ReadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return r.RankCandidates(ctx, candidates, text)
}

// RankCandidates describes and scores each candidate, orders them by
// descending score with ties kept in crawl order, and keeps the top K.
//
// The survivors replace the metadata document, then discarded candidates
// whose files carry reserved names are deleted. Candidates are updated in place.
// A canceled context aborts before anything is deleted or written.
func (r *Ranker) RankCandidates(ctx context.Context, candidates []*core.Candidate, text string) ([]*core.Candidate, error) {
	var tracker *ProgressTracker
	if r.progress != nil {
		tracker = NewProgressTracker(r.progress, len(candidates))
		tracker.Start()
	}

	var wg sync.WaitGroup
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			r.scoreCandidate(ctx, candidate, text)
			if tracker != nil {
				tracker.Increment(1)
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("failed to schedule candidate: %w", err)
		}
	}
	wg.Wait()
	if tracker != nil {
		tracker.Finish()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := slices.DeleteFunc(slices.Clone(candidates), func(c *core.Candidate) bool { return c == nil })
	slices.SortStableFunc(ranked, func(a, b *core.Candidate) int {
		switch {
		case a.Score() > b.Score():
			return -1
		case a.Score() < b.Score():
			return 1
		}
		return 0
	})

	keep := min(r.topK, len(ranked))
	kept, discarded := ranked[:keep], ranked[keep:]

	// Files are removed only once the document no longer lists them.
	if err := r.store.WriteMetadata(ctx, kept); err != nil {
		return nil, err
	}

	if err := r.discard(ctx, discarded); err != nil {
		r.logger.Warn("some discarded images could not be removed", "err", err)
	}

	r.logger.Info("ranking finished", "scored", len(ranked), "kept", len(kept), "discarded", len(discarded))
	return kept, nil
}

// scoreCandidate fills in the generated description and the similarity score.
// Neither step fails the candidate: a missing description scores as empty text
// and a scoring failure scores 0.
func (r *Ranker) scoreCandidate(ctx context.Context, candidate *core.Candidate, text string) {
	description, err := r.describer.DescribeImage(ctx, candidate.ImageFile)
	if err != nil {
		r.logger.Warn("could not describe image", "file", candidate.ImageFile, "err", err)
		description = ""
	}
	candidate.GeneratedDescription = description

	score, err := r.scorer.FusedSimilarity(ctx, text, description)
	switch {
	case err != nil:
		r.logger.Warn("could not score candidate", "file", candidate.ImageFile, "err", err)
		score = 0
	case math.IsNaN(score) || math.IsInf(score, 0):
		r.logger.Warn("discarding non-finite score", "file", candidate.ImageFile, "score", score)
		score = 0
	}
	candidate.SetScore(score)
	r.logger.Debug("candidate scored", "file", candidate.ImageFile, "score", score)
}

// discard deletes the files of dropped candidates that the pipeline owns.
func (r *Ranker) discard(ctx context.Context, discarded []*core.Candidate) error {
	var errs []error
	for _, c := range discarded {
		name := filepath.Base(c.ImageFile)
		if !core.IsReservedName(name) {
			r.logger.Debug("keeping file with foreign name", "file", c.ImageFile)
			continue
		}
		if err := r.store.DeleteImage(ctx, c.ImageFile); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		r.logger.Info("removed unused image", "file", name)
	}
	return errors.Join(errs...)
}
