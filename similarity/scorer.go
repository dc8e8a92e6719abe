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


package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/poiesic/imagerank/ai"
	"github.com/poiesic/imagerank/core"
)

// Fusion policy. The constants are fixed for score compatibility across runs.
const (
	EmbeddingBias   = 0.1
	JudgedBias      = 0.2
	EmbeddingWeight = 0.4
	JudgedWeight    = 0.6
	Steepness       = 5.0
	Midpoint        = 0.5

	// NeutralJudgment is used when the judge's reply cannot be interpreted.
	NeutralJudgment = 0.5
)

const judgePromptTemplate = `Rate how closely the two texts below describe the same subject, regardless of language or wording.
Respond with a single number between 0 and 1, where 0 means unrelated and 1 means equivalent.
Output only the number.

Text A: %s
Text B: %s`

// Scorer computes relevance between an original text and a candidate description.
// It is safe for concurrent use if its embedder and completer are.
//
// The embedding of the most recent original text is kept, so scoring N
// descriptions against one text costs N+1 embedding calls.
type Scorer struct {
	embedder  ai.Embedder
	completer ai.Completer
	logger    *slog.Logger

	mu           sync.Mutex
	refText      string
	refEmbedding []float32
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewScorer creates a scorer backed by the given embedding and completion services.
func NewScorer(embedder ai.Embedder, completer ai.Completer, opts ...Option) (*Scorer, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	s := &Scorer{
		embedder:  embedder,
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "similarity-scorer")
	return s, nil
}

// EmbeddingSimilarity returns the cosine similarity of the embeddings of a and b.
// a is treated as the reference text and its embedding is reused across calls.
// If either text is blank the result is 0 and the embedder is not called.
func (s *Scorer) EmbeddingSimilarity(ctx context.Context, a, b string) (float64, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, nil
	}

	ref, err := s.reference(ctx, a)
	if err != nil {
		return 0, err
	}
	vector, err := s.embedder.EmbedText(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("failed to embed description: %w", err)
	}
	return CosineSimilarity(ref, vector)
}

// reference returns the embedding of text, embedding it only when text
// differs from the last reference. Failures are not cached.
func (s *Scorer) reference(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refEmbedding != nil && s.refText == text {
		return s.refEmbedding, nil
	}
	vector, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed reference text: %w", err)
	}
	s.refText, s.refEmbedding = text, vector
	return vector, nil
}

// JudgedSimilarity asks the completion service to rate a against b in [0,1].
// It never fails: an unusable reply or a service error yields NeutralJudgment.
// If either text is blank the result is 0 and the service is not called.
func (s *Scorer) JudgedSimilarity(ctx context.Context, a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}

	reply, err := s.completer.Complete(ctx, fmt.Sprintf(judgePromptTemplate, a, b))
	if err != nil {
		s.logger.Warn("judge request failed, using neutral score", "err", err)
		return NeutralJudgment
	}

	score, err := parseJudgment(reply)
	if err != nil {
		s.logger.Warn("could not parse judge reply, using neutral score", "err", err)
		return NeutralJudgment
	}
	return score
}

// FusedSimilarity combines the embedding and judged similarities of a and b.
// Only an embedding failure is returned as an error.
func (s *Scorer) FusedSimilarity(ctx context.Context, a, b string) (float64, error) {
	embedding, err := s.EmbeddingSimilarity(ctx, a, b)
	if err != nil {
		return 0, err
	}
	judged := s.JudgedSimilarity(ctx, a, b)

	fused := Fuse(embedding, judged)
	if math.IsNaN(fused) || math.IsInf(fused, 0) {
		return 0, fmt.Errorf("%w: embedding=%v judged=%v", ErrNonFinite, embedding, judged)
	}
	s.logger.Debug("fused similarity", "embedding", embedding, "judged", judged, "fused", fused)
	return fused, nil
}

// Fuse maps an embedding similarity and a judged similarity into (0,1):
//
//	raw = 0.4*(embedding+0.1) + 0.6*(judged+0.2)
//	fused = 1 / (1 + exp(-5*(raw-0.5)))
func Fuse(embedding, judged float64) float64 {
	raw := EmbeddingWeight*(embedding+EmbeddingBias) + JudgedWeight*(judged+JudgedBias)
	return 1 / (1 + math.Exp(-Steepness*(raw-Midpoint)))
}

// parseJudgment reads a bare floating-point reply and clamps it to [0,1].
func parseJudgment(reply string) (float64, error) {
	text := strings.TrimSpace(reply)
	text = strings.Trim(text, "`")
	text = strings.TrimSpace(text)

	score, err := strconv.ParseFloat(text, 64)
	if errors.Is(err, strconv.ErrRange) {
		// Out of range replies come back as +-Inf or +-0 and are clamped below.
		err = nil
	}
	if err != nil || math.IsNaN(score) {
		return 0, fmt.Errorf("%w: %q", core.ErrJudgmentParse, truncate(reply, 64))
	}
	return math.Max(0, math.Min(1, score)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
