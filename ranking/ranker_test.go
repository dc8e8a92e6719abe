package ranking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/imagerank/ai/mock"
	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/similarity"
	"github.com/poiesic/imagerank/storage"
	"github.com/poiesic/imagerank/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scoreByDescription scores a description from a lookup table.
type scoreByDescription struct {
	mu     sync.Mutex
	scores map[string]float64
	errs   map[string]error
	seen   []string
}

func (s *scoreByDescription) FusedSimilarity(ctx context.Context, original, description string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, description)
	if err := s.errs[description]; err != nil {
		return 0, err
	}
	return s.scores[description], nil
}

func setupTestStore(t *testing.T) storage.AssetStore {
	root := t.TempDir()
	store, err := disk.NewStore(filepath.Join(root, "images"), filepath.Join(root, "images.json"), nil)
	require.NoError(t, err)
	require.NoError(t, store.ResetImageDirectory(context.Background()))
	return store
}

// seedCandidates writes n image files and a metadata document describing them.
func seedCandidates(t *testing.T, store storage.AssetStore, n int) []*core.Candidate {
	candidates := make([]*core.Candidate, n)
	for i := range candidates {
		path := filepath.Join(store.ImageDir(), core.ImageFileName(i+1))
		require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))
		candidates[i] = &core.Candidate{
			Index:       i + 1,
			Description: fmt.Sprintf("result %d", i+1),
			SourceURL:   core.SourceUnavailable,
			ImageFile:   path,
		}
	}
	require.NoError(t, store.WriteMetadata(context.Background(), candidates))
	return candidates
}

// describeByStem is the default mock describer output for image_<i>.jpg.
func describeByStem(i int) string {
	return "image of " + core.ImageStemName(i)
}

func TestNewRanker_RequiresDependencies(t *testing.T) {
	store := setupTestStore(t)
	describer := mock.NewMockDescriber()
	scorer := &scoreByDescription{}

	_, err := NewRanker(nil, describer, scorer)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = NewRanker(store, nil, scorer)
	assert.ErrorIs(t, err, ErrDescriberRequired)
	_, err = NewRanker(store, describer, nil)
	assert.ErrorIs(t, err, ErrScorerRequired)
	_, err = NewRanker(store, describer, scorer, WithTopK(0))
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRank_KeepsTopK(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 7)

	scorer := &scoreByDescription{scores: map[string]float64{
		describeByStem(1): 0.10,
		describeByStem(2): 0.90,
		describeByStem(3): 0.50,
		describeByStem(4): 0.70,
		describeByStem(5): 0.20,
		describeByStem(6): 0.80,
		describeByStem(7): 0.60,
	}}
	describer := mock.NewMockDescriber()

	r, err := NewRanker(store, describer, scorer)
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "Broken Collarbone")
	require.NoError(t, err)
	require.Len(t, kept, DefaultTopK)
	assert.Equal(t, 7, describer.CallCount())

	order := make([]int, len(kept))
	for i, c := range kept {
		order[i] = c.Index
		assert.True(t, c.Ranked())
		assert.Equal(t, describeByStem(c.Index), c.GeneratedDescription)
	}
	assert.Equal(t, []int{2, 6, 4, 7, 3}, order)

	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(1)))
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(5)))
	for _, c := range kept {
		assert.FileExists(t, c.ImageFile)
	}

	persisted, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kept, persisted)
}

func TestRank_TiesKeepCrawlOrder(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 7)

	r, err := NewRanker(store, mock.NewMockDescriber(), &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, kept, 5)
	for i, c := range kept {
		assert.Equal(t, i+1, c.Index)
	}
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(6)))
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(7)))
}

func TestRank_DescriptionFailureDegradesScore(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 2)

	describer := mock.NewMockDescriber()
	describer.DescribeImageFunc = func(ctx context.Context, path string) (string, error) {
		if strings.HasSuffix(path, core.ImageFileName(1)) {
			return "", errors.New("vision model unavailable")
		}
		return "x-ray", nil
	}
	scorer := &scoreByDescription{scores: map[string]float64{"": 0.15, "x-ray": 0.4}}

	r, err := NewRanker(store, describer, scorer)
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, kept, 2)

	assert.Equal(t, 2, kept[0].Index)
	assert.Equal(t, 1, kept[1].Index)
	assert.Empty(t, kept[1].GeneratedDescription)
	assert.InDelta(t, 0.15, kept[1].Score(), 1e-9)
	assert.Contains(t, scorer.seen, "")
}

func TestRank_ScoringFailureScoresZero(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 3)

	scorer := &scoreByDescription{
		scores: map[string]float64{describeByStem(1): 0.5, describeByStem(3): 0.3},
		errs:   map[string]error{describeByStem(2): errors.New("embedding service down")},
	}
	r, err := NewRanker(store, mock.NewMockDescriber(), scorer, WithTopK(2))
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, kept[0].Index)
	assert.Equal(t, 3, kept[1].Index)
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(2)))
}

func TestRank_NonFiniteScoreScoresZero(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 7)

	scorer := &scoreByDescription{scores: map[string]float64{
		describeByStem(1): math.NaN(),
		describeByStem(2): 0.9,
		describeByStem(3): math.Inf(1),
		describeByStem(4): 0.7,
		describeByStem(5): 0.6,
		describeByStem(6): 0.5,
		describeByStem(7): 0.4,
	}}
	r, err := NewRanker(store, mock.NewMockDescriber(), scorer)
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)

	order := make([]int, len(kept))
	for i, c := range kept {
		order[i] = c.Index
	}
	assert.Equal(t, []int{2, 4, 5, 6, 7}, order)
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(1)))
	assert.NoFileExists(t, filepath.Join(store.ImageDir(), core.ImageFileName(3)))

	persisted, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kept, persisted)
}

func TestRank_NaNEmbeddingKeepsDocumentInSync(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 7)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(math.NaN()), 0}, nil
	}
	scorer, err := similarity.NewScorer(embedder, mock.NewMockCompleter())
	require.NoError(t, err)

	r, err := NewRanker(store, mock.NewMockDescriber(), scorer)
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, kept, DefaultTopK)
	for _, c := range kept {
		assert.Zero(t, c.Score())
		assert.FileExists(t, c.ImageFile)
	}

	persisted, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Len(t, persisted, DefaultTopK)
	entries, err := os.ReadDir(store.ImageDir())
	require.NoError(t, err)
	assert.Len(t, entries, DefaultTopK)
}

// failingWriteStore rejects every metadata write.
type failingWriteStore struct {
	storage.AssetStore
}

func (s failingWriteStore) WriteMetadata(ctx context.Context, candidates []*core.Candidate) error {
	return errors.New("disk full")
}

func TestRank_FailedPersistDeletesNothing(t *testing.T) {
	store := setupTestStore(t)
	candidates := seedCandidates(t, store, 7)

	r, err := NewRanker(failingWriteStore{store}, mock.NewMockDescriber(), &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	_, err = r.Rank(context.Background(), "query")
	require.Error(t, err)
	for _, c := range candidates {
		assert.FileExists(t, c.ImageFile)
	}
}

func TestRank_ForeignFilesAreNotDeleted(t *testing.T) {
	store := setupTestStore(t)
	candidates := seedCandidates(t, store, 2)

	foreign := filepath.Join(store.ImageDir(), "reference.jpg")
	require.NoError(t, os.WriteFile(foreign, []byte("mine"), 0o644))
	candidates[1].ImageFile = foreign

	r, err := NewRanker(store, mock.NewMockDescriber(), &scoreByDescription{
		scores: map[string]float64{describeByStem(1): 0.9},
	}, WithTopK(1))
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.RankCandidates(context.Background(), candidates, "query")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.FileExists(t, foreign)
}

func TestRank_FewerThanTopK(t *testing.T) {
	store := setupTestStore(t)
	candidates := seedCandidates(t, store, 3)

	r, err := NewRanker(store, mock.NewMockDescriber(), &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	for _, c := range candidates {
		assert.FileExists(t, c.ImageFile)
	}
}

func TestRank_EmptyDocument(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.WriteMetadata(context.Background(), nil))

	r, err := NewRanker(store, mock.NewMockDescriber(), &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestRank_CorruptMetadata(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, os.WriteFile(store.MetadataPath(), []byte("{not json"), 0o644))

	r, err := NewRanker(store, mock.NewMockDescriber(), &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	_, err = r.Rank(context.Background(), "query")
	assert.ErrorIs(t, err, core.ErrCorruptMetadata)
}

func TestRank_CanceledContextPersistsNothing(t *testing.T) {
	store := setupTestStore(t)
	candidates := seedCandidates(t, store, 7)

	ctx, cancel := context.WithCancel(context.Background())
	describer := mock.NewMockDescriber()
	describer.DescribeImageFunc = func(ctx context.Context, path string) (string, error) {
		cancel()
		return "", ctx.Err()
	}

	r, err := NewRanker(store, describer, &scoreByDescription{})
	require.NoError(t, err)
	defer r.Release()

	_, err = r.RankCandidates(ctx, candidates, "query")
	require.ErrorIs(t, err, context.Canceled)

	for _, c := range candidates {
		assert.FileExists(t, c.ImageFile)
	}
	persisted, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Len(t, persisted, 7)
	for _, c := range persisted {
		assert.False(t, c.Ranked())
	}
}

func TestRank_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	seedCandidates(t, store, 7)

	var progress bytes.Buffer
	describer := mock.NewMockDescriber()
	r, err := NewRanker(store, describer, &scoreByDescription{},
		WithConcurrency(3), WithProgress(&progress))
	require.NoError(t, err)
	defer r.Release()

	kept, err := r.Rank(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, kept, 5)
	assert.Equal(t, 7, describer.CallCount())
	assert.Contains(t, progress.String(), "7/7")
}
