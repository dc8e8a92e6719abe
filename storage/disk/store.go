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


package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/storage"
)

// Store is a filesystem-backed storage.AssetStore.
type Store struct {
	imageDir     string
	metadataPath string
	mu           sync.Mutex
	logger       *slog.Logger
}

var _ storage.AssetStore = (*Store)(nil)

// newStore is an internal constructor that returns the concrete type.
func newStore(imageDir, metadataPath string, logger *slog.Logger) (*Store, error) {
	if imageDir == "" {
		return nil, fmt.Errorf("%w: image directory is required", storage.ErrInvalidPath)
	}
	if metadataPath == "" {
		return nil, fmt.Errorf("%w: metadata path is required", storage.ErrInvalidPath)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		imageDir:     imageDir,
		metadataPath: metadataPath,
		logger:       logger.With("component", "asset-store"),
	}, nil
}

// NewStore creates a store rooted at imageDir with the metadata document at metadataPath.
// Nothing is created on disk until the first write.
//
// Returns storage.AssetStore interface to enforce abstraction.
func NewStore(imageDir, metadataPath string, logger *slog.Logger) (storage.AssetStore, error) {
	return newStore(imageDir, metadataPath, logger)
}

// ImageDir returns the image directory.
func (s *Store) ImageDir() string {
	return s.imageDir
}

// MetadataPath returns the metadata document path.
func (s *Store) MetadataPath() string {
	return s.metadataPath
}

// ImageStem returns the extensionless destination for the given ordinal.
func (s *Store) ImageStem(index int) string {
	return filepath.Join(s.imageDir, core.ImageStemName(index))
}

// ResetImageDirectory removes all reserved-name files from the image directory.
func (s *Store) ResetImageDirectory(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.imageDir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("creating image directory", "dir", s.imageDir)
		return os.MkdirAll(s.imageDir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("failed to read image directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !core.IsReservedName(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.imageDir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	s.logger.Info("cleared previous images", "dir", s.imageDir, "removed", removed)
	return nil
}

// WriteMetadata writes the candidates to a temporary file next to the document
// and renames it into place.
func (s *Store) WriteMetadata(ctx context.Context, candidates []*core.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if candidates == nil {
		candidates = []*core.Candidate{}
	}
	data, err := json.MarshalIndent(candidates, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.metadataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.metadataPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary metadata file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metadata: %w", err)
	}
	if err := os.Rename(tmpName, s.metadataPath); err != nil {
		return fmt.Errorf("failed to replace metadata document: %w", err)
	}

	s.logger.Debug("wrote metadata", "path", s.metadataPath, "candidates", len(candidates))
	return nil
}

// ReadMetadata loads and validates the metadata document.
func (s *Store) ReadMetadata(ctx context.Context) ([]*core.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	data, err := os.ReadFile(s.metadataPath)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptMetadata, err)
	}

	var candidates []*core.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptMetadata, err)
	}
	// "[]" decodes to an empty slice; only a top-level null leaves it nil.
	if candidates == nil {
		return nil, fmt.Errorf("%w: document is not an array", core.ErrCorruptMetadata)
	}
	for i, c := range candidates {
		if err := core.ValidateCandidate(c); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", core.ErrCorruptMetadata, i, err)
		}
	}
	return candidates, nil
}

// DeleteImage removes the named image from the image directory.
func (s *Store) DeleteImage(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(path)
	target := filepath.Join(s.imageDir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(target)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("image already removed", "file", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	s.logger.Info("removed image", "file", name)
	return nil
}
