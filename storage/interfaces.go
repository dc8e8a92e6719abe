package storage

import (
	"context"

	"github.com/poiesic/imagerank/core"
)

// AssetStore manages the candidate image directory and the metadata document.
type AssetStore interface {
	// ResetImageDirectory deletes every reserved-name file in the image directory,
	// creating the directory if it does not exist. Other files are untouched.
	ResetImageDirectory(ctx context.Context) error

	// WriteMetadata replaces the metadata document with the given ordered candidates.
	// Readers never observe a partially written document.
	WriteMetadata(ctx context.Context, candidates []*core.Candidate) error

	// ReadMetadata returns the persisted candidates in document order.
	// Returns core.ErrCorruptMetadata if the document is missing or malformed.
	ReadMetadata(ctx context.Context) ([]*core.Candidate, error)

	// DeleteImage removes a stored image. The base name of path is resolved
	// inside the image directory. A missing file is logged, not returned.
	DeleteImage(ctx context.Context, path string) error

	// ImageStem returns the extensionless destination path for the given ordinal.
	ImageStem(index int) string

	// ImageDir returns the image directory.
	ImageDir() string

	// MetadataPath returns the location of the metadata document.
	MetadataPath() string
}
