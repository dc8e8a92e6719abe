package ranking

import "errors"

var (
	// ErrStoreRequired is returned when an asset store is not provided.
	ErrStoreRequired = errors.New("asset store required")

	// ErrDescriberRequired is returned when an image describer is not provided.
	ErrDescriberRequired = errors.New("image describer required")

	// ErrScorerRequired is returned when a similarity scorer is not provided.
	ErrScorerRequired = errors.New("similarity scorer required")

	// ErrInvalidTopK is returned when the retained count is not positive.
	ErrInvalidTopK = errors.New("top-k must be positive")
)
