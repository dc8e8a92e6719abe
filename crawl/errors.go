package crawl

import "errors"

var (
	// ErrLauncherRequired is returned when a browser launcher is not provided.
	ErrLauncherRequired = errors.New("browser launcher required")

	// ErrFetcherRequired is returned when an image fetcher is not provided.
	ErrFetcherRequired = errors.New("image fetcher required")

	// ErrStoreRequired is returned when an asset store is not provided.
	ErrStoreRequired = errors.New("asset store required")

	// ErrEmptyQuery is returned when the search query is blank.
	ErrEmptyQuery = errors.New("search query cannot be empty")

	// errPreviewMissing indicates the full-size preview never appeared for a result.
	errPreviewMissing = errors.New("preview image not found")

	// errNoImageSource indicates the preview image carried no src attribute.
	errNoImageSource = errors.New("preview image has no source")
)
