package scrape

import "errors"

var (
	// ErrNoMatch is returned when a single-select path matches nothing.
	ErrNoMatch = errors.New("no element matched the selector")
	// ErrUnsupportedContent is returned when a path-based selector runs
	// against content that has no element tree, such as JSON.
	ErrUnsupportedContent = errors.New("content does not support element selection")
	// ErrNoContent is returned when scraping before content has loaded.
	ErrNoContent = errors.New("no content has been loaded")
)
