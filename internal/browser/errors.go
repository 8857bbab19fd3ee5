package browser

import "errors"

var (
	// ErrNavigationTimeout means a page operation outlived its timeout. It is
	// a per-task failure, never a reason to stop the run.
	ErrNavigationTimeout = errors.New("navigation timeout")

	ErrElementNotFound = errors.New("element not found")
)
