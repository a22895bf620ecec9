package origin

import "errors"

var (
	// ErrNoPlayableStream is returned when a URL resolves to neither video nor audio.
	ErrNoPlayableStream = errors.New("no playable stream")

	// ErrNoSource is returned when a URL resolves but has nothing to fetch.
	ErrNoSource = errors.New("no source url")

	// ErrResolveFailed wraps resolver failures.
	ErrResolveFailed = errors.New("resolve failed")

	// ErrFetchFailed wraps download and publish failures.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrQueueFull is returned when an acquisition request cannot be queued.
	ErrQueueFull = errors.New("acquisition queue full")

	errNoOutput = errors.New("no output written")
)
