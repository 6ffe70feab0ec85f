package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"

	"listing-scraper/extract"
)

var (
	// ErrMarkerMissing means the page loaded but the ready marker never showed.
	ErrMarkerMissing = errors.New("marker element not found")
	// ErrRenderTimeout means navigation did not finish within the timeout.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrRender covers other browser navigation failures.
	ErrRender = errors.New("render failed")
	// ErrBrowserCrashed means the browser process went away mid-fetch.
	ErrBrowserCrashed = errors.New("browser session crashed")
	// ErrBrowserClosed is returned by fetches after Close.
	ErrBrowserClosed = errors.New("browser session closed")
)

// StatusError is a response with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Class groups errors by how they are retried.
type Class int

const (
	// Fatal errors are not retried: malformed pages, non-retryable statuses.
	Fatal Class = iota
	// Transient errors use the regular retry ceiling: retryable statuses,
	// timeouts, dropped connections.
	Transient
	// Render errors come from the browser and use the lower render ceiling.
	Render
	// Structural errors mean the page is there but incomplete. The detail
	// fetcher handles them with whole-page attempts.
	Structural
)

func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case Transient:
		return "transient"
	case Render:
		return "render"
	case Structural:
		return "structural"
	}
	return "unknown"
}

// Classify maps err to a retry class. retryable lists the HTTP statuses
// that count as transient.
func Classify(err error, retryable []int) Class {
	if err == nil {
		return Fatal
	}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		if slices.Contains(retryable, statusErr.StatusCode) {
			return Transient
		}
		return Fatal
	case errors.Is(err, ErrMarkerMissing):
		return Structural
	case errors.Is(err, ErrRenderTimeout), errors.Is(err, ErrRender), errors.Is(err, ErrBrowserCrashed):
		return Render
	case errors.Is(err, ErrBrowserClosed), errors.Is(err, extract.ErrMalformedPage):
		return Fatal
	case errors.Is(err, context.Canceled):
		return Fatal
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Fatal
}
