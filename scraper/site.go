package scraper

import (
	"listing-scraper/extract"
	"listing-scraper/models"
)

// Mode selects how a page is loaded.
type Mode int

const (
	// ModeHTTP fetches raw HTML over plain HTTP.
	ModeHTTP Mode = iota
	// ModeAPI calls a JSON endpoint.
	ModeAPI
	// ModeBrowser renders the page in the crawl's headless browser.
	ModeBrowser
)

func (m Mode) String() string {
	switch m {
	case ModeHTTP:
		return "http"
	case ModeAPI:
		return "api"
	case ModeBrowser:
		return "browser"
	}
	return "unknown"
}

type ListFormat int

const (
	ListHTML ListFormat = iota
	ListJSON
)

// JSONPage is what a site's decoder makes of one JSON list response.
type JSONPage struct {
	Items []models.ListItem
	// NextURL is the server-supplied next page, empty when there is none.
	NextURL string
	// TotalPages is the server-reported page count, 0 when unknown.
	TotalPages int
}

// ListSpec describes a site's list pages.
type ListSpec struct {
	Format ListFormat
	// Marker must be present for an HTML list page to count as loaded.
	// Defaults to LinkSelector.
	Marker       string
	LinkSelector string
	// PageParam is the query parameter holding the page number. Defaults to "page".
	PageParam string
	Scrolls   int
	// Decode turns a JSON list body into items. Required for ListJSON.
	Decode func(body []byte) (JSONPage, error)
	// NextWithinTotal follows NextURL only while the current page is below
	// TotalPages.
	NextWithinTotal bool
}

func (l ListSpec) marker() string {
	if l.Marker != "" {
		return l.Marker
	}
	return l.LinkSelector
}

func (l ListSpec) pageParam() string {
	if l.PageParam != "" {
		return l.PageParam
	}
	return "page"
}

// DetailSpec describes a site's detail pages. Rules flagged Required
// trigger whole-page re-fetches while they stay nil.
type DetailSpec struct {
	Marker   string
	Scrolls  int
	Rules    []extract.Rule
	Attempts int
	// URLField is the record column that carries the detail URL.
	URLField string
}

// Site is the full static configuration of one spider.
type Site struct {
	Name        string
	Description string
	StartURL    string
	ListMode    Mode
	DetailMode  Mode
	List        ListSpec
	// Detail is nil for list-only sites whose list payload already holds
	// every field.
	Detail *DetailSpec
	// Columns fixes the output column order.
	Columns []string
	// URLField names the column holding the record URL for list-only sites.
	URLField string
}

func (s Site) urlField() string {
	if s.Detail != nil && s.Detail.URLField != "" {
		return s.Detail.URLField
	}
	if s.URLField != "" {
		return s.URLField
	}
	return "url"
}

// UsesBrowser reports whether any page of this site is rendered.
func (s Site) UsesBrowser() bool {
	return s.ListMode == ModeBrowser || (s.Detail != nil && s.DetailMode == ModeBrowser)
}
