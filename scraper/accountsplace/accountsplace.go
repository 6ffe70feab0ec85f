// Package accountsplace defines the accountsplace.co.ke account listings,
// crawled over plain HTTP or through the headless browser.
package accountsplace

import (
	"listing-scraper/extract"
	"listing-scraper/scraper"
)

const (
	StartURL = "https://accountsplace.co.ke/?page=1"

	linkSelector = "h3.add-title a"
	detailMarker = "div.slider-left h1"
)

// panel selects the nth value of the details sidebar.
func panel(n string) string {
	return "aside.panel-details ul li:nth-child(" + n + ") p"
}

// Rules extracts one account page.
func Rules() []extract.Rule {
	return []extract.Rule{
		extract.Field("url"),
		extract.Field("description",
			extract.Text(detailMarker, extract.After(":")),
			extract.Text(detailMarker),
		),
		extract.Field("price", extract.Text(panel("1")).Number()),
		extract.Field("level", extract.Text(panel("2"))),
		extract.Field("category", extract.Text(panel("3"))),
		extract.Field("rating", extract.Text(panel("4"))),
		extract.Field("seller", extract.Text("span.name a")),
	}
}

// Site is the plain HTTP crawl.
func Site() scraper.Site {
	rules := Rules()
	return scraper.Site{
		Name:        "accounts",
		Description: "accountsplace.co.ke accounts over HTTP",
		StartURL:    StartURL,
		ListMode:    scraper.ModeHTTP,
		DetailMode:  scraper.ModeHTTP,
		List: scraper.ListSpec{
			Format:       scraper.ListHTML,
			LinkSelector: linkSelector,
		},
		Detail: &scraper.DetailSpec{
			Marker:   detailMarker,
			Rules:    rules,
			URLField: "url",
		},
		Columns: extract.Columns(rules),
	}
}

// BrowserSite renders list and detail pages, for when the site serves its
// listings from script.
func BrowserSite() scraper.Site {
	s := Site()
	s.Name = "accounts-browser"
	s.Description = "accountsplace.co.ke accounts rendered in headless Chrome"
	s.ListMode = scraper.ModeBrowser
	s.DetailMode = scraper.ModeBrowser
	s.List.Marker = linkSelector
	return s
}

func Sites() []scraper.Site {
	return []scraper.Site{Site(), BrowserSite()}
}
