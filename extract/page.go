package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrMalformedPage means the body could not be treated as a document at all.
// Missing elements are not malformed; they just produce nil fields.
var ErrMalformedPage = errors.New("malformed page")

// Page is a parsed HTML document. CSS queries go through Doc, XPath
// queries through Root; both views share the same node tree.
type Page struct {
	URL  string
	Doc  *goquery.Document
	Root *html.Node
	base *url.URL
}

func ParseHTML(pageURL string, body []byte) (*Page, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body from %s", ErrMalformedPage, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	p := &Page{URL: pageURL, Doc: doc}
	if len(doc.Nodes) > 0 {
		p.Root = doc.Nodes[0]
	}
	if u, err := url.Parse(pageURL); err == nil {
		p.base = u
	}
	return p, nil
}

// Has reports whether at least one element matches selector.
func (p *Page) Has(selector string) bool {
	return p.Doc.Find(selector).Length() > 0
}

// Links collects href attributes under selector as absolute URLs,
// de-duplicated with document order preserved.
func (p *Page) Links(selector string) []string {
	var links []string
	seen := make(map[string]bool)

	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs := p.Resolve(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})

	return links
}

// Resolve turns href into an absolute URL relative to the page.
func (p *Page) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if p.base == nil {
		return ref.String()
	}
	abs := p.base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}
