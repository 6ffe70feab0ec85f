package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

type Kind int

const (
	KindCSS Kind = iota
	KindXPath
	KindKeyed
)

func (k Kind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindXPath:
		return "xpath"
	case KindKeyed:
		return "keyed"
	}
	return "unknown"
}

// Candidate is one strategy for producing a field value. Build them with
// Text, Attr, XPath, XPathAttr or Keyed.
type Candidate struct {
	kind     Kind
	selector string
	attr     string

	keySelector   string
	valueSelector string
	keywords      []string
	exact         bool

	transforms []Transform
	numeric    bool
	joinAll    bool
	sep        string
}

// Text matches the text content of the first element under a CSS selector.
func Text(selector string, t ...Transform) Candidate {
	return Candidate{kind: KindCSS, selector: selector, transforms: t}
}

// Attr matches an attribute of the first element under a CSS selector.
func Attr(selector, attr string, t ...Transform) Candidate {
	return Candidate{kind: KindCSS, selector: selector, attr: attr, transforms: t}
}

// XPath matches the inner text of the first node an XPath expression selects.
func XPath(expr string, t ...Transform) Candidate {
	return Candidate{kind: KindXPath, selector: expr, transforms: t}
}

func XPathAttr(expr, attr string, t ...Transform) Candidate {
	return Candidate{kind: KindXPath, selector: expr, attr: attr, transforms: t}
}

// Keyed walks key/value rows (attribute tables, tiles) and returns the value
// of the first row whose key contains one of keywords. With an empty
// keySelector the whole row text is both key and value.
func Keyed(rowSelector, keySelector, valueSelector string, keywords ...string) Candidate {
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return Candidate{
		kind:          KindKeyed,
		selector:      rowSelector,
		keySelector:   keySelector,
		valueSelector: valueSelector,
		keywords:      lower,
	}
}

// Exact requires the key to equal a keyword instead of containing it.
func (c Candidate) Exact() Candidate {
	c.exact = true
	return c
}

// Number coerces the match to float64. Text without a number is a miss.
func (c Candidate) Number() Candidate {
	c.numeric = true
	return c
}

// All joins every non-empty match with sep instead of taking the first.
func (c Candidate) All(sep string) Candidate {
	c.joinAll = true
	c.sep = sep
	return c
}

// Then appends transforms.
func (c Candidate) Then(t ...Transform) Candidate {
	c.transforms = append(append([]Transform(nil), c.transforms...), t...)
	return c
}

func (c Candidate) Kind() Kind { return c.kind }

// Rule is the ordered candidate list for one field.
type Rule struct {
	Field      string
	Candidates []Candidate
	Required   bool
}

func Field(name string, candidates ...Candidate) Rule {
	return Rule{Field: name, Candidates: candidates}
}

func RequiredField(name string, candidates ...Candidate) Rule {
	return Rule{Field: name, Candidates: candidates, Required: true}
}

// eval returns the candidate's value and whether it hit.
func (c Candidate) eval(p *Page) (any, bool) {
	var raw []string
	switch c.kind {
	case KindCSS:
		raw = c.css(p)
	case KindXPath:
		raw = c.xpath(p)
	case KindKeyed:
		raw = c.keyed(p)
	}

	var hits []string
	for _, r := range raw {
		if v := c.clean(r); v != "" {
			hits = append(hits, v)
			if !c.joinAll {
				break
			}
		}
	}
	if len(hits) == 0 {
		return nil, false
	}

	value := hits[0]
	if c.joinAll {
		value = strings.Join(hits, c.sep)
	}

	if c.numeric {
		n, ok := ParseNumber(value)
		if !ok {
			return nil, false
		}
		return n, true
	}
	return value, true
}

func (c Candidate) clean(s string) string {
	for _, t := range c.transforms {
		s = t(s)
		if strings.TrimSpace(s) == "" {
			return ""
		}
	}
	return Trim(s)
}

func (c Candidate) css(p *Page) []string {
	sel := p.Doc.Find(c.selector)
	if !c.joinAll {
		sel = sel.First()
	}

	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if c.attr != "" {
			if v, ok := s.Attr(c.attr); ok {
				out = append(out, v)
			}
			return
		}
		out = append(out, s.Text())
	})
	return out
}

func (c Candidate) xpath(p *Page) []string {
	if p.Root == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(p.Root, c.selector)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	if !c.joinAll {
		nodes = nodes[:1]
	}

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if c.attr != "" {
			out = append(out, htmlquery.SelectAttr(n, c.attr))
			continue
		}
		out = append(out, nodeText(n))
	}
	return out
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	return htmlquery.InnerText(n)
}

func (c Candidate) keyed(p *Page) []string {
	var out []string
	p.Doc.Find(c.selector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		key := row.Text()
		if c.keySelector != "" {
			key = row.Find(c.keySelector).First().Text()
		}
		if !c.matches(Trim(strings.ToLower(key))) {
			return true
		}

		value := row.Text()
		if c.valueSelector != "" {
			value = row.Find(c.valueSelector).First().Text()
		}
		out = append(out, value)
		return c.joinAll
	})
	return out
}

func (c Candidate) matches(key string) bool {
	if key == "" {
		return false
	}
	for _, k := range c.keywords {
		if c.exact && key == k {
			return true
		}
		if !c.exact && strings.Contains(key, k) {
			return true
		}
	}
	return false
}
