package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailHTML = `<html><body>
<div class="slider-left"><h1>Account : Gold tier gaming account</h1></div>
<aside class="panel-details"><ul>
  <li><p>KSh 12,500</p></li>
  <li><p> Level 40 </p></li>
  <li><p>Gaming</p></li>
  <li><p>4.5</p></li>
</ul></aside>
<span class="name"><a href="/u/jane">Jane</a></span>
<div class="b-advert-attributes--tiles">
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Estate Name</div><div class="b-advert-attribute__value">Kilimani Heights</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Condition</div><div class="b-advert-attribute__value">Newly Built</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Bathrooms</div><div class="b-advert-attribute__value">3 bathrooms</div></div>
</div>
<div class="b-advert__description-wrapper">
  <span class="qa-description-text">Spacious unit.</span>
  <span class="qa-description-text">  </span>
  <span class="qa-description-text">Near the mall.</span>
</div>
<a class="item" href="/ads/1">one</a>
<a class="item" href="https://example.com/ads/2#photos">two</a>
<a class="item" href="/ads/1">dup</a>
<a class="item" href="#top">anchor</a>
</body></html>`

func mustParse(t *testing.T) *Page {
	t.Helper()
	p, err := ParseHTML("https://example.com/list?page=1", []byte(detailHTML))
	require.NoError(t, err)
	return p
}

func TestExtract_FirstCandidateWins(t *testing.T) {
	p := mustParse(t)

	rec := Extract(p, []Rule{
		Field("description",
			Text("div.slider-left h1", After(":")),
			Text("div.slider-left h1"),
		),
		Field("price", Text("aside.panel-details ul li:nth-child(1) p").Number()),
		Field("level", Text("aside.panel-details ul li:nth-child(2) p")),
		Field("seller", Text("span.name a")),
		Field("seller_href", Attr("span.name a", "href")),
	})

	assert.Equal(t, "Gold tier gaming account", rec["description"])
	assert.Equal(t, 12500.0, rec["price"])
	assert.Equal(t, "Level 40", rec["level"])
	assert.Equal(t, "Jane", rec["seller"])
	assert.Equal(t, "/u/jane", rec["seller_href"])
}

func TestExtract_FallsBackWhenEarlierCandidatesMiss(t *testing.T) {
	p := mustParse(t)

	rec := Extract(p, []Rule{
		Field("title",
			Text("div.missing"),
			Text("div.slider-left h1", After("|")),
			XPath(`//div[contains(@class,"slider-left")]/h1`),
		),
	})

	assert.Equal(t, "Account : Gold tier gaming account", rec["title"])
}

func TestExtract_AbsentSelectorsYieldNil(t *testing.T) {
	p := mustParse(t)
	rules := []Rule{
		Field("a", Text("div.nope")),
		Field("b", Attr("a.nope", "href")),
		Field("c", XPath(`//section[@id="nope"]/text()`)),
		Field("d", Keyed("div.nope", "div.k", "div.v", "estate")),
		Field("e", Text("span.name a").Number()),
		Field("f", XPath(`//div[`)),
		Field("g"),
	}

	var rec map[string]any
	require.NotPanics(t, func() { rec = Extract(p, rules) })

	require.Len(t, rec, len(rules))
	for _, r := range rules {
		v, ok := rec[r.Field]
		assert.True(t, ok, "field %s must be present", r.Field)
		assert.Nil(t, v, "field %s should be nil", r.Field)
	}
}

func TestExtract_Keyed(t *testing.T) {
	p := mustParse(t)
	tiles := "div.b-advert-attributes--tiles div.b-advert-attribute"
	key, val := "div.b-advert-attribute__key", "div.b-advert-attribute__value"

	rec := Extract(p, []Rule{
		Field("estate_name", Keyed(tiles, key, val, "estate name").Exact()),
		Field("condition", Keyed(tiles, key, val, "condition", "built", "status")),
		Field("toilets",
			Keyed(tiles, key, val, "toilet").Then(FirstWord),
			Keyed(tiles, key, val, "bathroom").Then(FirstWord),
		),
		Field("estate_partial", Keyed(tiles, key, val, "estate").Exact()),
	})

	assert.Equal(t, "Kilimani Heights", rec["estate_name"])
	assert.Equal(t, "Newly Built", rec["condition"])
	assert.Equal(t, "3", rec["toilets"])
	assert.Nil(t, rec["estate_partial"], "exact keys must not match by substring")
}

func TestExtract_XPathJoinAll(t *testing.T) {
	p := mustParse(t)

	rec := Extract(p, []Rule{
		Field("details", XPath(`//div[contains(@class,"b-advert__description-wrapper")]//span[contains(@class,"qa-description-text")]/text()`).All("\n")),
	})

	assert.Equal(t, "Spacious unit.\nNear the mall.", rec["details"])
}

func TestMissingAndEmpty(t *testing.T) {
	rules := []Rule{
		RequiredField("seller", Text("x")),
		Field("title", Text("y")),
		RequiredField("condition", Text("z")),
	}

	empty := Empty(rules)
	assert.Equal(t, map[string]any{"seller": nil, "title": nil, "condition": nil}, empty)
	assert.Equal(t, []string{"seller", "condition"}, Missing(empty, rules))

	empty["seller"] = "Jane"
	assert.Equal(t, []string{"condition"}, Missing(empty, rules))
	assert.Equal(t, []string{"seller", "title", "condition"}, Columns(rules))
}

func TestPageLinks(t *testing.T) {
	p := mustParse(t)

	assert.True(t, p.Has("a.item"))
	assert.False(t, p.Has("h3.add-title a"))
	assert.Equal(t, []string{
		"https://example.com/ads/1",
		"https://example.com/ads/2",
	}, p.Links("a.item"))
	assert.Empty(t, p.Links("h3.add-title a"))
}

func TestParseHTML_EmptyBody(t *testing.T) {
	_, err := ParseHTML("https://example.com", []byte("  \n "))
	assert.True(t, errors.Is(err, ErrMalformedPage))
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		NextURL *string `json:"next_url"`
		Count   int     `json:"count"`
	}

	require.NoError(t, DecodeJSON([]byte(`{"next_url": null, "count": 3}`), &v))
	assert.Nil(t, v.NextURL)
	assert.Equal(t, 3, v.Count)

	wrapped := []byte(`<html><body><pre>{"next_url": "https://x/2", "count": 1}</pre></body></html>`)
	require.NoError(t, DecodeJSON(wrapped, &v))
	require.NotNil(t, v.NextURL)
	assert.Equal(t, "https://x/2", *v.NextURL)

	err := DecodeJSON([]byte(`<html>blocked</html>`), &v)
	assert.True(t, errors.Is(err, ErrMalformedPage))

	err = DecodeJSON(nil, &v)
	assert.True(t, errors.Is(err, ErrMalformedPage))
}

func TestTransforms(t *testing.T) {
	assert.Equal(t, "", After(":")("no separator"))
	assert.Equal(t, "b", Part("/", 1)("a/b/c"))
	assert.Equal(t, "", Part("/", 5)("a/b"))
	assert.Equal(t, "Nairobi, Kilimani", BeforeLast(",")("Nairobi, Kilimani, 3 hours ago"))
	assert.Equal(t, "3", FirstWord(" 3 bedrooms"))
	assert.Equal(t, "3", TrimSuffix(" bedrooms")("3 bedrooms"))
	assert.Equal(t, "a b", Trim("  a \n\t b "))

	n, ok := ParseNumber("KSh 1,250,000.50 / month")
	assert.True(t, ok)
	assert.Equal(t, 1250000.5, n)

	_, ok = ParseNumber("price on request")
	assert.False(t, ok)
}
