package jiji

import (
	"strings"

	"listing-scraper/extract"
	"listing-scraper/models"
	"listing-scraper/scraper"
)

const (
	saleListURL = BaseURL + "/houses-apartments-for-sale?page=1"

	attrRow   = "div.b-advert-attributes-wrapper .b-advert-attribute"
	attrKey   = "div.b-advert-attribute__key"
	attrValue = "div.b-advert-attribute__value"
	iconSpan  = "div.b-advert-icon-attributes-container div.b-advert-icon-attribute span"
	regionSel = "div.b-advert-info-statistics--region"
	priceView = "div.qa-advert-price-view span.qa-advert-price-view-value"
)

// SaleRules extracts the rendered sale detail page. The seller block and
// the condition/furnishing attributes load late, so they are required and
// the page is re-fetched while any of them is still missing.
func SaleRules() []extract.Rule {
	return []extract.Rule{
		extract.Field("title", extract.Text("div.b-advert-title-inner")),
		extract.Field("location", extract.Text(regionSel, extract.BeforeLast(","))),
		extract.Field("type",
			extract.Text("div.b-advert-icon-attributes-container div.b-advert-icon-attribute:nth-child(1) span"),
		),
		extract.Field("property_address", extract.Text(regionSel, extract.BeforeLast(","))),
		extract.Field("estate_name", extract.Text(regionSel, extract.BeforeLast(","), extract.Part("/", 1))),
		extract.Field("property_size", extract.Keyed(attrRow, attrKey, attrValue, "property size")),
		extract.RequiredField("condition", extract.Keyed(attrRow, attrKey, attrValue, "condition")),
		extract.RequiredField("furnishing", extract.Keyed(attrRow, attrKey, attrValue, "furnishing")),
		extract.Field("toilets",
			extract.Keyed(attrRow, attrKey, attrValue, "toilet"),
			extract.Keyed(iconSpan, "", "", "toilet"),
		),
		extract.Field("bedrooms", extract.Keyed(iconSpan, "", "", "bedroom", "bdrm")),
		extract.Field("bathrooms", extract.Keyed(iconSpan, "", "", "bathroom")),
		extract.Field("price_rent", extract.Text(priceView)),
		extract.Field("price_with_period",
			extract.Text(priceView+", div.qa-advert-price-view span.b-alt-advert-price__period").All(" "),
		),
		extract.RequiredField("seller_or_agent_name",
			extract.Text("div.b-seller-block__info div.b-seller-block__name"),
		),
		extract.RequiredField("time_on_jiji",
			extract.Text("div.b-seller-block__info div.b-seller-block__info__stat:nth-child(2)"),
		),
		extract.Field("property_url"),
	}
}

// SaleSite renders both list and detail pages in the shared browser.
func SaleSite() scraper.Site {
	rules := SaleRules()
	return scraper.Site{
		Name:        "jiji-sale",
		Description: "jiji.co.ke houses and apartments for sale (rendered list and details)",
		StartURL:    saleListURL,
		ListMode:    scraper.ModeBrowser,
		DetailMode:  scraper.ModeBrowser,
		List: scraper.ListSpec{
			Format:       scraper.ListHTML,
			LinkSelector: "a.b-list-advert-base",
			Scrolls:      1,
		},
		Detail: &scraper.DetailSpec{
			Marker:   "div.b-advert-attributes-wrapper",
			Scrolls:  3,
			Rules:    rules,
			URLField: "property_url",
		},
		Columns: extract.Columns(rules),
	}
}

var saleAPIColumns = []string{
	"title", "location", "type", "bedrooms", "bathrooms", "address", "estate",
	"size", "condition", "furnishing", "toilets", "price_rent",
	"price_with_period", "seller_or_agent_name", "time_on_jiji", "property_url",
}

// DecodeSale turns a sale listing API page into complete records.
// Detail-only columns are present with nil values.
func DecodeSale(body []byte) (scraper.JSONPage, error) {
	resp, err := decodeListing(body)
	if err != nil {
		return scraper.JSONPage{}, err
	}
	return toPage(resp, saleItem), nil
}

func saleItem(a advert) models.ListItem {
	bedrooms := a.attrSemantic("Bedrooms")
	var subtype any
	if s, ok := bedrooms.(string); ok {
		subtype = stringOrNil(strings.ReplaceAll(s, " bedrooms", ""))
	}
	link := a.absoluteURL()

	return models.ListItem{
		URL: link,
		Fields: map[string]any{
			"title":                stringOrNil(a.Title),
			"location":             stringOrNil(a.RegionItemText),
			"type":                 subtype,
			"bedrooms":             bedrooms,
			"bathrooms":            a.attrSemantic("Bathrooms"),
			"address":              nil,
			"estate":               stringOrNil(a.RegionName),
			"size":                 a.attrValue("Property size"),
			"condition":            nil,
			"furnishing":           a.attrValue("Furnishing"),
			"toilets":              nil,
			"price_rent":           stringOrNil(a.PriceObj.View),
			"price_with_period":    stringOrNil(a.PriceObj.View),
			"seller_or_agent_name": nil,
			"time_on_jiji":         nil,
			"property_url":         stringOrNil(link),
		},
	}
}

// SaleAPISite reads sale records from the listing API alone, paging until
// total_pages.
func SaleAPISite() scraper.Site {
	return scraper.Site{
		Name:        "jiji-sale-api",
		Description: "jiji.co.ke houses and apartments for sale (listing API only)",
		StartURL:    listingURL("houses-apartments-for-sale", false),
		ListMode:    scraper.ModeAPI,
		List: scraper.ListSpec{
			Format:          scraper.ListJSON,
			Decode:          DecodeSale,
			NextWithinTotal: true,
		},
		Columns:  saleAPIColumns,
		URLField: "property_url",
	}
}

// Sites returns every jiji crawl.
func Sites() []scraper.Site {
	return []scraper.Site{RentSite(), SaleSite(), SaleAPISite()}
}
