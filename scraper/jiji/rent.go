package jiji

import (
	"listing-scraper/extract"
	"listing-scraper/models"
	"listing-scraper/scraper"
)

const (
	tileRow   = "div.b-advert-attributes--tiles div.b-advert-attribute"
	tileKey   = "div.b-advert-attribute__key"
	tileValue = "div.b-advert-attribute__value"
)

var rentSeedColumns = []string{
	"title", "rent_per_period", "rent_period", "region", "property_size_sqm",
	"bedrooms", "bathrooms", "furnishing", "listing_by", "user_id",
	"is_owner", "can_view_contacts", "status", "property_url",
}

// RentRules extracts the rental detail page. Seeds from the API fill the
// rest of the record.
func RentRules() []extract.Rule {
	return []extract.Rule{
		extract.Field("description",
			extract.XPath(`//div[contains(@class, "description")]/text()`),
			extract.Text("div.description"),
		),
		extract.Field("property_address",
			extract.Text("div.b-advert-info-statistics--region"),
			extract.XPath(`//div[contains(@class, "advert-info-statistics--region")]/text()`),
		),
		extract.Field("estate_name",
			extract.Keyed(tileRow, tileKey, tileValue, "estate name").Exact(),
		),
		extract.Field("condition",
			extract.Keyed(tileRow, tileKey, tileValue, "condition", "built", "status"),
		),
		extract.Field("toilets",
			extract.Keyed(tileRow, tileKey, tileValue, "toilet").Then(extract.FirstWord),
			extract.Keyed(tileRow, tileKey, tileValue, "bathroom").Then(extract.FirstWord),
		),
		extract.Field("ranter_or_agent_name",
			extract.Text("div.b-seller-block__name"),
			extract.XPath(`//div[contains(@class, "seller-block__name")]/text()`),
		),
		extract.Field("time_on_jiji",
			extract.Text(`div.b-seller-block__info__stat:contains("on Jiji")`),
			extract.XPath(`//div[contains(@class, "seller-block__info__stat") and contains(text(), "on Jiji")]/text()`),
		),
		extract.Field("property_details",
			extract.XPath(`//div[contains(@class, "b-advert__description-wrapper")]//span[contains(@class, "qa-description-text")]/text()`).All("\n"),
		),
	}
}

// DecodeRent turns a rental listing API page into detail URLs with seeds.
func DecodeRent(body []byte) (scraper.JSONPage, error) {
	resp, err := decodeListing(body)
	if err != nil {
		return scraper.JSONPage{}, err
	}
	return toPage(resp, rentItem), nil
}

func rentItem(a advert) models.ListItem {
	link := a.absoluteURL()
	return models.ListItem{
		URL: link,
		Fields: map[string]any{
			"title":             stringOrNil(a.Title),
			"rent_per_period":   scalar(a.PriceObj.Value),
			"rent_period":       scalar(a.PriceObj.Period),
			"region":            scalar(a.Region),
			"property_size_sqm": a.attrValue("Property size"),
			"bedrooms":          a.attrValue("Bedrooms"),
			"bathrooms":         a.attrValue("Bathrooms"),
			"furnishing":        a.attrValue("Furnishing"),
			"listing_by":        a.attrValue("Listing by"),
			"user_id":           scalar(a.UserID),
			"is_owner":          scalar(a.IsOwner),
			"can_view_contacts": scalar(a.CanViewContacts),
			"status":            scalar(a.Status),
			"property_url":      stringOrNil(link),
		},
	}
}

// RentSite crawls rentals: API list pages followed by next_url, HTML
// detail pages over plain HTTP.
func RentSite() scraper.Site {
	rules := RentRules()
	return scraper.Site{
		Name:        "jiji-rent",
		Description: "jiji.co.ke houses and apartments for rent (API list, HTTP details)",
		StartURL:    listingURL("houses-apartments-for-rent", true),
		ListMode:    scraper.ModeAPI,
		DetailMode:  scraper.ModeHTTP,
		List: scraper.ListSpec{
			Format: scraper.ListJSON,
			Decode: DecodeRent,
		},
		Detail: &scraper.DetailSpec{
			Rules:    rules,
			URLField: "property_url",
		},
		Columns: append(append([]string(nil), rentSeedColumns...), extract.Columns(rules)...),
	}
}
