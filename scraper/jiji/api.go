// Package jiji defines the jiji.co.ke property crawls: rentals from the
// listing API with HTML detail pages, sales rendered in the browser, and
// sales taken straight from the listing API.
package jiji

import (
	"fmt"
	"net/url"
	"strings"

	"listing-scraper/extract"
	"listing-scraper/models"
	"listing-scraper/scraper"
)

const (
	BaseURL = "https://jiji.co.ke"
	APIURL  = BaseURL + "/api_web/v1/listing"
)

// listingResponse is the subset of the listing API payload the crawls read.
type listingResponse struct {
	AdvertsList struct {
		Adverts    []advert `json:"adverts"`
		TotalPages int      `json:"total_pages"`
	} `json:"adverts_list"`
	NextURL *string `json:"next_url"`
}

type advert struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Region          any      `json:"region"`
	RegionItemText  string   `json:"region_item_text"`
	RegionName      string   `json:"region_name"`
	UserID          any      `json:"user_id"`
	IsOwner         any      `json:"is_owner"`
	CanViewContacts any      `json:"can_view_contacts"`
	Status          any      `json:"status"`
	PriceObj        priceObj `json:"price_obj"`
	Attrs           []attr   `json:"attrs"`
}

type priceObj struct {
	Value  any    `json:"value"`
	Period any    `json:"period"`
	View   string `json:"view"`
}

type attr struct {
	Name          string `json:"name"`
	Value         any    `json:"value"`
	SemanticValue any    `json:"semantic_value"`
}

// attrValue returns the value of the first attribute called name.
func (a advert) attrValue(name string) any {
	for _, at := range a.Attrs {
		if at.Name == name {
			return scalar(at.Value)
		}
	}
	return nil
}

func (a advert) attrSemantic(name string) any {
	for _, at := range a.Attrs {
		if at.Name == name {
			return scalar(at.SemanticValue)
		}
	}
	return nil
}

func (a advert) absoluteURL() string {
	if a.URL == "" {
		return ""
	}
	if strings.HasPrefix(a.URL, "http://") || strings.HasPrefix(a.URL, "https://") {
		return a.URL
	}
	return BaseURL + "/" + strings.TrimPrefix(a.URL, "/")
}

// scalar keeps JSON strings, numbers and booleans. Objects, arrays and
// empty strings become nil so every record value stays flat.
func scalar(v any) any {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return strings.TrimSpace(x)
	case float64, bool:
		return x
	case map[string]any:
		if name, ok := x["name"].(string); ok && name != "" {
			return name
		}
	}
	return nil
}

func decodeListing(body []byte) (listingResponse, error) {
	var resp listingResponse
	if err := extract.DecodeJSON(body, &resp); err != nil {
		return listingResponse{}, fmt.Errorf("listing api: %w", err)
	}
	return resp, nil
}

func toPage(resp listingResponse, item func(advert) models.ListItem) scraper.JSONPage {
	page := scraper.JSONPage{TotalPages: resp.AdvertsList.TotalPages}
	if resp.NextURL != nil {
		page.NextURL = *resp.NextURL
	}
	for _, a := range resp.AdvertsList.Adverts {
		page.Items = append(page.Items, item(a))
	}
	return page
}

// listingURL builds the first listing API page for a category slug.
func listingURL(slug string, webp bool) string {
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("init_page", "true")
	q.Set("page", "1")
	q.Set("webp", fmt.Sprint(webp))
	return APIURL + "?" + q.Encode()
}

func stringOrNil(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}
