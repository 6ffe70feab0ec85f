package jiji

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/extract"
	"listing-scraper/scraper"
)

const rentPayload = `{
  "adverts_list": {
    "adverts": [
      {
        "title": "2 Bedroom Apartment in Kilimani",
        "url": "/kilimani/houses-apartments-for-rent/2bdrm-abc.html",
        "region": "Nairobi",
        "user_id": 4411,
        "is_owner": false,
        "can_view_contacts": true,
        "status": "active",
        "price_obj": {"value": 65000, "period": "per month", "view": "KSh 65,000"},
        "attrs": [
          {"name": "Bedrooms", "value": "2", "semantic_value": "2 bedrooms"},
          {"name": "Bathrooms", "value": "2", "semantic_value": "2 bathrooms"},
          {"name": "Property size", "value": "110 sqm"},
          {"name": "Furnishing", "value": "Unfurnished"},
          {"name": "Listing by", "value": "Agent"}
        ]
      }
    ],
    "total_pages": 40
  },
  "next_url": "https://jiji.co.ke/api_web/v1/listing?slug=houses-apartments-for-rent&page=2"
}`

func TestDecodeRent(t *testing.T) {
	page, err := DecodeRent([]byte(rentPayload))
	require.NoError(t, err)

	assert.Equal(t, 40, page.TotalPages)
	assert.Equal(t, "https://jiji.co.ke/api_web/v1/listing?slug=houses-apartments-for-rent&page=2", page.NextURL)
	require.Len(t, page.Items, 1)

	item := page.Items[0]
	assert.Equal(t, "https://jiji.co.ke/kilimani/houses-apartments-for-rent/2bdrm-abc.html", item.URL)
	assert.Equal(t, "2 Bedroom Apartment in Kilimani", item.Fields["title"])
	assert.Equal(t, 65000.0, item.Fields["rent_per_period"])
	assert.Equal(t, "per month", item.Fields["rent_period"])
	assert.Equal(t, "Nairobi", item.Fields["region"])
	assert.Equal(t, "110 sqm", item.Fields["property_size_sqm"])
	assert.Equal(t, "Agent", item.Fields["listing_by"])
	assert.Equal(t, 4411.0, item.Fields["user_id"])
	assert.Equal(t, false, item.Fields["is_owner"])
	assert.Equal(t, item.URL, item.Fields["property_url"])
}

func TestDecodeRent_HTMLWrapped(t *testing.T) {
	page, err := DecodeRent([]byte(`<html><body><pre>` + rentPayload + `</pre></body></html>`))
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestDecodeRent_NullNext(t *testing.T) {
	page, err := DecodeRent([]byte(`{"adverts_list":{"adverts":[]},"next_url":null}`))
	require.NoError(t, err)
	assert.Empty(t, page.NextURL)
	assert.Empty(t, page.Items)
}

func TestDecodeRent_Malformed(t *testing.T) {
	_, err := DecodeRent([]byte(`<html>maintenance</html>`))
	assert.ErrorIs(t, err, extract.ErrMalformedPage)
}

func TestDecodeSale(t *testing.T) {
	page, err := DecodeSale([]byte(rentPayload))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	f := page.Items[0].Fields
	assert.Equal(t, "2", f["type"])
	assert.Equal(t, "2 bedrooms", f["bedrooms"])
	assert.Equal(t, "2 bathrooms", f["bathrooms"])
	assert.Equal(t, "110 sqm", f["size"])
	assert.Equal(t, "KSh 65,000", f["price_rent"])
	assert.Equal(t, "KSh 65,000", f["price_with_period"])

	for _, col := range saleAPIColumns {
		_, ok := f[col]
		assert.True(t, ok, "column %s present", col)
	}
	assert.Nil(t, f["condition"])
	assert.Nil(t, f["seller_or_agent_name"])
}

const rentDetail = `<html><body>
<div class="b-advert-info-statistics--region">Kilimani, Nairobi</div>
<div class="b-advert-attributes--tiles">
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Estate Name</div><div class="b-advert-attribute__value">Yaya Towers</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Condition</div><div class="b-advert-attribute__value">Newly Built</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Bathrooms</div><div class="b-advert-attribute__value">3 bathrooms</div></div>
</div>
<div class="b-seller-block__name">Acme Realty</div>
<div class="b-seller-block__info__stat">5y 2m on Jiji</div>
<div class="b-advert__description-wrapper">
  <span class="qa-description-text">Spacious unit.</span>
  <span class="qa-description-text">Close to the mall.</span>
</div>
</body></html>`

func TestRentRules(t *testing.T) {
	page, err := extract.ParseHTML("https://jiji.co.ke/x.html", []byte(rentDetail))
	require.NoError(t, err)

	got := extract.Extract(page, RentRules())
	assert.Equal(t, "Kilimani, Nairobi", got["property_address"])
	assert.Equal(t, "Yaya Towers", got["estate_name"])
	assert.Equal(t, "Newly Built", got["condition"])
	assert.Equal(t, "3", got["toilets"], "falls back to the bathroom count")
	assert.Equal(t, "Acme Realty", got["ranter_or_agent_name"])
	assert.Equal(t, "5y 2m on Jiji", got["time_on_jiji"])
	assert.Equal(t, "Spacious unit.\nClose to the mall.", got["property_details"])
	assert.Nil(t, got["description"])
}

const saleDetail = `<html><body>
<div class="b-advert-title-inner">4 Bedroom Townhouse</div>
<div class="b-advert-info-statistics--region">Nairobi / Runda, 3 hours ago</div>
<div class="b-advert-icon-attributes-container">
  <div class="b-advert-icon-attribute"><span>Townhouse</span></div>
  <div class="b-advert-icon-attribute"><span>4 bedrooms</span></div>
  <div class="b-advert-icon-attribute"><span>5 bathrooms</span></div>
</div>
<div class="b-advert-attributes-wrapper">
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Property Size</div><div class="b-advert-attribute__value">400 sqm</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Condition</div><div class="b-advert-attribute__value">Fresh</div></div>
  <div class="b-advert-attribute"><div class="b-advert-attribute__key">Furnishing</div><div class="b-advert-attribute__value">Furnished</div></div>
</div>
<div class="qa-advert-price-view"><span class="qa-advert-price-view-value">KSh 85,000,000</span></div>
<div class="b-seller-block__info"><div class="b-seller-block__name">Jane Agent</div><div class="b-seller-block__info__stat">3y on Jiji</div></div>
</body></html>`

func TestSaleRules(t *testing.T) {
	page, err := extract.ParseHTML("https://jiji.co.ke/runda/x.html", []byte(saleDetail))
	require.NoError(t, err)

	rules := SaleRules()
	got := extract.Extract(page, rules)
	assert.Equal(t, "4 Bedroom Townhouse", got["title"])
	assert.Equal(t, "Nairobi / Runda", got["location"])
	assert.Equal(t, "Runda", got["estate_name"])
	assert.Equal(t, "Townhouse", got["type"])
	assert.Equal(t, "4 bedrooms", got["bedrooms"])
	assert.Equal(t, "5 bathrooms", got["bathrooms"])
	assert.Equal(t, "400 sqm", got["property_size"])
	assert.Equal(t, "KSh 85,000,000", got["price_rent"])
	assert.Equal(t, "KSh 85,000,000", got["price_with_period"])
	assert.Equal(t, "Jane Agent", got["seller_or_agent_name"])
	assert.Nil(t, got["toilets"])
	assert.Nil(t, got["property_url"])

	// the seller stat is the second child of the info block
	assert.Equal(t, "3y on Jiji", got["time_on_jiji"])
	assert.Empty(t, extract.Missing(got, rules))
}

func TestSites(t *testing.T) {
	reg, err := scraper.NewRegistry(Sites()...)
	require.NoError(t, err)

	rent, ok := reg.Lookup("jiji-rent")
	require.True(t, ok)
	assert.Equal(t, scraper.ModeAPI, rent.ListMode)
	assert.Contains(t, rent.StartURL, "slug=houses-apartments-for-rent")
	assert.Contains(t, rent.Columns, "property_details")
	assert.Contains(t, rent.Columns, "rent_per_period")

	sale, _ := reg.Lookup("jiji-sale")
	assert.True(t, sale.UsesBrowser())

	api, _ := reg.Lookup("jiji-sale-api")
	assert.Nil(t, api.Detail)
	assert.True(t, api.List.NextWithinTotal)
}
