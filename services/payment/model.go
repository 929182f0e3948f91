package payment

// Package is a purchasable coin bundle. Prices are stored in USD cents and
// localized at read time.
type Package struct {
	ID       string `json:"id"`
	Coins    int64  `json:"coins"`
	PriceUSD int64  `json:"-"`
	Popular  bool   `json:"popular"`
}

var packages = []Package{
	{ID: "starter", Coins: 100, PriceUSD: 499},
	{ID: "creator", Coins: 500, PriceUSD: 1999, Popular: true},
	{ID: "agency", Coins: 1200, PriceUSD: 3999},
}

type currency struct {
	Code string
	Rate float64 // units of the currency per USD
}

// Display-only conversion. PayPal settles whatever the client checkout
// charged; the coin amount is what the ledger records.
var currencyByCountry = map[string]currency{
	"United States":  {Code: "USD", Rate: 1.0},
	"United Kingdom": {Code: "GBP", Rate: 0.79},
	"France":         {Code: "EUR", Rate: 0.92},
	"Germany":        {Code: "EUR", Rate: 0.92},
	"Spain":          {Code: "EUR", Rate: 0.92},
	"Italy":          {Code: "EUR", Rate: 0.92},
	"Japan":          {Code: "JPY", Rate: 149.0},
	"India":          {Code: "INR", Rate: 83.0},
	"Brazil":         {Code: "BRL", Rate: 5.0},
	"Indonesia":      {Code: "IDR", Rate: 15600.0},
}

var defaultCurrency = currency{Code: "USD", Rate: 1.0}

func currencyFor(country string) currency {
	if c, ok := currencyByCountry[country]; ok {
		return c
	}
	return defaultCurrency
}

func packageByID(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
