package models

import "github.com/shopspring/decimal"

// Product is one validated listing. It is built once by the normalizer and
// never modified afterwards.
type Product struct {
	Name               string   `json:"name"`
	Price              float64  `json:"price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
	Description        string   `json:"description,omitempty"`
	Rating             *float64 `json:"rating,omitempty"`
	ReviewsCount       *int     `json:"reviews_count,omitempty"`
	Seller             string   `json:"seller,omitempty"`
	Category           string   `json:"category,omitempty"`
	URL                string   `json:"url"`
	ImageURL           string   `json:"image_url,omitempty"`
	Availability       string   `json:"availability,omitempty"`
	Features           []string `json:"features,omitempty"`
}

// ExportPlaces is the decimal precision of discount percentages in exports.
const ExportPlaces = 2

// DiscountAmount returns OriginalPrice - Price, rounded to 2 decimals.
// ok is false unless the listing carries an original price above the current one.
func (p Product) DiscountAmount() (amount float64, ok bool) {
	if p.OriginalPrice == nil {
		return 0, false
	}
	amount, _, ok = Discount(p.Price, *p.OriginalPrice, ExportPlaces)
	return amount, ok
}

// DiscountPercent returns the derived discount percentage when both prices
// allow it, falling back to the percentage supplied by the extraction service.
func (p Product) DiscountPercent() (percent float64, ok bool) {
	if p.OriginalPrice != nil {
		if _, pct, derived := Discount(p.Price, *p.OriginalPrice, ExportPlaces); derived {
			return pct, true
		}
	}
	if p.DiscountPercentage != nil {
		return *p.DiscountPercentage, true
	}
	return 0, false
}

// Discount computes the saving between an original and a current price.
// The amount is rounded to 2 decimals and the percentage to places, both
// from the exact difference; ok is false when original is not strictly
// greater than price.
func Discount(price, original float64, places int32) (amount, percent float64, ok bool) {
	if original <= 0 || original <= price {
		return 0, 0, false
	}
	orig := decimal.NewFromFloat(original)
	diff := orig.Sub(decimal.NewFromFloat(price))

	amount, _ = diff.Round(2).Float64()
	percent, _ = diff.Div(orig).Mul(decimal.NewFromInt(100)).Round(places).Float64()
	return amount, percent, true
}
