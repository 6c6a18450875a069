package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/use-agent/dealscout/models"
)

// NoProducts is the summary text for an empty batch.
const NoProducts = "No products found."

// DealLine is one ranked entry of a summary. Saved and PercentOff are set
// only when the product's original price is above its current price.
type DealLine struct {
	Index         int      `json:"index"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	Saved         *float64 `json:"saved,omitempty"`
	PercentOff    *float64 `json:"percent_off,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	URL           string   `json:"url"`
}

// Summary is the top deals of one batch.
type Summary struct {
	Category string     `json:"category,omitempty"`
	Site     string     `json:"site,omitempty"`
	Deals    []DealLine `json:"deals"`
}

// Summarize ranks products with TopDeals and keeps the first n as deal lines.
func Summarize(products []models.Product, category, site string, n int) Summary {
	top := TopDeals(products, n)
	s := Summary{Category: category, Site: site, Deals: make([]DealLine, 0, len(top))}

	for i, p := range top {
		line := DealLine{
			Index:         i + 1,
			Name:          p.Name,
			Price:         p.Price,
			OriginalPrice: p.OriginalPrice,
			Rating:        p.Rating,
			URL:           p.URL,
		}
		if p.OriginalPrice != nil {
			if saved, pct, ok := models.Discount(p.Price, *p.OriginalPrice, summaryPlaces); ok {
				line.Saved = &saved
				line.PercentOff = &pct
			}
		}
		s.Deals = append(s.Deals, line)
	}
	return s
}

// summaryPlaces is the decimal precision of percentages in summaries.
const summaryPlaces = 1

// Heading returns the summary title line.
func (s Summary) Heading() string {
	site := cases.Title(language.Und).String(s.Site)
	switch {
	case s.Category != "" && s.Site != "":
		return fmt.Sprintf("Top Deals for %s on %s:", s.Category, site)
	case s.Category != "":
		return fmt.Sprintf("Top Deals for %s:", s.Category)
	case s.Site != "":
		return fmt.Sprintf("Top Deals on %s:", site)
	}
	return "Top Deals Found:"
}

// FormatSummary renders s as text, prefixing amounts with currency.
func FormatSummary(s Summary, currency string) string {
	if len(s.Deals) == 0 {
		return NoProducts
	}

	var b strings.Builder
	b.WriteString(s.Heading())
	for _, d := range s.Deals {
		fmt.Fprintf(&b, "\n%d. %s - %s%s", d.Index, d.Name, currency, money(d.Price))
		if d.Saved != nil && d.PercentOff != nil {
			fmt.Fprintf(&b, " (Was %s%s, Save %s%s, %s%% off)",
				currency, money(*d.OriginalPrice),
				currency, money(*d.Saved),
				decimal.NewFromFloat(*d.PercentOff).StringFixed(1),
			)
		}
		if d.Rating != nil {
			fmt.Fprintf(&b, " - %s★", strconv.FormatFloat(*d.Rating, 'f', -1, 64))
		}
	}
	return b.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
