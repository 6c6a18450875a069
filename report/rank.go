// Package report ranks validated batches and renders them as exports and
// textual summaries.
package report

import (
	"cmp"
	"slices"

	"github.com/use-agent/dealscout/models"
)

// ExportOrder returns a copy of products in export order. When at least one
// product has a usable discount percentage the batch is sorted by it,
// highest first, with undiscounted products last. Otherwise it is sorted by
// price, cheapest first. Ties keep their input order.
func ExportOrder(products []models.Product) []models.Product {
	out := slices.Clone(products)

	if !slices.ContainsFunc(out, hasDiscount) {
		slices.SortStableFunc(out, func(a, b models.Product) int {
			return cmp.Compare(a.Price, b.Price)
		})
		return out
	}

	slices.SortStableFunc(out, func(a, b models.Product) int {
		pa, oka := a.DiscountPercent()
		pb, okb := b.DiscountPercent()
		switch {
		case oka && !okb:
			return -1
		case !oka && okb:
			return 1
		case !oka && !okb:
			return 0
		}
		return cmp.Compare(pb, pa)
	})
	return out
}

// TopDeals returns at most n products ordered by discount percentage,
// highest first. Missing discounts count as 0% and ties keep input order.
func TopDeals(products []models.Product, n int) []models.Product {
	out := slices.Clone(products)
	slices.SortStableFunc(out, func(a, b models.Product) int {
		pa, _ := a.DiscountPercent()
		pb, _ := b.DiscountPercent()
		return cmp.Compare(pb, pa)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func hasDiscount(p models.Product) bool {
	_, ok := p.DiscountPercent()
	return ok
}
