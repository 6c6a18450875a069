// Package dedup removes repeated listings from a batch. Listings repeat when
// a site shows the same product on several result pages.
package dedup

import (
	"fmt"
	"strings"

	"github.com/use-agent/dealscout/models"
)

// Policies.
const (
	None    = "none"
	URL     = "url"
	Similar = "similar"
)

// NameThreshold is the largest name fingerprint distance at which two
// listings with the same price count as one under the Similar policy.
const NameThreshold = 3

// Validate reports whether policy is known.
func Validate(policy string) error {
	switch policy {
	case "", None, URL, Similar:
		return nil
	}
	return fmt.Errorf("unknown dedup policy %q", policy)
}

// Apply returns products with duplicates removed under policy. The first
// occurrence wins and order is kept. Unknown policies behave like None.
func Apply(policy string, products []models.Product) []models.Product {
	switch policy {
	case URL:
		return byURL(products)
	case Similar:
		return bySimilarName(products)
	}
	return products
}

func byURL(products []models.Product) []models.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		key := urlKey(p.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func urlKey(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return u
}

func bySimilarName(products []models.Product) []models.Product {
	type kept struct {
		fp    uint64
		price float64
	}
	var seen []kept
	out := make([]models.Product, 0, len(products))

	for _, p := range products {
		fp := Fingerprint(p.Name)
		dup := false
		for _, k := range seen {
			if k.price == p.Price && near(k.fp, fp, NameThreshold) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, kept{fp: fp, price: p.Price})
		out = append(out, p)
	}
	return out
}
