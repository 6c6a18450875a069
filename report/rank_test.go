package report

import (
	"testing"

	"github.com/use-agent/dealscout/models"
)

func f(v float64) *float64 { return &v }

func names(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExportOrderByDiscount(t *testing.T) {
	in := []models.Product{
		{Name: "none", Price: 5},
		{Name: "ten", Price: 90, OriginalPrice: f(100)},
		{Name: "upstream-thirty", Price: 50, DiscountPercentage: f(30)},
		{Name: "twenty", Price: 80, OriginalPrice: f(100)},
		{Name: "none-2", Price: 1},
	}

	got := names(ExportOrder(in))
	want := []string{"upstream-thirty", "twenty", "ten", "none", "none-2"}
	if !equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if in[0].Name != "none" {
		t.Fatal("ExportOrder must not reorder its input")
	}
}

func TestExportOrderFallsBackToPrice(t *testing.T) {
	in := []models.Product{
		{Name: "c", Price: 30},
		{Name: "a", Price: 10},
		{Name: "raised", Price: 20, OriginalPrice: f(15)},
		{Name: "a-2", Price: 10},
	}

	got := names(ExportOrder(in))
	want := []string{"a", "a-2", "raised", "c"}
	if !equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestTopDeals(t *testing.T) {
	var in []models.Product
	for i := 0; i < 12; i++ {
		in = append(in, models.Product{Name: string(rune('a' + i)), Price: 10})
	}
	in = append(in, models.Product{Name: "best", Price: 50, OriginalPrice: f(100)})
	in = append(in, models.Product{Name: "good", Price: 10, DiscountPercentage: f(10)})

	got := TopDeals(in, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	want := []string{"best", "good", "a", "b", "c", "d", "e", "f", "g", "h"}
	if !equal(names(got), want) {
		t.Fatalf("order = %v, want %v", names(got), want)
	}
}

func TestTopDealsShortBatch(t *testing.T) {
	in := []models.Product{{Name: "x", Price: 1}, {Name: "y", Price: 2}}
	if got := TopDeals(in, 10); len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got := TopDeals(nil, 10); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestDiscount(t *testing.T) {
	p := models.Product{Name: "x", Price: 80, OriginalPrice: f(100)}
	amount, ok := p.DiscountAmount()
	if !ok || amount != 20 {
		t.Fatalf("amount = %v, %v", amount, ok)
	}
	pct, ok := p.DiscountPercent()
	if !ok || pct != 20 {
		t.Fatalf("percent = %v, %v", pct, ok)
	}

	if _, _, ok := models.Discount(100, 100, models.ExportPlaces); ok {
		t.Fatal("equal prices carry no discount")
	}
	if _, _, ok := models.Discount(120, 100, models.ExportPlaces); ok {
		t.Fatal("a price above the original carries no discount")
	}
	if amount, pct, _ := models.Discount(19.99, 29.99, models.ExportPlaces); amount != 10 || pct != 33.34 {
		t.Fatalf("rounding: amount=%v pct=%v", amount, pct)
	}
	if _, pct, _ := models.Discount(19.99, 29.99, summaryPlaces); pct != 33.3 {
		t.Fatalf("summary rounding: pct=%v", pct)
	}
}
