package report

import (
	"strings"
	"testing"

	"github.com/use-agent/dealscout/models"
)

func TestSummarize(t *testing.T) {
	products := []models.Product{
		{Name: "Plain", Price: 12, Rating: f(4)},
		{Name: "Phone", Price: 80, OriginalPrice: f(100), Rating: f(4.5), URL: "https://shop.example/p"},
	}

	s := Summarize(products, "phones", "jumia", 10)
	if len(s.Deals) != 2 {
		t.Fatalf("deals = %d", len(s.Deals))
	}
	top := s.Deals[0]
	if top.Index != 1 || top.Name != "Phone" {
		t.Fatalf("top = %+v", top)
	}
	if top.Saved == nil || *top.Saved != 20 || top.PercentOff == nil || *top.PercentOff != 20 {
		t.Fatalf("discount data = %v, %v", top.Saved, top.PercentOff)
	}
	if s.Deals[1].Saved != nil {
		t.Fatal("plain product should carry no discount")
	}
}

func TestFormatSummary(t *testing.T) {
	products := []models.Product{
		{Name: "Plain", Price: 12, Rating: f(4)},
		{Name: "Phone", Price: 80, OriginalPrice: f(100), Rating: f(4.5)},
		{Name: "Odd", Price: 19.99, OriginalPrice: f(29.99)},
	}

	got := FormatSummary(Summarize(products, "phones", "jumia", 10), "$")
	want := strings.Join([]string{
		"Top Deals for phones on Jumia:",
		"1. Odd - $19.99 (Was $29.99, Save $10.00, 33.3% off)",
		"2. Phone - $80.00 (Was $100.00, Save $20.00, 20.0% off) - 4.5★",
		"3. Plain - $12.00 - 4★",
	}, "\n")
	if got != want {
		t.Fatalf("summary:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatSummaryEmpty(t *testing.T) {
	if got := FormatSummary(Summarize(nil, "phones", "jumia", 10), "$"); got != NoProducts {
		t.Fatalf("got %q", got)
	}
}

func TestSummaryHeading(t *testing.T) {
	tests := []struct {
		category, site, want string
	}{
		{"laptops", "best buy", "Top Deals for laptops on Best Buy:"},
		{"laptops", "", "Top Deals for laptops:"},
		{"", "jumia", "Top Deals on Jumia:"},
		{"", "", "Top Deals Found:"},
	}
	for _, tt := range tests {
		if got := (Summary{Category: tt.category, Site: tt.site}).Heading(); got != tt.want {
			t.Errorf("Heading(%q, %q) = %q, want %q", tt.category, tt.site, got, tt.want)
		}
	}
}
