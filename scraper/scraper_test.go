package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/models"
)

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"STATS.G.DOUBLECLICK.NET", true},
		{"www.jumia.co.ke", false},
		{"net", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isAdDomain(tt.host); got != tt.want {
			t.Errorf("isAdDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestBlockedTypes(t *testing.T) {
	got := blockedTypes([]string{"Image", "Font", "Script", "Bogus"})
	if len(got) != 2 {
		t.Fatalf("blocked = %v, want Image and Font only", got)
	}
	if _, ok := got[proto.NetworkResourceTypeImage]; !ok {
		t.Error("Image should be blocked")
	}
}

func TestRequestHeaders(t *testing.T) {
	h := requestHeaders(&engine.FetchRequest{URL: "https://www.jumia.co.ke/catalog/?q=phones"})
	if h["Referer"] != "https://www.google.com/search?q=www.jumia.co.ke" {
		t.Fatalf("referer = %q", h["Referer"])
	}

	h = requestHeaders(&engine.FetchRequest{
		URL:     "https://shop.example/",
		Headers: map[string]string{"Referer": "https://shop.example/home", "Accept-Language": "en"},
	})
	if h["Referer"] != "https://shop.example/home" || h["Accept-Language"] != "en" {
		t.Fatalf("caller headers should win: %v", h)
	}
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Referer": "x"})
	if m["Referer"].Str() != "x" {
		t.Fatalf("header = %v", m["Referer"])
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, models.ErrCodeTimeout},
		{context.Canceled, models.ErrCodeTimeout},
		{errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err, "x"); got.Code != tt.want {
			t.Errorf("categorizeError(%v) = %s, want %s", tt.err, got.Code, tt.want)
		}
	}
}
