package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/dealscout/models"
)

var exportTime = time.Date(2026, 3, 4, 13, 9, 13, 0, time.UTC)

func sampleBatch() []models.Product {
	reviews := 12
	return []models.Product{
		{Name: "Plain", Price: 10, URL: "https://shop.example/plain"},
		{
			Name: "Deal", Price: 80, OriginalPrice: f(100), Rating: f(4.5), ReviewsCount: &reviews,
			URL: "https://shop.example/deal", Features: []string{"5G", "OLED"},
		},
	}
}

func TestExportPath(t *testing.T) {
	got := ExportPath("out", "home appliances", "jumia", "csv", exportTime, "3f2a9c1e-0000-4000-8000-000000000000")
	want := filepath.Join("out", "products_home-appliances_jumia_20260304_130913_3f2a9c1e.csv")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}

	got = ExportPath("out", "combined", "", "jsonl", exportTime, "")
	want = filepath.Join("out", "products_combined_20260304_130913.jsonl")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}

	a := ExportPath("out", "phones", "jumia", "csv", exportTime, NewRunID())
	b := ExportPath("out", "phones", "jumia", "csv", exportTime, NewRunID())
	if a == b {
		t.Fatal("run IDs should make same-second exports distinct")
	}
}

func TestWriteExportCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	paths, err := WriteExport(Export{
		Dir: dir, Format: "csv", Category: "phones", Site: "jumia", RunID: "abc", Now: exportTime,
	}, sampleBatch())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], ".csv") {
		t.Fatalf("paths = %v", paths)
	}

	file, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(Columns, ",") {
		t.Fatalf("header = %v", records[0])
	}

	deal := records[1]
	if deal[0] != "Deal" || deal[3] != "20" || deal[4] != "20" {
		t.Fatalf("discounted product should lead with derived columns, got %v", deal)
	}
	if deal[7] != "12" || deal[13] != "5G; OLED" {
		t.Fatalf("reviews/features = %q/%q", deal[7], deal[13])
	}
	if plain := records[2]; plain[0] != "Plain" || plain[3] != "" || plain[4] != "" {
		t.Fatalf("plain row = %v", plain)
	}
}

func TestWriteExportDual(t *testing.T) {
	dir := t.TempDir()

	paths, err := WriteExport(Export{Dir: dir, Format: "dual", Category: "phones", Now: exportTime}, sampleBatch())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}

	file, err := os.Open(paths[1])
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var first map[string]any
	if !scanner.Scan() {
		t.Fatal("expected a json line")
	}
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if first["name"] != "Deal" || first["discount_amount"] != float64(20) {
		t.Fatalf("first record = %v", first)
	}
	lines := 1
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
}

func TestWriteExportEmpty(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteExport(Export{Dir: dir, Format: "csv"}, nil)
	if !errors.Is(err, ErrNoProducts) {
		t.Fatalf("err = %v, want ErrNoProducts", err)
	}
	if len(paths) != 0 {
		t.Fatalf("paths = %v", paths)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no file should be written, found %d", len(entries))
	}
}

func TestWriteExportUnknownFormat(t *testing.T) {
	if _, err := WriteExport(Export{Dir: t.TempDir(), Format: "xml"}, sampleBatch()); err == nil {
		t.Fatal("expected error")
	}
}
