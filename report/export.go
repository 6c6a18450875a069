package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/dealscout/models"
)

// ErrNoProducts is returned by WriteExport for an empty batch; nothing is
// written.
var ErrNoProducts = errors.New("no products to export")

// Columns is the CSV header, in order.
var Columns = []string{
	"name", "price", "original_price", "discount_amount", "discount_percentage",
	"description", "rating", "reviews_count", "seller", "category",
	"url", "image_url", "availability", "features",
}

// Record is the exported form of a Product, carrying the derived discount
// columns.
type Record struct {
	models.Product
	DiscountAmount     *float64 `json:"discount_amount,omitempty"`
	DiscountPercentage *float64 `json:"discount_percentage,omitempty"`
}

// NewRecord derives the discount columns for p. The percentage is the
// derived one when both prices allow it, else the listing's own.
func NewRecord(p models.Product) Record {
	r := Record{Product: p}
	if amount, ok := p.DiscountAmount(); ok {
		r.DiscountAmount = &amount
	}
	if pct, ok := p.DiscountPercent(); ok {
		r.DiscountPercentage = &pct
	}
	return r
}

func (r Record) row() []string {
	return []string{
		r.Name,
		formatFloat(&r.Price),
		formatFloat(r.OriginalPrice),
		formatFloat(r.DiscountAmount),
		formatFloat(r.DiscountPercentage),
		r.Description,
		formatFloat(r.Rating),
		formatInt(r.ReviewsCount),
		r.Seller,
		r.Category,
		r.URL,
		r.ImageURL,
		r.Availability,
		strings.Join(r.Features, "; "),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// CSVWriter writes products to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends products as rows, in the order given.
func (cw *CSVWriter) Write(products []models.Product) error {
	for _, p := range products {
		if err := cw.writer.Write(NewRecord(p).row()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

// NewJSONWriter creates filename for JSON lines output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends one JSON object per product.
func (jw *JSONWriter) Write(products []models.Product) error {
	for _, p := range products {
		if err := jw.encoder.Encode(NewRecord(p)); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

type productWriter interface {
	Write([]models.Product) error
	Close() error
}

// NewRunID returns a fresh identifier for one run.
func NewRunID() string {
	return uuid.NewString()
}

// ExportPath builds a unique export filename:
// products_<category>_<site>_<YYYYMMDD_HHMMSS>_<run>.<ext>. Empty category or
// site parts are left out.
func ExportPath(dir, category, site, ext string, now time.Time, runID string) string {
	parts := []string{"products"}
	for _, p := range []string{category, site} {
		if p = slug(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, now.Format("20060102_150405"))
	if id := strings.ReplaceAll(runID, "-", ""); id != "" {
		parts = append(parts, id[:min(8, len(id))])
	}
	return filepath.Join(dir, strings.Join(parts, "_")+"."+ext)
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Export describes where one batch is written.
type Export struct {
	Dir      string
	Format   string // "csv", "json", or "dual"
	Category string
	Site     string
	RunID    string
	Now      time.Time
}

// WriteExport writes products in ExportOrder and returns the files created.
func WriteExport(e Export, products []models.Product) ([]string, error) {
	if len(products) == 0 {
		return nil, ErrNoProducts
	}
	if e.Now.IsZero() {
		e.Now = time.Now()
	}

	var exts []string
	switch e.Format {
	case "", "csv":
		exts = []string{"csv"}
	case "json":
		exts = []string{"jsonl"}
	case "dual":
		exts = []string{"csv", "jsonl"}
	default:
		return nil, fmt.Errorf("unknown export format %q", e.Format)
	}

	ordered := ExportOrder(products)
	paths := make([]string, 0, len(exts))
	for _, ext := range exts {
		path := ExportPath(e.Dir, e.Category, e.Site, ext, e.Now, e.RunID)
		if err := writeFile(path, ext, ordered); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path, ext string, products []models.Product) error {
	var (
		w   productWriter
		err error
	)
	if ext == "csv" {
		w, err = NewCSVWriter(path)
	} else {
		w, err = NewJSONWriter(path)
	}
	if err != nil {
		return err
	}
	if err := w.Write(products); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
