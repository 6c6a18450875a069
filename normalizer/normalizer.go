// Package normalizer promotes raw extracted items to validated Products.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/dealscout/models"
)

// Normalizer validates the raw items extracted from one page.
type Normalizer struct {
	// SourceURL is the page the items came from; relative URLs resolve
	// against its origin.
	SourceURL string

	// Category fills Product.Category when the item carries none.
	Category string
}

// Normalize validates a single raw item against sourceURL.
func Normalize(item models.RawItem, sourceURL string) (*models.Product, error) {
	return Normalizer{SourceURL: sourceURL}.Normalize(item)
}

// Batch normalizes every item independently. A rejected item never affects
// the others; each rejection is returned with its index and content.
func (n Normalizer) Batch(items []models.RawItem) ([]models.Product, []models.ValidationError) {
	products := make([]models.Product, 0, len(items))
	var rejected []models.ValidationError

	for i, item := range items {
		p, err := n.Normalize(item)
		if err != nil {
			ve := toValidationError(err)
			ve.Index = i
			ve.SourceURL = n.SourceURL
			ve.Item = item
			rejected = append(rejected, ve)
			continue
		}
		products = append(products, *p)
	}
	return products, rejected
}

// Normalize validates one item. The returned error is a *models.ValidationError.
func (n Normalizer) Normalize(item models.RawItem) (*models.Product, error) {
	if item == nil {
		return nil, &models.ValidationError{Reason: "item is not an object"}
	}

	name, err := requiredString(item, "name")
	if err != nil {
		return nil, err
	}

	if !item.Has("price") {
		return nil, fieldErr("price", "required field is missing")
	}
	price, err := toFloat(item["price"])
	if err != nil {
		return nil, fieldErr("price", err.Error())
	}
	if price < 0 {
		return nil, fieldErr("price", "must not be negative")
	}

	rawURL, err := requiredString(item, "url")
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:  name,
		Price: price,
		URL:   ResolveURL(rawURL, n.SourceURL),
	}

	if p.OriginalPrice, err = optionalFloat(item, "original_price"); err != nil {
		return nil, err
	}
	if p.DiscountPercentage, err = optionalFloat(item, "discount_percentage"); err != nil {
		return nil, err
	}
	if p.DiscountPercentage != nil && *p.DiscountPercentage < 0 {
		return nil, fieldErr("discount_percentage", "must not be negative")
	}
	if p.Rating, err = optionalFloat(item, "rating"); err != nil {
		return nil, err
	}
	if p.ReviewsCount, err = optionalCount(item, "reviews_count"); err != nil {
		return nil, err
	}

	p.Description = optionalString(item, "description")
	p.Seller = optionalString(item, "seller")
	p.Category = optionalString(item, "category")
	if p.Category == "" {
		p.Category = n.Category
	}
	p.Availability = optionalString(item, "availability")
	if img := optionalString(item, "image_url"); img != "" {
		p.ImageURL = ResolveURL(img, n.SourceURL)
	}
	p.Features = features(item["features"])

	return p, nil
}

// ResolveURL makes raw absolute. Values starting with "http" are returned
// unchanged; anything else is joined to the scheme and host of sourceURL.
func ResolveURL(raw, sourceURL string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http") {
		return raw
	}

	scheme, origin := originOf(sourceURL)
	if strings.HasPrefix(raw, "//") && scheme != "" {
		return scheme + ":" + raw
	}
	if strings.HasPrefix(raw, "/") {
		return origin + raw
	}
	return origin + "/" + raw
}

func originOf(sourceURL string) (scheme, origin string) {
	if u, err := url.Parse(sourceURL); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme, u.Scheme + "://" + u.Host
	}
	// Fall back to the first three slash-separated segments.
	parts := strings.SplitN(sourceURL, "/", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.TrimSuffix(parts[0], ":"), strings.Join(parts, "/")
}

func fieldErr(field, reason string) *models.ValidationError {
	return &models.ValidationError{Field: field, Reason: reason}
}

func toValidationError(err error) models.ValidationError {
	if ve, ok := err.(*models.ValidationError); ok {
		return *ve
	}
	return models.ValidationError{Reason: err.Error()}
}

func requiredString(item models.RawItem, key string) (string, error) {
	if !item.Has(key) {
		return "", fieldErr(key, "required field is missing")
	}
	s, ok := asString(item[key])
	if !ok {
		return "", fieldErr(key, fmt.Sprintf("expected a string, got %T", item[key]))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fieldErr(key, "required field is empty")
	}
	return s, nil
}

func optionalString(item models.RawItem, key string) string {
	s, _ := asString(item[key])
	return strings.TrimSpace(s)
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

func optionalFloat(item models.RawItem, key string) (*float64, error) {
	if !item.Has(key) || isBlank(item[key]) {
		return nil, nil
	}
	f, err := toFloat(item[key])
	if err != nil {
		return nil, fieldErr(key, err.Error())
	}
	return &f, nil
}

func optionalCount(item models.RawItem, key string) (*int, error) {
	if !item.Has(key) || isBlank(item[key]) {
		return nil, nil
	}
	f, err := toFloat(item[key])
	if err != nil {
		return nil, fieldErr(key, err.Error())
	}
	if f < 0 || f != math.Trunc(f) {
		return nil, fieldErr(key, "must be a non-negative whole number")
	}
	if f > math.MaxInt32 {
		return nil, fieldErr(key, "is out of range")
	}
	c := int(f)
	return &c, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toFloat coerces a JSON number or a numeric-looking string such as
// "KSh 1,299" or "25%" to a float.
func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t.String())
		}
		f = n
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		n, err := parseNumeric(t)
		if err != nil {
			return 0, err
		}
		f = n
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

var numericToken = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?|-?\.\d+`)

// parseNumeric reads s as a plain number when it is one, otherwise the
// first number in it, ignoring currency symbols, thousands separators and
// trailing units.
func parseNumeric(s string) (float64, error) {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f, nil
	}
	tok := numericToken.FindString(s)
	if tok == "" {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

func features(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			s, ok := asString(e)
			if !ok {
				s = fmt.Sprint(e)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
