package cleaner

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/dealscout/config"
)

// Fragment is the bounded slice of a results page handed to the extraction
// service.
type Fragment struct {
	// Text is the joined, truncated markup (or markdown) of the kept blocks.
	Text string

	// Blocks is how many listing blocks made it into Text.
	Blocks int

	// Matched is how many blocks the selector found on the page.
	Matched int

	// Truncated is true when Text was cut to the character budget.
	Truncated bool

	// Tokens is a rough token estimate of Text.
	Tokens int
}

// Empty reports whether there is nothing to extract from.
func (f Fragment) Empty() bool { return strings.TrimSpace(f.Text) == "" }

// Prefilter narrows a rendered page to its listing blocks.
// It is safe for concurrent use.
type Prefilter struct {
	maxBlocks   int
	maxChars    int
	format      string
	strip       []string
	mdConverter *converter.Converter
}

// NewPrefilter builds a Prefilter from the extraction policy.
func NewPrefilter(cfg config.ExtractConfig) *Prefilter {
	p := &Prefilter{
		maxBlocks: cfg.MaxBlocks,
		maxChars:  cfg.MaxFragmentChars,
		format:    cfg.FragmentFormat,
		strip:     cfg.StripSelectors,
	}
	if p.format == "markdown" {
		p.mdConverter = newMarkdownConverter()
	}
	return p
}

// Fragment selects at most maxBlocks listing blocks from rawHTML using the
// site's selector, joins them with newlines and truncates the result to the
// character budget. A page without matches yields an empty Fragment and no
// error; only an unparsable selector is an error.
func (p *Prefilter) Fragment(rawHTML, selector, sourceURL string) (Fragment, error) {
	blocks, matched, err := SelectBlocks(rawHTML, selector, p.maxBlocks, p.strip...)
	if err != nil {
		return Fragment{}, err
	}
	if len(blocks) == 0 {
		return Fragment{Matched: matched}, nil
	}

	text := strings.Join(blocks, "\n")
	if p.mdConverter != nil {
		md, err := ToMarkdown(p.mdConverter, text, sourceURL)
		if err != nil {
			return Fragment{}, fmt.Errorf("markdown conversion: %w", err)
		}
		text = md
	}

	text, truncated := Truncate(text, p.maxChars)
	return Fragment{
		Text:      text,
		Blocks:    len(blocks),
		Matched:   matched,
		Truncated: truncated,
		Tokens:    EstimateTokens(text),
	}, nil
}

// CountBlocks returns how many elements in rawHTML match selector.
func CountBlocks(rawHTML, selector string) int {
	_, matched, err := SelectBlocks(rawHTML, selector, 0)
	if err != nil {
		return 0
	}
	return matched
}

// SelectBlocks returns the outer HTML of the first limit elements matching
// selector (all of them when limit <= 0) and the total match count. Elements
// matching any strip selector are removed first.
func SelectBlocks(rawHTML, selector string, limit int, strip ...string) ([]string, int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, 0, fmt.Errorf("listing selector %q: %w", selector, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, 0, fmt.Errorf("parse page: %w", err)
	}

	for _, s := range strip {
		doc.Find(s).Remove()
	}

	matches := doc.FindMatcher(sel)
	total := matches.Length()
	if limit > 0 && total > limit {
		matches = matches.Slice(0, limit)
	}

	blocks := make([]string, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		h, err := goquery.OuterHtml(s)
		if err == nil {
			blocks = append(blocks, h)
		}
	})
	return blocks, total, nil
}

// Truncate cuts s to at most limit characters (runes), never splitting a
// multi-byte character.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// NextPageURL finds the pagination link in rawHTML and resolves it against
// pageURL. ok is false when there is no usable link or it points back to
// pageURL.
func NextPageURL(rawHTML, selector, pageURL string) (string, bool) {
	if selector == "" {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	href, exists := doc.Find(selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	next := resolved.String()
	if next == base.String() {
		return "", false
	}
	return next, true
}
