package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
)

type completerFunc func(ctx context.Context, prompt string) (*Completion, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (*Completion, error) {
	return f(ctx, prompt)
}

func newTestExtractor(c Completer, timeout time.Duration) *Extractor {
	return NewExtractor(c,
		config.LLMConfig{Timeout: timeout},
		config.ExtractConfig{MaxItems: 5},
	)
}

var testContext = ExtractContext{SourceURL: "https://shop.example/?q=tv", Category: "electronics"}

func TestExtractorFencedResponse(t *testing.T) {
	var prompts []string
	ex := newTestExtractor(completerFunc(func(_ context.Context, prompt string) (*Completion, error) {
		prompts = append(prompts, prompt)
		return &Completion{Text: "```json\n{\"products\": [{\"name\": \"TV\", \"price\": 300}]}\n```"}, nil
	}), time.Second)

	items, err := ex.Extract(context.Background(), "<article>TV</article>", testContext)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "category: electronics") {
		t.Fatalf("expected one call carrying the category, got %d", len(prompts))
	}
}

func TestExtractorMalformedYieldsEmpty(t *testing.T) {
	ex := newTestExtractor(completerFunc(func(context.Context, string) (*Completion, error) {
		return &Completion{Text: `{"items": []}`}, nil
	}), time.Second)

	items, err := ex.Extract(context.Background(), "<article>TV</article>", testContext)
	if err == nil {
		t.Fatal("expected a reported error")
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", items)
	}
}

func TestExtractorServiceFailure(t *testing.T) {
	calls := 0
	ex := newTestExtractor(completerFunc(func(context.Context, string) (*Completion, error) {
		calls++
		return nil, errors.New("connection reset")
	}), time.Second)

	items, err := ex.Extract(context.Background(), "<article>TV</article>", testContext)
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeLLMFailure {
		t.Fatalf("expected %s, got %v", models.ErrCodeLLMFailure, err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want a single attempt", calls)
	}
}

func TestExtractorTimeout(t *testing.T) {
	ex := newTestExtractor(completerFunc(func(ctx context.Context, _ string) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 20*time.Millisecond)

	items, err := ex.Extract(context.Background(), "<article>TV</article>", testContext)
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeLLMTimeout {
		t.Fatalf("expected %s, got %v", models.ErrCodeLLMTimeout, err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
}

func TestExtractorEmptyFragmentSkipsService(t *testing.T) {
	ex := newTestExtractor(completerFunc(func(context.Context, string) (*Completion, error) {
		t.Fatal("service must not be called for an empty fragment")
		return nil, nil
	}), time.Second)

	items, err := ex.Extract(context.Background(), "  \n", testContext)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected zero items and no error, got %v, %v", items, err)
	}
}

func TestExtractorCapsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"products": [`)
	for i := 0; i < 8; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"name": "x", "price": 1}`)
	}
	b.WriteString("]}")

	ex := newTestExtractor(completerFunc(func(context.Context, string) (*Completion, error) {
		return &Completion{Text: b.String()}, nil
	}), time.Second)

	items, err := ex.Extract(context.Background(), "<article/>", testContext)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("items = %d, want 5", len(items))
	}
}

func TestStaticExtractor(t *testing.T) {
	s := &StaticExtractor{Responses: []string{
		`{"products": [{"name": "A", "price": 1}]}`,
		`not json`,
	}}

	items, err := s.Extract(context.Background(), "frag-1", testContext)
	if err != nil || len(items) != 1 {
		t.Fatalf("first call: %v, %v", items, err)
	}
	for i := 0; i < 2; i++ {
		items, err = s.Extract(context.Background(), "frag-n", testContext)
		if err == nil || len(items) != 0 {
			t.Fatalf("later calls should repeat the malformed response, got %v, %v", items, err)
		}
	}
	if s.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", s.Calls())
	}
	if f := s.Fragments(); f[0] != "frag-1" {
		t.Fatalf("fragments = %v", f)
	}
}
