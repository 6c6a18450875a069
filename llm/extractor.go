package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/models"
)

// ExtractContext is the per-fragment context stated in the prompt.
type ExtractContext struct {
	SourceURL string
	Category  string
}

// StructuredExtractor turns a listing fragment into raw items.
//
// Implementations never fail the caller's batch: on any failure they return
// an empty, non-nil slice together with an error describing what went wrong,
// which callers log and count as "zero items extracted".
type StructuredExtractor interface {
	Extract(ctx context.Context, fragment string, ec ExtractContext) ([]models.RawItem, error)
}

// Completer sends one prompt to a text-generation service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Extractor is the StructuredExtractor backed by a real text-generation
// service. Each fragment gets exactly one attempt, bounded by the timeout.
type Extractor struct {
	completer Completer
	timeout   time.Duration
	maxItems  int
}

// NewExtractor wires a Completer to the extraction policy.
func NewExtractor(c Completer, llmCfg config.LLMConfig, extractCfg config.ExtractConfig) *Extractor {
	return &Extractor{
		completer: c,
		timeout:   llmCfg.Timeout,
		maxItems:  extractCfg.MaxItems,
	}
}

// Extract builds the prompt, calls the service once and decodes the reply.
// An empty fragment short-circuits to zero items without calling the service.
func (e *Extractor) Extract(ctx context.Context, fragment string, ec ExtractContext) ([]models.RawItem, error) {
	if strings.TrimSpace(fragment) == "" {
		return []models.RawItem{}, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(PromptInput{
		Category:  ec.Category,
		SourceURL: ec.SourceURL,
		Fragment:  fragment,
		MaxItems:  e.maxItems,
	})

	start := time.Now()
	out, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return []models.RawItem{}, classifyCompleteErr(ctx, err)
	}
	slog.Debug("extraction response received",
		"url", ec.SourceURL,
		"durationMs", time.Since(start).Milliseconds(),
		"promptTokens", out.Usage.PromptTokens,
		"completionTokens", out.Usage.CompletionTokens,
	)

	items, err := DecodeResponse(out.Text)
	if err != nil {
		return []models.RawItem{}, err
	}
	return capItems(items, e.maxItems, ec.SourceURL), nil
}

func classifyCompleteErr(ctx context.Context, err error) error {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeLLMTimeout, "extraction timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeLLMFailure, "extraction call failed", err)
}

func capItems(items []models.RawItem, limit int, sourceURL string) []models.RawItem {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	slog.Debug("extraction returned more items than requested, dropping extras",
		"url", sourceURL, "returned", len(items), "kept", limit,
	)
	return items[:limit]
}

// StaticExtractor is a deterministic StructuredExtractor that decodes canned
// responses instead of calling a service. Call n gets Responses[n], the last
// response repeating once they run out. A non-nil Err fails every call.
type StaticExtractor struct {
	Responses []string
	Err       error

	mu        sync.Mutex
	calls     int
	fragments []string
}

// Extract implements StructuredExtractor.
func (s *StaticExtractor) Extract(_ context.Context, fragment string, _ ExtractContext) ([]models.RawItem, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.fragments = append(s.fragments, fragment)
	s.mu.Unlock()

	if s.Err != nil {
		return []models.RawItem{}, s.Err
	}
	if len(s.Responses) == 0 {
		return []models.RawItem{}, nil
	}
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	items, err := DecodeResponse(s.Responses[i])
	if err != nil {
		return []models.RawItem{}, err
	}
	return items, nil
}

// Calls returns how many times Extract ran.
func (s *StaticExtractor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Fragments returns the fragments Extract received, in call order.
func (s *StaticExtractor) Fragments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fragments...)
}
