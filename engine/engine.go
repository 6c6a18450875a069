package engine

import (
	"context"
	"time"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod").
	Name() string

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string

	// Timeout bounds the whole fetch. Zero means the engine's default.
	Timeout time.Duration

	// Stealth asks browser engines to inject anti-detection evasions.
	Stealth bool
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}

// Func adapts a plain function to the Engine interface.
type Func struct {
	EngineName string
	FetchFunc  func(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

func (f Func) Name() string { return f.EngineName }

func (f Func) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	return f.FetchFunc(ctx, req)
}
