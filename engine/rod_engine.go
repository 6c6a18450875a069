package engine

import (
	"context"
	"fmt"
)

// RenderFunc is the callback that drives the browser. It is injected by
// package app to avoid a circular import (engine/ -> scraper/).
type RenderFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine is a browser-based engine that delegates to the rod scraper
// via a callback function.
type RodEngine struct {
	render       RenderFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine.
//   - render: callback that invokes the rod-based scraper (injected by package app).
//   - forceStealth: when true, the engine always sets Stealth=true on requests.
func NewRodEngine(render RenderFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		render:       render,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.render == nil {
		return nil, fmt.Errorf("%s: render func not configured", e.name)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.render(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	result.EngineName = e.name
	return result, nil
}
