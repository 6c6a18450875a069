package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// AcceptFunc decides whether a fetched page is usable. A non-nil error
// rejects the result and moves the chain to its next engine.
type AcceptFunc func(*FetchResult) error

// Chain tries engines in order and returns the first accepted result.
// Engines run one at a time, so a unit never has more than one fetch in
// flight.
type Chain struct {
	engines []Engine
	accept  AcceptFunc
}

// NewChain creates a Chain. A nil accept takes every successful fetch.
func NewChain(accept AcceptFunc, engines ...Engine) *Chain {
	return &Chain{engines: engines, accept: accept}
}

func (c *Chain) Name() string {
	if len(c.engines) == 1 {
		return c.engines[0].Name()
	}
	name := "chain"
	for _, e := range c.engines {
		name += ":" + e.Name()
	}
	return name
}

// Fetch runs the engines in order. It returns the last error when none of
// them produced an accepted result.
func (c *Chain) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	var lastErr error
	for _, eng := range c.engines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL)
		result, err := eng.Fetch(ctx, req)
		if err == nil && c.accept != nil {
			err = c.accept(result)
		}
		if err != nil {
			slog.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
			lastErr = err
			continue
		}
		if result.EngineName == "" {
			result.EngineName = eng.Name()
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("chain: no engines configured for %s", req.URL)
	}
	return nil, lastErr
}
