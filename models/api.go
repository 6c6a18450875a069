package models

// DealsRequest is the body of POST /api/v1/deals.
type DealsRequest struct {
	// Site is a configured site key or "all". default: "all"
	Site string `json:"site"`

	// Category is a configured category or "all". default: "all"
	Category string `json:"category"`

	// Search replaces the category as the search term when set.
	Search string `json:"search,omitempty"`

	// SkipDelay disables pacing between visits to the same site.
	SkipDelay bool `json:"skip_delay,omitempty"`

	// Dedup overrides the configured duplicate policy: none, url, similar.
	Dedup string `json:"dedup,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string    `json:"status"`
	Uptime float64   `json:"uptime_seconds"`
	Pool   PoolStats `json:"pool"`
	Sites  []string  `json:"sites"`
}

// PoolStats describes the browser page pool.
type PoolStats struct {
	MaxPages      int   `json:"max_pages"`
	ActivePages   int   `json:"active_pages"`
	PagesRendered int64 `json:"pages_rendered"`
}
