package models

import "fmt"

// Error codes used in logs, API responses and internal error handling.
const (
	ErrCodeTimeout         = "SCRAPE_TIMEOUT"
	ErrCodeNavigation      = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeNoContent       = "NO_CONTENT"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeUnknownSite     = "UNKNOWN_SITE"
	ErrCodeUnknownCategory = "UNKNOWN_CATEGORY"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"

	// Extraction-service error codes.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
	ErrCodeLLMTimeout     = "LLM_TIMEOUT"
	ErrCodeLLMMalformed   = "LLM_MALFORMED_RESPONSE"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// ValidationError reports why one raw item was rejected. The batch it came
// from is unaffected.
type ValidationError struct {
	Index     int     `json:"index"`
	Field     string  `json:"field,omitempty"`
	Reason    string  `json:"reason"`
	SourceURL string  `json:"source_url,omitempty"`
	Item      RawItem `json:"item,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("item %d: %s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}
