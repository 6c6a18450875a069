package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/deals"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/pipeline"
)

// Deals returns a handler for POST /api/v1/deals.
//
// The request runs synchronously; exports are left to the CLI and the
// webhook, if configured, fires in the background.
func Deals(svc *deals.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DealsRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid request body: "+err.Error(), err))
				return
			}
		}
		if req.Site == "" {
			req.Site = pipeline.All
		}
		if req.Category == "" {
			req.Category = pipeline.All
		}

		run, err := svc.Run(c.Request.Context(), req, deals.Options{AsyncNotify: true})
		if err != nil {
			slog.Warn("deals request failed", "site", req.Site, "category", req.Category, "error", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, run)
	}
}

// respondError sends a structured error response with the matching status.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeUnknownSite, models.ErrCodeUnknownCategory:
		return http.StatusBadRequest
	case models.ErrCodeTimeout, models.ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	case models.ErrCodeNavigation:
		return http.StatusBadGateway
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
