package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// dealsRequest mirrors the dealscout API request model.
type dealsRequest struct {
	Site      string `json:"site,omitempty"`
	Category  string `json:"category,omitempty"`
	Search    string `json:"search,omitempty"`
	SkipDelay bool   `json:"skip_delay,omitempty"`
	Dedup     string `json:"dedup,omitempty"`
}

// dealsResponse mirrors the parts of the dealscout run report the tool shows.
type dealsResponse struct {
	RunID string `json:"run_id"`
	Units []struct {
		Site     string `json:"site"`
		Category string `json:"category"`
		Search   string `json:"search"`
		Products int    `json:"products"`
		Rejected int    `json:"rejected"`
		Errors   []struct {
			Stage   string `json:"stage"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
		Text string `json:"summary_text"`
	} `json:"units"`
	Combined *struct {
		Products int    `json:"products"`
		Text     string `json:"summary_text"`
	} `json:"combined"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("DEALSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("DEALSCOUT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "DEALSCOUT_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"dealscout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	findDealsTool := mcp.NewTool("find_deals",
		mcp.WithDescription("Search configured e-commerce sites for a product category or search term and return the best deals, ranked by discount."),
		mcp.WithString("site",
			mcp.Description("Site key to search, or 'all' (default) for every configured site"),
		),
		mcp.WithString("category",
			mcp.Description("Product category to search, or 'all' (default) for every configured category"),
		),
		mcp.WithString("search",
			mcp.Description("Custom search term used instead of the category name"),
		),
		mcp.WithBoolean("skip_delay",
			mcp.Description("Skip the politeness delay between requests to the same site"),
		),
		mcp.WithString("dedup",
			mcp.Description("Duplicate policy: 'none' (default), 'url', or 'similar'"),
			mcp.Enum("none", "url", "similar"),
		),
	)
	s.AddTool(findDealsTool, handleFindDeals(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleFindDeals(apiURL, apiKey string) server.ToolHandlerFunc {
	// A full run can visit many pages with a delay between each.
	client := &http.Client{Timeout: 30 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := dealsRequest{
			Site:      request.GetString("site", ""),
			Category:  request.GetString("category", ""),
			Search:    request.GetString("search", ""),
			SkipDelay: request.GetBool("skip_delay", false),
			Dedup:     request.GetString("dedup", ""),
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/deals", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("deals request failed: %v", err)), nil
		}

		var dealsResp dealsResponse
		if err := json.Unmarshal(respBody, &dealsResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if dealsResp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", dealsResp.Error.Code, dealsResp.Error.Message)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Run %s\n", dealsResp.RunID)
		for _, u := range dealsResp.Units {
			fmt.Fprintf(&sb, "\n--- %s / %s (%q): %d products, %d rejected ---\n", u.Site, u.Category, u.Search, u.Products, u.Rejected)
			for _, e := range u.Errors {
				fmt.Fprintf(&sb, "error at %s: [%s] %s\n", e.Stage, e.Code, e.Message)
			}
			sb.WriteString(u.Text)
			sb.WriteString("\n")
		}
		if c := dealsResp.Combined; c != nil {
			fmt.Fprintf(&sb, "\n--- Overall best deals (%d products) ---\n%s\n", c.Products, c.Text)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

// apiPost sends a POST request to the dealscout API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
