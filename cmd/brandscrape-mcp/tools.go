package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/scrapelog"
)

// apiClient calls the brandscrape HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Longer than the server's own scrape deadline.
		http: &http.Client{Timeout: 16 * time.Minute},
	}
}

// do sends a request and decodes the JSON answer into out.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *apiClient) handleScrapeRetailer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	url, err := request.RequireString("brand_list_url")
	if err != nil {
		return mcp.NewToolResultError("brand_list_url is required"), nil
	}

	payload := map[string]any{"name": name, "brand_list_url": url}
	if v, ok := request.GetArguments()["max_brands"]; ok {
		payload["max_brands"] = v
	}

	var resp models.ScrapeResponse
	if err := c.do(ctx, http.MethodPost, "/scrape", payload, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if failed := scrapeFailure(resp); failed != "" {
		return mcp.NewToolResultError(failed), nil
	}
	return mcp.NewToolResultText(formatScrape(resp)), nil
}

func (c *apiClient) handleScrapeRetailers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	raw, ok := args["retailers"].([]any)
	if !ok || len(raw) < 2 {
		return mcp.NewToolResultError("retailers must be an array of at least two {name, brand_list_url} objects"), nil
	}
	tasks := make([]models.RetailerTask, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("retailers[%d] must be an object", i)), nil
		}
		name, _ := obj["name"].(string)
		url, _ := obj["brand_list_url"].(string)
		tasks = append(tasks, models.RetailerTask{Name: name, ListingURL: url})
	}

	payload := map[string]any{"retailers": tasks}
	for _, key := range []string{"max_brands", "max_brands_per_retailer"} {
		if v, ok := args[key]; ok {
			payload[key] = v
		}
	}

	var resp models.ScrapeResponse
	if err := c.do(ctx, http.MethodPost, "/scrape-multiple", payload, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Detail != nil {
		return mcp.NewToolResultError(scrapeFailure(resp)), nil
	}
	return mcp.NewToolResultText(formatScrape(resp)), nil
}

func (c *apiClient) handleReliability(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/reliability"
	if days := request.GetInt("days", 0); days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}

	var report scrapelog.Report
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(report.BySource) == 0 {
		return mcp.NewToolResultText("No site results in the scrape logs."), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reliability over %d log files:\n\n", len(report.LogFiles))
	for _, s := range report.BySource {
		fmt.Fprintf(&sb, "- %s: %d/%d runs ok (%.1f%%), %d brands, %d blocked",
			s.Source, s.Successes, s.Runs, s.SuccessRatePct, s.TotalBrands, s.BlockedCount)
		if s.LastError != nil {
			fmt.Fprintf(&sb, ", last error: %s", *s.LastError)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// scrapeFailure returns the error text of a failed scrape, "" on success.
func scrapeFailure(resp models.ScrapeResponse) string {
	if resp.Detail != nil {
		return fmt.Sprintf("[%s] %s", resp.Detail.Code, resp.Detail.Message)
	}
	if !resp.OK {
		if resp.Error != "" {
			return resp.Error
		}
		return "no brands extracted"
	}
	return ""
}

func formatScrape(resp models.ScrapeResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d brands extracted", resp.BrandsExtracted)
	if resp.PartialTimeout {
		sb.WriteString(" (partial: server timeout)")
	}
	sb.WriteString("\n")

	if len(resp.ResultsByRetailer) > 0 {
		sb.WriteString("\nPer retailer:\n")
		for _, r := range resp.ResultsByRetailer {
			fmt.Fprintf(&sb, "- %s: %d", r.Source, r.Count)
			if r.Error != "" {
				fmt.Fprintf(&sb, " (%s)", r.Error)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nBrands:\n")
	for _, r := range resp.Records {
		fmt.Fprintf(&sb, "- %s [%s]\n", r.Brand, r.Source)
	}
	return sb.String()
}
