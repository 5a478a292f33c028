// Command brandscrape-mcp exposes the brandscrape HTTP API as MCP tools
// over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("BRANDSCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000"
	}
	c := newClient(apiURL, os.Getenv("BRANDSCRAPE_API_KEY"))

	s := server.NewMCPServer(
		"brandscrape",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeRetailerTool := mcp.NewTool("scrape_retailer",
		mcp.WithDescription("Extract brand names from one retailer's brand listing page. Renders the page in a headless browser and follows pagination."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Retailer name, used as the source of every record"),
		),
		mcp.WithString("brand_list_url",
			mcp.Required(),
			mcp.Description("URL of the retailer's brands / designers A-Z page"),
		),
		mcp.WithNumber("max_brands",
			mcp.Description("Maximum number of brands to return (default: 500, 0 for no limit)"),
		),
	)
	s.AddTool(scrapeRetailerTool, c.handleScrapeRetailer)

	scrapeRetailersTool := mcp.NewTool("scrape_retailers",
		mcp.WithDescription("Extract brand names from several retailers in one run and report results per retailer."),
		mcp.WithArray("retailers",
			mcp.Required(),
			mcp.Description("At least two retailers, each an object with 'name' and 'brand_list_url'"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":           map[string]any{"type": "string"},
					"brand_list_url": map[string]any{"type": "string"},
				},
				"required": []string{"name", "brand_list_url"},
			}),
		),
		mcp.WithNumber("max_brands",
			mcp.Description("Maximum number of brands across all retailers (0 for no limit)"),
		),
		mcp.WithNumber("max_brands_per_retailer",
			mcp.Description("Maximum number of brands per retailer; overrides max_brands"),
		),
	)
	s.AddTool(scrapeRetailersTool, c.handleScrapeRetailers)

	reliabilityTool := mcp.NewTool("reliability_report",
		mcp.WithDescription("Per-retailer success rate, brand totals and blocking counts from the scrape logs."),
		mcp.WithNumber("days",
			mcp.Description("Only include the last N days of logs (default: all)"),
		),
	)
	s.AddTool(reliabilityTool, c.handleReliability)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
