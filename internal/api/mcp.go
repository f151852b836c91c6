package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/ticketlens/internal/pipeline"
	"github.com/kalambet/ticketlens/internal/report"
	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine   *ticketstore.Engine
	Analyzer *pipeline.Analyzer
	Version  string
}

// NewMCPServer creates an MCP server with the ticket analysis tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ticketlens",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ticketlens analyzes tickets into clarifying questions, test cases, and risks, and keeps the results searchable."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_ticket",
			mcp.WithDescription("Analyze a ticket and return clarifying questions, test cases, risk areas, and technical considerations."),
			mcp.WithString("id", mcp.Description("Ticket key, e.g. PROJ-123. A content-derived id is used when empty.")),
			mcp.WithString("title", mcp.Description("Ticket title")),
			mcp.WithString("description", mcp.Description("Ticket description")),
			mcp.WithString("priority", mcp.Description("critical, high, medium, or low")),
			mcp.WithArray("labels", mcp.Description("Ticket labels")),
			mcp.WithArray("components", mcp.Description("Affected components")),
			mcp.WithString("format", mcp.Description("Report format: markdown (default), json, text, or html")),
			mcp.WithBoolean("store", mcp.Description("Persist the analysis (default true)")),
		),
		mcpAnalyzeTicket(deps),
	)

	s.AddTool(
		mcp.NewTool("search_tickets",
			mcp.WithDescription("Search stored tickets. Every word of the query must match."),
			mcp.WithString("query", mcp.Description("Search words"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchTickets(deps),
	)

	s.AddTool(
		mcp.NewTool("ticket_statistics",
			mcp.WithDescription("Aggregate statistics over all stored tickets."),
		),
		mcpTicketStatistics(deps),
	)

	s.AddTool(
		mcp.NewTool("get_ticket_report",
			mcp.WithDescription("Render the stored analysis report of one ticket."),
			mcp.WithString("id", mcp.Description("Ticket id"), mcp.Required()),
			mcp.WithString("format", mcp.Description("markdown (default), json, text, or html")),
		),
		mcpGetTicketReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tickets://recent",
			"Recent Tickets",
			mcp.WithResourceDescription("Tickets analyzed in the last 7 days"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAnalyzeTicket(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format, err := report.ParseFormat(req.GetString("format", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		t := ticket.Ticket{
			ID:          req.GetString("id", ""),
			Title:       req.GetString("title", ""),
			Description: req.GetString("description", ""),
			Priority:    ticket.Priority(req.GetString("priority", "")),
			Labels:      req.GetStringSlice("labels", nil),
			Components:  req.GetStringSlice("components", nil),
		}

		out, err := deps.Analyzer.Run(ctx, pipeline.Request{
			Ticket:  t,
			NoStore: !req.GetBool("store", true),
		})
		if errors.Is(err, ticket.ErrInsufficientData) {
			return mcpError("title or description is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		text, err := deps.Engine.Renderer().Render(report.Document{Ticket: out.Ticket, Result: out.Result}, format)
		if err != nil {
			return mcpError(fmt.Sprintf("rendering report: %v", err)), nil
		}
		return mcpText(text), nil
	}
}

func mcpSearchTickets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 0)
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Engine.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if results == nil {
			results = []storage.TicketSummary{}
		}
		return mcpJSON(results)
	}
}

func mcpTicketStatistics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Engine.Statistics(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("statistics failed: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpGetTicketReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		format, err := report.ParseFormat(req.GetString("format", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		text, err := deps.Engine.Report(ctx, id, format)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("ticket %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to render report: %v", err)), nil
		}
		return mcpText(text), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tickets, err := deps.Engine.Recent(ctx, 7)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent tickets: %w", err)
		}
		if tickets == nil {
			tickets = []storage.TicketSummary{}
		}

		b, err := json.Marshal(tickets)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tickets: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
