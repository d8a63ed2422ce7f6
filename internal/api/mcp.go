package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/tools"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Tools   *tools.Service
	Version string
}

// NewMCPServer creates an MCP server exposing tool and snapshot operations.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"toolshelf",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("toolshelf stores single-file HTML tools with versioned snapshots. Read a tool's version before updating it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_tools",
			mcp.WithDescription("List stored tools, newest first. Optionally search by text or filter by tag."),
			mcp.WithString("query", mcp.Description("Search text; supports name:, desc: and tag: prefixes")),
			mcp.WithString("tag", mcp.Description("Only return tools with this tag")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
		),
		mcpListTools(deps),
	)

	s.AddTool(
		mcp.NewTool("get_tool",
			mcp.WithDescription("Get a tool's metadata and current HTML content."),
			mcp.WithString("id", mcp.Description("Tool ID"), mcp.Required()),
		),
		mcpGetTool(deps),
	)

	s.AddTool(
		mcp.NewTool("update_tool_content",
			mcp.WithDescription("Replace a tool's HTML content. The previous content is kept as an automatic snapshot. Fails if version is stale."),
			mcp.WithString("id", mcp.Description("Tool ID"), mcp.Required()),
			mcp.WithString("html_content", mcp.Description("New HTML content"), mcp.Required()),
			mcp.WithNumber("version", mcp.Description("The tool version the edit is based on"), mcp.Required()),
		),
		mcpUpdateToolContent(deps),
	)

	s.AddTool(
		mcp.NewTool("list_snapshots",
			mcp.WithDescription("List a tool's snapshots, newest first."),
			mcp.WithString("id", mcp.Description("Tool ID"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of snapshots (default 20)")),
		),
		mcpListSnapshots(deps),
	)

	s.AddTool(
		mcp.NewTool("create_snapshot",
			mcp.WithDescription("Save the tool's current content as a named manual snapshot."),
			mcp.WithString("id", mcp.Description("Tool ID"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Optional snapshot label")),
		),
		mcpCreateSnapshot(deps),
	)

	s.AddTool(
		mcp.NewTool("restore_snapshot",
			mcp.WithDescription("Restore a tool's content from one of its snapshots."),
			mcp.WithString("id", mcp.Description("Tool ID"), mcp.Required()),
			mcp.WithString("snapshot_id", mcp.Description("Snapshot ID"), mcp.Required()),
		),
		mcpRestoreSnapshot(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"toolshelf://tags",
			"Tags",
			mcp.WithResourceDescription("All tags in use, with tool counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTags(deps),
	)

	return s
}

func mcpListTools(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		list, err := deps.Tools.List(ctx, req.GetString("query", ""), storage.ListOptions{
			Tag:   req.GetString("tag", ""),
			Limit: limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("listing tools failed: %v", err)), nil
		}
		if list == nil {
			list = []storage.Tool{}
		}
		return mcpJSON(list)
	}
}

func mcpGetTool(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		tool, content, err := deps.Tools.ReadContent(ctx, id)
		if err != nil {
			return mcpFailure("get_tool", err), nil
		}
		return mcpJSON(struct {
			storage.Tool
			HTMLContent string `json:"html_content"`
		}{tool, string(content)})
	}
}

func mcpUpdateToolContent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		content, err := req.RequireString("html_content")
		if err != nil {
			return mcpError("html_content is required"), nil
		}
		version, err := req.RequireInt("version")
		if err != nil {
			return mcpError("version is required"), nil
		}
		tool, err := deps.Tools.UpdateContent(ctx, id, content, version)
		if err != nil {
			return mcpFailure("update_tool_content", err), nil
		}
		return mcpJSON(tool)
	}
}

func mcpListSnapshots(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		snaps, err := deps.Tools.ListSnapshots(ctx, id, limit)
		if err != nil {
			return mcpFailure("list_snapshots", err), nil
		}

		type snapshotSummary struct {
			ID        string               `json:"id"`
			Kind      storage.SnapshotKind `json:"snapshot_type"`
			Label     *string              `json:"name"`
			CreatedAt string               `json:"created_at"`
			Size      int                  `json:"size_bytes"`
		}
		out := make([]snapshotSummary, len(snaps))
		for i, sn := range snaps {
			out[i] = snapshotSummary{
				ID:        sn.ID,
				Kind:      sn.Kind,
				Label:     sn.Label,
				CreatedAt: sn.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				Size:      len(sn.Content),
			}
		}
		return mcpJSON(out)
	}
}

func mcpCreateSnapshot(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		var label *string
		if name := req.GetString("name", ""); name != "" {
			label = &name
		}
		sn, err := deps.Tools.CreateSnapshot(ctx, id, label)
		if err != nil {
			return mcpFailure("create_snapshot", err), nil
		}
		return mcpText(fmt.Sprintf("Created snapshot %s", sn.ID)), nil
	}
}

func mcpRestoreSnapshot(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		snapshotID, err := req.RequireString("snapshot_id")
		if err != nil {
			return mcpError("snapshot_id is required"), nil
		}
		res, err := deps.Tools.Restore(ctx, id, snapshotID)
		if err != nil {
			return mcpFailure("restore_snapshot", err), nil
		}
		return mcpText(fmt.Sprintf("Restored snapshot %s; tool is now at version %d", snapshotID, res.Tool.Version)), nil
	}
}

func mcpResourceTags(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tags, err := deps.Tools.SuggestTags(ctx, "", 500)
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		if tags == nil {
			tags = []storage.TagCount{}
		}
		b, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
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

// mcpFailure turns a service error into a tool error the model can act on.
func mcpFailure(op string, err error) *mcp.CallToolResult {
	var lockErr *storage.OptimisticLockError
	switch {
	case errors.As(err, &lockErr):
		return mcpError(fmt.Sprintf("version conflict: tool is at version %d, not %d; re-read it with get_tool and retry", lockErr.CurrentVersion, lockErr.ExpectedVersion))
	case errors.Is(err, storage.ErrNotFound):
		return mcpError(fmt.Sprintf("%s: not found", op))
	default:
		return mcpError(fmt.Sprintf("%s failed: %v", op, err))
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
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
