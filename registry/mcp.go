package registry

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/paperbird/harvest/kit"
)

// RegisterMCP registers registry tools on an MCP server.
func (r *Registry) RegisterMCP(srv *mcp.Server) {
	r.registerImportTool(srv)
	r.registerSnapshotTool(srv)
	r.registerListTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- import_preset ---

type importRequest struct {
	Config json.RawMessage `json:"config"`
	// Activate defaults to true when omitted; imports go live unless the
	// caller opts out.
	Activate *bool `json:"activate,omitempty"`
}

func (r *Registry) registerImportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "harvest_import_preset",
		Description: "Validate and store a preset document. Rejects unknown keys and bad selectors with a path-qualified error. The imported version is activated unless activate is false.",
		InputSchema: inputSchema(map[string]any{
			"config":   map[string]any{"type": "object", "description": "The preset JSON document"},
			"activate": map[string]any{"type": "boolean", "description": "Activate this version after import (default true)"},
		}, []string{"config"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*importRequest)
		activate := rr.Activate == nil || *rr.Activate
		rec, created, err := r.Import(ctx, rr.Config, activate)
		if err != nil {
			return nil, err
		}
		return ImportResponse{Preset: rec, Created: created}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr importRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get_snapshot ---

type snapshotRequest struct {
	Name string `json:"name"`
}

func (r *Registry) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "harvest_get_snapshot",
		Description: "Get the active version of a preset as an immutable snapshot (config plus checksum).",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Preset name"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*snapshotRequest)
		return r.Snapshot(ctx, rr.Name)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr snapshotRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list_presets ---

type listRequest struct {
	Name string `json:"name,omitempty"`
}

func (r *Registry) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "harvest_list_presets",
		Description: "List stored preset versions with status and checksum, optionally filtered by name.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Filter to one preset name"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*listRequest)
		return r.List(ctx, rr.Name)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr listRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
