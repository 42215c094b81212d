// Package handlers provides the MCP tools and resources of the M.A.C.S.
// service surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/mcp"
	"github.com/zorak1103/ha-macs/internal/reconcile"
)

// EntitiesURI is the resource holding the catalog snapshot.
const EntitiesURI = "macs://entities"

// Reconciler re-runs startup reconciliation. *reconcile.Reconciler
// implements it.
type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Result, error)
}

// MacsHandlers exposes the dispatch table and the catalog over MCP.
type MacsHandlers struct {
	dispatcher *dispatch.Dispatcher
	catalog    *catalog.Catalog
	reconciler Reconciler
}

// NewMacsHandlers creates the handlers. reconciler may be nil, in which case
// the reconcile tool is not registered.
func NewMacsHandlers(d *dispatch.Dispatcher, c *catalog.Catalog, reconciler Reconciler) *MacsHandlers {
	return &MacsHandlers{dispatcher: d, catalog: c, reconciler: reconciler}
}

// RegisterTools registers one tool per service plus the catalog tools.
func (h *MacsHandlers) RegisterTools(registry *mcp.Registry) {
	for _, svc := range h.dispatcher.Services() {
		registry.RegisterTool(serviceTool(svc), h.serviceHandler(svc))
	}
	registry.RegisterTool(h.listEntitiesTool(), h.handleListEntities)
	if h.reconciler != nil {
		registry.RegisterTool(h.reconcileTool(), h.handleReconcile)
	}
}

// RegisterResources registers the entity snapshot resource.
func (h *MacsHandlers) RegisterResources(registry *mcp.Registry) {
	registry.RegisterResource(mcp.Resource{
		URI:         EntitiesURI,
		Name:        "M.A.C.S. entities",
		Description: "Current state of every M.A.C.S. entity",
		MimeType:    "application/json",
	}, h.readEntities)
}

func serviceTool(svc dispatch.Service) mcp.Tool {
	return mcp.Tool{
		Name:        svc.Name,
		Description: svc.Description,
		InputSchema: mcp.JSONSchema{
			Type:       "object",
			Properties: map[string]mcp.JSONSchema{svc.Arg: argumentSchema(svc.Definition())},
			Required:   []string{svc.Arg},
		},
	}
}

func argumentSchema(def catalog.Definition) mcp.JSONSchema {
	switch c := def.Constraint.(type) {
	case catalog.Enum:
		return mcp.JSONSchema{
			Type:        "string",
			Description: "One of the listed options (case-insensitive)",
			Enum:        c.Options,
		}
	case catalog.Range:
		lo, hi := c.Min, c.Max
		return mcp.JSONSchema{
			Type:        "number",
			Description: fmt.Sprintf("Value between %v and %v", c.Min, c.Max),
			Minimum:     &lo,
			Maximum:     &hi,
		}
	default:
		return mcp.JSONSchema{
			Description: "true/false, on/off, yes/no or 1/0",
			AnyOf: []mcp.JSONSchema{
				{Type: "boolean"},
				{Type: "string"},
				{Type: "integer"},
			},
		}
	}
}

func (h *MacsHandlers) serviceHandler(svc dispatch.Service) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (*mcp.ToolsCallResult, error) {
		raw, ok := args[svc.Arg]
		if !ok {
			return mcp.ErrorResult(fmt.Sprintf("Missing required argument %q", svc.Arg)), nil
		}

		if err := h.dispatcher.Call(ctx, svc.Name, raw); err != nil {
			if errors.Is(err, dispatch.ErrInvalidArgument) {
				return mcp.ErrorResult(fmt.Sprintf("Invalid input: %v", err)), nil
			}
			return mcp.ErrorResult(fmt.Sprintf("Error calling %s: %v", svc.Name, err)), nil
		}
		return mcp.TextResult(fmt.Sprintf("%s: %s set to %v", svc.Name, svc.Target, raw)), nil
	}
}

func (h *MacsHandlers) listEntitiesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_macs_entities",
		Description: "List every M.A.C.S. entity with its current state and allowed values",
		InputSchema: mcp.JSONSchema{
			Type: "object",
			Properties: map[string]mcp.JSONSchema{
				"kind": {
					Type:        "string",
					Description: "Only list entities of this kind",
					Enum:        []string{string(catalog.KindSelect), string(catalog.KindNumber), string(catalog.KindSwitch)},
				},
			},
		},
	}
}

func (h *MacsHandlers) handleListEntities(_ context.Context, args map[string]any) (*mcp.ToolsCallResult, error) {
	snapshots := h.catalog.Snapshot()
	if kind, _ := args["kind"].(string); kind != "" {
		filtered := make([]catalog.Snapshot, 0, len(snapshots))
		for _, s := range snapshots {
			if string(s.Kind) == kind {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
	}

	output, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("Error formatting entities: %v", err)), nil
	}
	return mcp.TextResult(string(output)), nil
}

func (h *MacsHandlers) reconcileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reconcile",
		Description: "Migrate drifted entity ids back to their canonical form and register the dashboard card resource",
		InputSchema: mcp.JSONSchema{Type: "object"},
	}
}

func (h *MacsHandlers) handleReconcile(ctx context.Context, _ map[string]any) (*mcp.ToolsCallResult, error) {
	result, err := h.reconciler.Run(ctx)
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("Reconciliation failed: %v", err)), nil
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("Error formatting result: %v", err)), nil
	}
	return mcp.TextResult(string(output)), nil
}

func (h *MacsHandlers) readEntities(_ context.Context, uri string) (*mcp.ResourcesReadResult, error) {
	output, err := json.Marshal(h.catalog.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encoding entities: %w", err)
	}
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{{URI: uri, MimeType: "application/json", Text: string(output)}},
	}, nil
}
