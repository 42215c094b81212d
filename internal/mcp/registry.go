package mcp

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/zorak1103/ha-macs/internal/logging"
)

// ToolHandler handles one tool call.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolsCallResult, error)

// ResourceHandler handles one resource read.
type ResourceHandler func(ctx context.Context, uri string) (*ResourcesReadResult, error)

type toolEntry struct {
	tool    Tool
	handler ToolHandler
}

type resourceEntry struct {
	resource Resource
	handler  ResourceHandler
}

// Registry manages MCP tools and resources.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]toolEntry
	resources map[string]resourceEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]toolEntry),
		resources: make(map[string]resourceEntry),
	}
}

// RegisterTool registers a tool with its handler, replacing any tool of the
// same name.
func (r *Registry) RegisterTool(tool Tool, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = toolEntry{tool: tool, handler: handler}
}

// RegisterResource registers a resource with its handler.
func (r *Registry) RegisterResource(resource Resource, handler ResourceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[resource.URI] = resourceEntry{resource: resource, handler: handler}
}

// ListTools returns all registered tools sorted by name.
func (r *Registry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, entry := range r.tools {
		tools = append(tools, entry.tool)
	}
	slices.SortFunc(tools, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return tools
}

// ListResources returns all registered resources sorted by URI.
func (r *Registry) ListResources() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]Resource, 0, len(r.resources))
	for _, entry := range r.resources {
		resources = append(resources, entry.resource)
	}
	slices.SortFunc(resources, func(a, b Resource) int { return strings.Compare(a.URI, b.URI) })
	return resources
}

// GetHandler returns the handler for a tool by name.
func (r *Registry) GetHandler(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	return entry.handler, exists
}

// GetResourceHandler returns the handler for a resource by URI.
func (r *Registry) GetResourceHandler(uri string) (ResourceHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.resources[uri]
	return entry.handler, exists
}

// GetTool returns a tool by name.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	return entry.tool, exists
}

// ToolCount returns the number of registered tools.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ResourceCount returns the number of registered resources.
func (r *Registry) ResourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

const maxDescriptionLen = 80

// LogRegistered logs every tool and resource at Debug level.
func (r *Registry) LogRegistered(logger *logging.Logger) {
	if logger == nil || !logger.IsDebugEnabled() {
		return
	}

	logger.Debug("Registered MCP tools:")
	for _, tool := range r.ListTools() {
		logger.Debug("  - "+tool.Name, "description", truncateDescription(tool.Description, maxDescriptionLen))
	}
	for _, res := range r.ListResources() {
		logger.Debug("  - "+res.URI, "name", res.Name)
	}
}

func truncateDescription(desc string, maxLen int) string {
	if len(desc) <= maxLen {
		return desc
	}
	return desc[:maxLen-3] + "..."
}
