package handlers

import (
	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/mcp"
)

// RegisterAll registers every M.A.C.S. tool and resource with the registry.
func RegisterAll(registry *mcp.Registry, d *dispatch.Dispatcher, c *catalog.Catalog, reconciler Reconciler) {
	h := NewMacsHandlers(d, c, reconciler)
	h.RegisterTools(registry)
	h.RegisterResources(registry)
}
