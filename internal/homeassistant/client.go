// Package homeassistant talks to Home Assistant over its WebSocket API.
//
// Only the commands the M.A.C.S. bridge needs are exposed: service calls,
// the entity registry, and Lovelace resource management.
package homeassistant

import (
	"context"
	"errors"
	"fmt"
)

// Service names used by the bridge.
const (
	ServiceTurnOn       = "turn_on"
	ServiceTurnOff      = "turn_off"
	ServiceSetValue     = "set_value"
	ServiceSelectOption = "select_option"
)

// ResourceTypeModule is the Lovelace resource type for ES modules.
const ResourceTypeModule = "module"

// ErrNotConnected is returned when a command is sent without a live session.
var ErrNotConnected = errors.New("not connected to Home Assistant")

// Client defines the Home Assistant operations the bridge uses.
type Client interface {
	// CallService invokes domain.service with the given service data.
	CallService(ctx context.Context, domain, service string, data map[string]any) error

	// GetEntityRegistry lists every registry entry.
	GetEntityRegistry(ctx context.Context) ([]EntityRegistryEntry, error)
	// UpdateEntityID renames entityID to newEntityID in the registry.
	UpdateEntityID(ctx context.Context, entityID, newEntityID string) error

	// GetLovelaceInfo reports the dashboard and resource storage modes.
	GetLovelaceInfo(ctx context.Context) (*LovelaceInfo, error)
	// ListLovelaceResources lists registered frontend resources.
	ListLovelaceResources(ctx context.Context) ([]LovelaceResource, error)
	// CreateLovelaceResource registers a new frontend resource.
	CreateLovelaceResource(ctx context.Context, resType, url string) (*LovelaceResource, error)
	// UpdateLovelaceResource changes an existing resource in place.
	UpdateLovelaceResource(ctx context.Context, resourceID, resType, url string) (*LovelaceResource, error)
}

// APIError is a failed command result reported by Home Assistant.
type APIError struct {
	Command string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Home Assistant %s failed (%s): %s", e.Command, e.Code, e.Message)
}

// IsAPIErrorCode reports whether err is an APIError with the given code.
func IsAPIErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
