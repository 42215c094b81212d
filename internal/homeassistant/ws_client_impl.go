package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
)

// commandSender is the part of WSClient the Client implementation needs.
type commandSender interface {
	SendCommand(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error)
}

// wsClientImpl implements Client on top of WebSocket commands.
type wsClientImpl struct {
	ws commandSender
}

// NewWSClientImpl wraps a connected WSClient as a Client.
func NewWSClientImpl(ws *WSClient) Client {
	return &wsClientImpl{ws: ws}
}

var _ Client = (*wsClientImpl)(nil)

// decodeResult sends a command and unmarshals its result into out (if non-nil).
func (c *wsClientImpl) decodeResult(ctx context.Context, msgType string, payload map[string]any, out any) error {
	result, err := c.ws.SendCommand(ctx, msgType, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", msgType, err)
	}
	if out == nil || len(result.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", msgType, err)
	}
	return nil
}

// CallService calls a Home Assistant service.
func (c *wsClientImpl) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	params := map[string]any{
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		params["service_data"] = data
	}
	return c.decodeResult(ctx, "call_service", params, nil)
}

// GetEntityRegistry retrieves the entity registry.
func (c *wsClientImpl) GetEntityRegistry(ctx context.Context) ([]EntityRegistryEntry, error) {
	var entries []EntityRegistryEntry
	if err := c.decodeResult(ctx, "config/entity_registry/list", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateEntityID renames a registry entry.
func (c *wsClientImpl) UpdateEntityID(ctx context.Context, entityID, newEntityID string) error {
	return c.decodeResult(ctx, "config/entity_registry/update", map[string]any{
		"entity_id":     entityID,
		"new_entity_id": newEntityID,
	}, nil)
}

// GetLovelaceInfo reports the Lovelace storage modes.
func (c *wsClientImpl) GetLovelaceInfo(ctx context.Context) (*LovelaceInfo, error) {
	var info LovelaceInfo
	if err := c.decodeResult(ctx, "lovelace/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListLovelaceResources lists registered frontend resources.
func (c *wsClientImpl) ListLovelaceResources(ctx context.Context) ([]LovelaceResource, error) {
	var resources []LovelaceResource
	if err := c.decodeResult(ctx, "lovelace/resources", nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// CreateLovelaceResource registers a frontend resource.
func (c *wsClientImpl) CreateLovelaceResource(ctx context.Context, resType, url string) (*LovelaceResource, error) {
	var res LovelaceResource
	err := c.decodeResult(ctx, "lovelace/resources/create", map[string]any{
		"res_type": resType,
		"url":      url,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateLovelaceResource updates a frontend resource in place.
func (c *wsClientImpl) UpdateLovelaceResource(ctx context.Context, resourceID, resType, url string) (*LovelaceResource, error) {
	var res LovelaceResource
	err := c.decodeResult(ctx, "lovelace/resources/update", map[string]any{
		"resource_id": resourceID,
		"res_type":    resType,
		"url":         url,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
