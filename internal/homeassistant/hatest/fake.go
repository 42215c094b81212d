// Package hatest provides an in-memory Home Assistant client for tests.
package hatest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/zorak1103/ha-macs/internal/homeassistant"
)

// ServiceCall records one CallService invocation.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// Client is a homeassistant.Client backed by in-memory registry and
// resource lists. Set Err to make every call fail.
type Client struct {
	mu sync.Mutex

	Registry     []homeassistant.EntityRegistryEntry
	Resources    []homeassistant.LovelaceResource
	ResourceMode string
	Calls        []ServiceCall
	Renames      [][2]string
	Err          error

	nextResourceID int
}

var _ homeassistant.Client = (*Client)(nil)

// NewClient returns a client in storage resource mode.
func NewClient() *Client {
	return &Client{ResourceMode: "storage"}
}

// AddMQTTEntity registers an MQTT entity with the given unique id.
func (c *Client) AddMQTTEntity(entityID, uniqueID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Registry = append(c.Registry, homeassistant.EntityRegistryEntry{
		EntityID: entityID,
		UniqueID: uniqueID,
		Platform: "mqtt",
	})
}

// EntityIDs returns the registered entity ids.
func (c *Client) EntityIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.Registry))
	for _, e := range c.Registry {
		ids = append(ids, e.EntityID)
	}
	slices.Sort(ids)
	return ids
}

// ServiceCalls returns a copy of the recorded service calls.
func (c *Client) ServiceCalls() []ServiceCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ServiceCall(nil), c.Calls...)
}

// CallService implements homeassistant.Client.
func (c *Client) CallService(_ context.Context, domain, service string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Calls = append(c.Calls, ServiceCall{Domain: domain, Service: service, Data: data})
	return nil
}

// GetEntityRegistry implements homeassistant.Client.
func (c *Client) GetEntityRegistry(context.Context) ([]homeassistant.EntityRegistryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]homeassistant.EntityRegistryEntry(nil), c.Registry...), nil
}

// UpdateEntityID implements homeassistant.Client. Like Home Assistant it
// refuses to rename onto an id that is already registered.
func (c *Client) UpdateEntityID(_ context.Context, entityID, newEntityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}

	idx := -1
	for i, e := range c.Registry {
		switch e.EntityID {
		case newEntityID:
			return &homeassistant.APIError{Command: "config/entity_registry/update", Code: "invalid_info", Message: "Entity with this ID is already registered"}
		case entityID:
			idx = i
		}
	}
	if idx < 0 {
		return &homeassistant.APIError{Command: "config/entity_registry/update", Code: "not_found", Message: "Entity not found"}
	}
	c.Registry[idx].EntityID = newEntityID
	c.Renames = append(c.Renames, [2]string{entityID, newEntityID})
	return nil
}

// GetLovelaceInfo implements homeassistant.Client.
func (c *Client) GetLovelaceInfo(context.Context) (*homeassistant.LovelaceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return &homeassistant.LovelaceInfo{Mode: "storage", ResourceMode: c.ResourceMode}, nil
}

// ListLovelaceResources implements homeassistant.Client.
func (c *Client) ListLovelaceResources(context.Context) ([]homeassistant.LovelaceResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]homeassistant.LovelaceResource(nil), c.Resources...), nil
}

// CreateLovelaceResource implements homeassistant.Client.
func (c *Client) CreateLovelaceResource(_ context.Context, resType, url string) (*homeassistant.LovelaceResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.ResourceMode == "yaml" {
		return nil, &homeassistant.APIError{Command: "lovelace/resources/create", Code: "unknown_command", Message: "Unknown command."}
	}
	c.nextResourceID++
	res := homeassistant.LovelaceResource{
		ID:   homeassistant.FlexibleIdentifier("res" + strconv.Itoa(c.nextResourceID)),
		Type: resType,
		URL:  url,
	}
	c.Resources = append(c.Resources, res)
	return &res, nil
}

// UpdateLovelaceResource implements homeassistant.Client.
func (c *Client) UpdateLovelaceResource(_ context.Context, resourceID, resType, url string) (*homeassistant.LovelaceResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	for i := range c.Resources {
		if c.Resources[i].ID.String() == resourceID {
			c.Resources[i].Type = resType
			c.Resources[i].URL = url
			res := c.Resources[i]
			return &res, nil
		}
	}
	return nil, fmt.Errorf("resource %s not found", resourceID)
}
