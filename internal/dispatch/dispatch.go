// Package dispatch routes named service calls to catalog entities.
//
// A call validates the raw argument, resolves the target's Home Assistant
// entity id through the entity registry and forwards the value with a single
// service call. Home Assistant then commands the entity over MQTT.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/homeassistant"
	"github.com/zorak1103/ha-macs/internal/logging"
)

// EntityPlatform is the registry platform of every M.A.C.S. entity.
const EntityPlatform = "mqtt"

// Errors reported to callers. Both missing entities and unknown services are
// invalid-argument conditions.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEntityNotFound  = fmt.Errorf("%w: entity not found", ErrInvalidArgument)
	ErrUnknownService  = fmt.Errorf("%w: unknown service", ErrInvalidArgument)
)

// Dispatcher executes service calls.
type Dispatcher struct {
	client   homeassistant.Client
	services []Service
	byName   map[string]Service
	logger   *logging.Logger
}

// New builds a dispatcher over the services of c.
func New(client homeassistant.Client, c *catalog.Catalog, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	services := BuildServices(c)
	byName := make(map[string]Service, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}
	return &Dispatcher{
		client:   client,
		services: services,
		byName:   byName,
		logger:   logger.Component("dispatch"),
	}
}

// Services returns the service table in registration order.
func (d *Dispatcher) Services() []Service {
	return append([]Service(nil), d.services...)
}

// Lookup returns a service by name.
func (d *Dispatcher) Lookup(name string) (Service, bool) {
	s, ok := d.byName[name]
	return s, ok
}

// Call validates raw for the named service and forwards it.
func (d *Dispatcher) Call(ctx context.Context, name string, raw any) error {
	svc, ok := d.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}

	value, err := svc.Coerce(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	entityID, err := d.ResolveEntityID(ctx, svc.Target)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := d.forward(ctx, svc.Definition().Kind(), entityID, value); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	d.logger.Debug("Service dispatched", "service", name, "entity", entityID, "value", value)
	return nil
}

// ResolveEntityID finds the current entity id registered for a catalog id.
func (d *Dispatcher) ResolveEntityID(ctx context.Context, id string) (string, error) {
	entries, err := d.client.GetEntityRegistry(ctx)
	if err != nil {
		return "", err
	}
	if entry, ok := FindByUniqueID(entries, id); ok {
		return entry.EntityID, nil
	}
	return "", fmt.Errorf("%w: %s", ErrEntityNotFound, id)
}

// FindByUniqueID returns the MQTT registry entry carrying uniqueID.
func FindByUniqueID(entries []homeassistant.EntityRegistryEntry, uniqueID string) (homeassistant.EntityRegistryEntry, bool) {
	for _, e := range entries {
		if e.Platform == EntityPlatform && e.UniqueID == uniqueID {
			return e, true
		}
	}
	return homeassistant.EntityRegistryEntry{}, false
}

func (d *Dispatcher) forward(ctx context.Context, kind catalog.Kind, entityID string, value any) error {
	domain := string(kind)
	data := map[string]any{"entity_id": entityID}

	var service string
	switch kind {
	case catalog.KindSelect:
		service = homeassistant.ServiceSelectOption
		data["option"] = value
	case catalog.KindNumber:
		service = homeassistant.ServiceSetValue
		data["value"] = value
	case catalog.KindSwitch:
		service = homeassistant.ServiceTurnOff
		if on, _ := value.(bool); on {
			service = homeassistant.ServiceTurnOn
		}
	default:
		return fmt.Errorf("unsupported entity kind %q", kind)
	}

	return d.client.CallService(ctx, domain, service, data)
}
