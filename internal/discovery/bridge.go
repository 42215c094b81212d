// Package discovery exposes the catalog to Home Assistant over MQTT.
//
// Every entity is announced with a retained discovery config and its state
// is republished whenever it changes. Home Assistant commands arrive on
// per-entity command topics and are applied to the catalog. Automations may
// also publish raw values to service topics, which run through the dispatch
// table.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/logging"
	"github.com/zorak1103/ha-macs/internal/mqtt"
)

const serviceCallTimeout = 15 * time.Second

// Broker is the subset of *mqtt.Client the bridge uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
	QoS() byte
}

// ServiceCaller runs named service calls. *dispatch.Dispatcher implements it.
type ServiceCaller interface {
	Call(ctx context.Context, name string, raw any) error
	Lookup(name string) (dispatch.Service, bool)
}

// Errors returned by message handlers.
var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrInvalidCommand = errors.New("invalid command payload")
)

// Bridge binds a catalog to an MQTT broker.
type Bridge struct {
	broker   Broker
	catalog  *catalog.Catalog
	services ServiceCaller
	version  string
	logger   *logging.Logger
}

// New creates a bridge. services may be nil, in which case service topics
// are not subscribed.
func New(broker Broker, c *catalog.Catalog, services ServiceCaller, version string, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bridge{
		broker:   broker,
		catalog:  c,
		services: services,
		version:  version,
		logger:   logger.Component("discovery"),
	}
}

// Start subscribes to command, service and Home Assistant status topics,
// announces every entity and starts publishing state changes.
func (b *Bridge) Start() error {
	topics := b.broker.Topics()
	qos := b.broker.QoS()

	if err := b.broker.Subscribe(topics.AllCommands(), qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	if b.services != nil {
		if err := b.broker.Subscribe(topics.AllServices(), qos, b.handleService); err != nil {
			return fmt.Errorf("subscribing to services: %w", err)
		}
	}
	if err := b.broker.Subscribe(topics.HomeAssistantStatus(), qos, b.handleHomeAssistantStatus); err != nil {
		return fmt.Errorf("subscribing to home assistant status: %w", err)
	}

	b.catalog.Subscribe(b)
	return b.PublishAll()
}

// PublishAll announces every entity and publishes its current state.
// Failures are collected so one bad entity does not hide the rest.
func (b *Bridge) PublishAll() error {
	var errs []error
	for _, e := range b.catalog.All() {
		if err := b.PublishConfig(e.Definition()); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.PublishState(e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.logger.Info("Published discovery", "entities", b.catalog.Len())
	return nil
}

// PublishConfig publishes the retained discovery config of def.
func (b *Bridge) PublishConfig(def catalog.Definition) error {
	topics := b.broker.Topics()
	payload, err := ConfigPayload(def, topics, b.version)
	if err != nil {
		return fmt.Errorf("encoding discovery config for %s: %w", def.ID, err)
	}
	if err := b.broker.PublishRetained(topics.Discovery(string(def.Kind()), def.ID), payload); err != nil {
		return fmt.Errorf("publishing discovery config for %s: %w", def.ID, err)
	}
	return nil
}

// PublishState publishes the retained current state of e.
func (b *Bridge) PublishState(e *catalog.Entity) error {
	return b.publishState(e.ID(), e.State())
}

func (b *Bridge) publishState(id, state string) error {
	if err := b.broker.PublishRetained(b.broker.Topics().State(id), []byte(state)); err != nil {
		return fmt.Errorf("publishing state of %s: %w", id, err)
	}
	b.logger.Trace("Published state", "entity", id, "state", state)
	return nil
}

// EntityChanged implements catalog.Observer.
func (b *Bridge) EntityChanged(e *catalog.Entity, state string) {
	if err := b.publishState(e.ID(), state); err != nil {
		b.logger.Warn("State publish failed", "entity", e.ID(), "error", err)
	}
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	id, ok := b.broker.Topics().ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, topic)
	}
	e, ok := b.catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}

	v, err := ParseCommand(e.Kind(), payload)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if !e.Set(v) {
		return fmt.Errorf("%s: %w: %q", id, ErrInvalidCommand, payload)
	}
	b.logger.Debug("Applied command", "entity", id, "state", e.State())
	return nil
}

// ParseCommand converts a command payload into a setter value for kind.
func ParseCommand(kind catalog.Kind, payload []byte) (any, error) {
	s := strings.TrimSpace(string(payload))
	switch kind {
	case catalog.KindSwitch:
		switch strings.ToUpper(s) {
		case PayloadOn:
			return true, nil
		case PayloadOff:
			return false, nil
		}
	case catalog.KindNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	case catalog.KindSelect:
		if s != "" {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
}

func (b *Bridge) handleService(topic string, payload []byte) error {
	name, ok := b.broker.Topics().ParseService(topic)
	if !ok {
		return fmt.Errorf("%w: %s", dispatch.ErrUnknownService, topic)
	}
	svc, ok := b.services.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", dispatch.ErrUnknownService, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
	defer cancel()

	if err := b.services.Call(ctx, name, ServiceArgument(svc.Arg, payload)); err != nil {
		return err
	}
	b.logger.Debug("Service call over MQTT", "service", name)
	return nil
}

// ServiceArgument decodes a service topic payload. JSON scalars are used as
// is, a JSON object yields its arg field, and anything else is taken as a
// plain string.
func ServiceArgument(arg string, payload []byte) any {
	trimmed := bytes.TrimSpace(payload)

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(trimmed)
	}
	if obj, ok := v.(map[string]any); ok {
		return obj[arg]
	}
	return v
}

func (b *Bridge) handleHomeAssistantStatus(_ string, payload []byte) error {
	if strings.TrimSpace(string(payload)) != mqtt.PayloadOnline {
		return nil
	}
	b.logger.Info("Home Assistant came online, republishing discovery")
	return b.PublishAll()
}
