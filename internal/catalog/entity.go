package catalog

import (
	"fmt"
	"sync"
)

// Device is the parent grouping every catalog entity reports to Home Assistant.
type Device struct {
	Identifier   string
	Name         string
	Manufacturer string
	Model        string
}

// MacsDevice groups all M.A.C.S. entities in the device registry.
var MacsDevice = Device{
	Identifier:   "macs",
	Name:         "M.A.C.S.",
	Manufacturer: "Glyn Davidson",
	Model:        "Mood-Aware Character SVG",
}

// Definition is the static description of one catalog entity.
type Definition struct {
	// ID doubles as the unique id and the object id, so Home Assistant
	// derives the canonical entity id <kind>.<id> from it.
	ID   string
	Name string
	Icon string
	// Category is the Home Assistant entity category ("config",
	// "diagnostic" or empty).
	Category   string
	Constraint Constraint
	Default    any
}

// Kind is shorthand for d.Constraint.Kind().
func (d Definition) Kind() Kind {
	return d.Constraint.Kind()
}

// EntityID returns the canonical Home Assistant entity id.
func (d Definition) EntityID() string {
	return string(d.Kind()) + "." + d.ID
}

func (d Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition %q: empty id", d.Name)
	}
	if d.Constraint == nil {
		return fmt.Errorf("definition %s: no constraint", d.ID)
	}
	v, ok := d.Constraint.Accept(d.Default)
	if !ok {
		return fmt.Errorf("definition %s: default %v rejected by constraint", d.ID, d.Default)
	}
	if r, isRange := d.Constraint.(Range); isRange && !r.Contains(v.(float64)) {
		return fmt.Errorf("definition %s: default %v outside [%v,%v]", d.ID, d.Default, r.Min, r.Max)
	}
	return nil
}

// Entity is a single persisted value. It is safe for concurrent use: MQTT
// command handlers and service calls may race on the same entity.
type Entity struct {
	def    Definition
	notify func(*Entity, string)

	// writeMu orders writes and their notifications; mu guards value only,
	// so readers never wait on observers.
	writeMu sync.Mutex
	mu      sync.RWMutex
	value   any
}

func newEntity(def Definition, notify func(*Entity, string)) *Entity {
	v, _ := def.Constraint.Accept(def.Default)
	return &Entity{def: def, notify: notify, value: v}
}

// Definition returns the static description of the entity.
func (e *Entity) Definition() Definition {
	return e.def
}

// ID returns the logical id (e.g. macs_mood).
func (e *Entity) ID() string {
	return e.def.ID
}

// Kind returns the entity platform.
func (e *Entity) Kind() Kind {
	return e.def.Kind()
}

// Value returns the current value: string, float64 or bool depending on Kind.
func (e *Entity) Value() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

// State returns the current value rendered as a Home Assistant state string.
func (e *Entity) State() string {
	return e.def.Constraint.Format(e.Value())
}

// Set validates v and stores it. Numbers are clamped into range; anything
// else the constraint rejects leaves the value untouched and returns false.
// Accepted writes are always signalled, even when the value is unchanged, so
// observers can republish state.
func (e *Entity) Set(v any) bool {
	normalized, ok := e.def.Constraint.Accept(v)
	if !ok {
		return false
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.value = normalized
	e.mu.Unlock()

	if e.notify != nil {
		e.notify(e, e.def.Constraint.Format(normalized))
	}
	return true
}

// Restore applies a previously persisted state string if it is valid under
// the current constraint. Invalid input keeps the current (default) value.
// Restore does not signal observers.
func (e *Entity) Restore(raw string) bool {
	v, ok := e.def.Constraint.Parse(raw)
	if !ok {
		return false
	}

	e.mu.Lock()
	e.value = v
	e.mu.Unlock()
	return true
}
