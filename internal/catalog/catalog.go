// Package catalog holds the fixed set of M.A.C.S. entities: their static
// definitions, value constraints and current values.
//
// Every entity is one of three tagged variants (Enum, Range, Toggle). Writes
// go through Entity.Set, which validates against the variant and signals the
// catalog's observers; Entity.Restore re-applies persisted values at startup.
package catalog

import (
	"fmt"
	"sync"
)

// Observer is notified after every accepted write with the state that write
// stored. Writes to one entity are delivered in order. Observers must not
// write to the entity they are notified about.
type Observer interface {
	EntityChanged(e *Entity, state string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e *Entity, state string)

// EntityChanged implements Observer.
func (f ObserverFunc) EntityChanged(e *Entity, state string) { f(e, state) }

// Catalog is an ordered, immutable set of entities keyed by id.
type Catalog struct {
	entities []*Entity
	byID     map[string]*Entity

	obsMu     sync.RWMutex
	observers []Observer
}

// New builds a catalog from definitions. Ids must be unique and every
// default must satisfy its constraint.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		entities: make([]*Entity, 0, len(defs)),
		byID:     make(map[string]*Entity, len(defs)),
	}
	for _, def := range defs {
		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate entity id %s", def.ID)
		}
		e := newEntity(def, c.broadcast)
		c.entities = append(c.entities, e)
		c.byID[def.ID] = e
	}
	return c, nil
}

// Default returns a fresh catalog of the built-in M.A.C.S. entities.
func Default() *Catalog {
	c, err := New(Definitions())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Subscribe registers an observer for accepted writes.
func (c *Catalog) Subscribe(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Catalog) broadcast(e *Entity, state string) {
	c.obsMu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()

	for _, o := range observers {
		o.EntityChanged(e, state)
	}
}

// Get returns the entity with the given id.
func (c *Catalog) Get(id string) (*Entity, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// All returns the entities in registration order.
func (c *Catalog) All() []*Entity {
	out := make([]*Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Len returns the number of entities.
func (c *Catalog) Len() int {
	return len(c.entities)
}

// RestoreAll applies persisted states by id. Unknown ids and invalid values
// are skipped; the ids that were skipped because of invalid values are
// returned so callers can log them.
func (c *Catalog) RestoreAll(states map[string]string) (restored int, rejected []string) {
	for _, e := range c.entities {
		raw, ok := states[e.ID()]
		if !ok {
			continue
		}
		if e.Restore(raw) {
			restored++
		} else {
			rejected = append(rejected, e.ID())
		}
	}
	return restored, rejected
}

// Snapshot is a point-in-time view of one entity.
type Snapshot struct {
	ID       string   `json:"id" yaml:"id"`
	EntityID string   `json:"entity_id" yaml:"entity_id"`
	Kind     Kind     `json:"kind" yaml:"kind"`
	Name     string   `json:"name" yaml:"name"`
	Icon     string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	State    string   `json:"state" yaml:"state"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Unit     string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Snapshot returns the current state of every entity in registration order.
func (c *Catalog) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(c.entities))
	for _, e := range c.entities {
		def := e.Definition()
		s := Snapshot{
			ID:       def.ID,
			EntityID: def.EntityID(),
			Kind:     def.Kind(),
			Name:     def.Name,
			Icon:     def.Icon,
			State:    e.State(),
		}
		switch cons := def.Constraint.(type) {
		case Enum:
			s.Options = cons.Options
		case Range:
			lo, hi := cons.Min, cons.Max
			s.Min, s.Max, s.Unit = &lo, &hi, cons.Unit
		}
		out = append(out, s)
	}
	return out
}
