// Package kb is the design knowledge base: an immutable catalog of hulls
// and components and the rules that turn a design into ship statistics.
package kb

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/stellar-empires/model"
)

var (
	// ErrHullNotFound indicates a design references an unknown hull.
	ErrHullNotFound = errors.New("hull not found")
	// ErrComponentNotFound indicates a design references an unknown component.
	ErrComponentNotFound = errors.New("component not found")
	// ErrInvalidDesign indicates a design does not fit its hull.
	ErrInvalidDesign = errors.New("invalid design")
	// ErrLocked indicates the empire lacks the tech for a hull or component.
	ErrLocked = errors.New("tech requirement not met")
	// ErrDuplicateEntry indicates two catalog entries share an ID.
	ErrDuplicateEntry = errors.New("duplicate catalog entry")
)

// HullSlot is a group of mount points that accept the listed kinds.
type HullSlot struct {
	Kinds []ComponentKind
	Max   int
}

// Accepts reports whether the slot takes components of kind k.
func (s HullSlot) Accepts(k ComponentKind) bool {
	for _, kind := range s.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Hull is a ship chassis.
type Hull struct {
	ID            string
	Name          string
	Mass          float64
	Cost          float64
	Armor         float64
	FuelCapacity  float64
	CargoCapacity float64
	Slots         []HullSlot
	Requires      model.TechRequirement
}

// Component is one catalog part. Stats holds the kind-specific variant.
type Component struct {
	ID       string
	Name     string
	Mass     float64
	Cost     float64
	Requires model.TechRequirement
	Stats    ComponentStats
}

// Kind returns the component's variant tag.
func (c *Component) Kind() ComponentKind {
	if c == nil || c.Stats == nil {
		return ""
	}
	return c.Stats.Kind()
}

// DesignCatalog is an immutable lookup of hulls and components. It is safe
// for concurrent use because nothing mutates it after construction.
type DesignCatalog struct {
	hulls      map[string]*Hull
	components map[string]*Component

	hullIDs      []string
	componentIDs []string

	digest string
}

// NewDesignCatalog indexes hulls and components. IDs must be unique.
func NewDesignCatalog(hulls []Hull, components []Component) (*DesignCatalog, error) {
	c := &DesignCatalog{
		hulls:      make(map[string]*Hull, len(hulls)),
		components: make(map[string]*Component, len(components)),
	}
	for i := range hulls {
		h := hulls[i]
		if h.ID == "" {
			return nil, fmt.Errorf("%w: hull with empty id", ErrInvalidDesign)
		}
		if _, exists := c.hulls[h.ID]; exists {
			return nil, fmt.Errorf("%w: hull %q", ErrDuplicateEntry, h.ID)
		}
		h.Slots = append([]HullSlot(nil), h.Slots...)
		c.hulls[h.ID] = &h
		c.hullIDs = append(c.hullIDs, h.ID)
	}
	for i := range components {
		comp := components[i]
		if comp.ID == "" || comp.Stats == nil {
			return nil, fmt.Errorf("%w: component %q has no id or stats", ErrInvalidDesign, comp.ID)
		}
		if _, exists := c.components[comp.ID]; exists {
			return nil, fmt.Errorf("%w: component %q", ErrDuplicateEntry, comp.ID)
		}
		c.components[comp.ID] = &comp
		c.componentIDs = append(c.componentIDs, comp.ID)
	}
	sort.Strings(c.hullIDs)
	sort.Strings(c.componentIDs)
	c.digest = catalogDigest(c)
	return c, nil
}

// Digest is a stable fingerprint of the catalog contents.
func (c *DesignCatalog) Digest() string { return c.digest }

// Hull returns the hull with the given ID.
func (c *DesignCatalog) Hull(id string) (Hull, bool) {
	h, ok := c.hulls[id]
	if !ok {
		return Hull{}, false
	}
	return *h, true
}

// Component returns the component with the given ID.
func (c *DesignCatalog) Component(id string) (Component, bool) {
	comp, ok := c.components[id]
	if !ok {
		return Component{}, false
	}
	return *comp, true
}

// Hulls returns every hull sorted by ID.
func (c *DesignCatalog) Hulls() []Hull {
	out := make([]Hull, 0, len(c.hullIDs))
	for _, id := range c.hullIDs {
		out = append(out, *c.hulls[id])
	}
	return out
}

// Components returns every component sorted by ID.
func (c *DesignCatalog) Components() []Component {
	out := make([]Component, 0, len(c.componentIDs))
	for _, id := range c.componentIDs {
		out = append(out, *c.components[id])
	}
	return out
}

// Engines returns the engine components sorted by ID.
func (c *DesignCatalog) Engines() []Component {
	var out []Component
	for _, id := range c.componentIDs {
		if comp := c.components[id]; comp.Kind() == KindEngine {
			out = append(out, *comp)
		}
	}
	return out
}

// Unlocked lists the hull and component IDs available to the empire.
func (c *DesignCatalog) Unlocked(e *model.Empire) (hulls, components []string) {
	for _, id := range c.hullIDs {
		if c.hulls[id].Requires.Met(e) {
			hulls = append(hulls, id)
		}
	}
	for _, id := range c.componentIDs {
		if c.components[id].Requires.Met(e) {
			components = append(components, id)
		}
	}
	return hulls, components
}

// ValidateDesign checks that d references known parts, that every part is
// unlocked for e (when e is non-nil) and that the parts fit the hull. Ships
// must be built with positive armor, so a design on an unarmored hull needs
// armor components.
func (c *DesignCatalog) ValidateDesign(d *model.Design, e *model.Empire) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("%w: design needs a name", ErrInvalidDesign)
	}
	hull, ok := c.hulls[d.Hull]
	if !ok {
		return fmt.Errorf("%w: %q", ErrHullNotFound, d.Hull)
	}
	if e != nil && !hull.Requires.Met(e) {
		return fmt.Errorf("%w: hull %q needs %s %d", ErrLocked, hull.ID, hull.Requires.Field, hull.Requires.Level)
	}

	free := make([]int, len(hull.Slots))
	for i, s := range hull.Slots {
		free[i] = s.Max
	}
	armor := hull.Armor
	for _, slot := range d.Slots {
		comp, ok := c.components[slot.Component]
		if !ok {
			return fmt.Errorf("%w: %q", ErrComponentNotFound, slot.Component)
		}
		if slot.Count <= 0 {
			return fmt.Errorf("%w: component %q count %d", ErrInvalidDesign, slot.Component, slot.Count)
		}
		if a, ok := comp.Stats.(ArmorStats); ok {
			armor += a.Armor * float64(slot.Count)
		}
		if e != nil && !comp.Requires.Met(e) {
			return fmt.Errorf("%w: component %q needs %s %d", ErrLocked, comp.ID, comp.Requires.Field, comp.Requires.Level)
		}
		remaining := slot.Count
		for i := range hull.Slots {
			if remaining == 0 {
				break
			}
			if !hull.Slots[i].Accepts(comp.Kind()) || free[i] == 0 {
				continue
			}
			take := min(remaining, free[i])
			free[i] -= take
			remaining -= take
		}
		if remaining > 0 {
			return fmt.Errorf("%w: no room on hull %q for %d x %q", ErrInvalidDesign, hull.ID, remaining, comp.ID)
		}
	}
	if armor <= 0 {
		return fmt.Errorf("%w: design %q has no armor", ErrInvalidDesign, d.Name)
	}
	return nil
}

// Derive computes the ship statistics of a design. The design must be
// structurally valid; tech gating is not checked here because ships of a
// design stay valid after it was accepted.
func (c *DesignCatalog) Derive(d *model.Design) (ShipStats, error) {
	if err := c.ValidateDesign(d, nil); err != nil {
		return ShipStats{}, err
	}
	hull := c.hulls[d.Hull]
	stats := ShipStats{
		Mass:          hull.Mass,
		Cost:          hull.Cost,
		Armor:         hull.Armor,
		FuelCapacity:  hull.FuelCapacity,
		CargoCapacity: hull.CargoCapacity,
	}
	for _, slot := range d.Slots {
		comp := c.components[slot.Component]
		stats.Mass += comp.Mass * float64(slot.Count)
		stats.Cost += comp.Cost * float64(slot.Count)
		comp.Stats.contribute(&stats, slot.Count)
	}
	return stats, nil
}
