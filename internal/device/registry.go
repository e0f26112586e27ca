package device

import (
	"fmt"
)

// Registry is the immutable inventory of devices.
//
// It is built once by New and never modified afterwards, so it needs no
// locking and is safe for concurrent use from multiple goroutines.
type Registry struct {
	byKind map[Kind][]Device
	index  map[Ref]int // position within byKind[ref.Kind]
	order  []Ref       // inventory order across all kinds
}

// New validates the devices and builds a Registry.
//
// Validation covers each device on its own (see ValidateDevice), duplicate
// (kind, id) pairs, and the weak references of every Water device: its
// tank_id, pump_id and position.arm_id must name existing Tank, Pump and Arm
// devices. The first problem found is returned.
//
// Parameters:
//   - devices: Inventory entries in declaration order
//
// Returns:
//   - *Registry: Registry holding copies of the devices
//   - error: A wrapped configuration error (ErrInvalidReference, ErrInvariantViolation, ...)
func New(devices []Device) (*Registry, error) {
	r := &Registry{
		byKind: make(map[Kind][]Device),
		index:  make(map[Ref]int, len(devices)),
		order:  make([]Ref, 0, len(devices)),
	}

	for _, d := range devices {
		if err := ValidateDevice(d); err != nil {
			return nil, err
		}
		ref := d.Ref()
		if _, exists := r.index[ref]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, ref)
		}
		r.index[ref] = len(r.byKind[d.Kind])
		r.byKind[d.Kind] = append(r.byKind[d.Kind], d)
		r.order = append(r.order, ref)
	}

	if err := r.validateReferences(); err != nil {
		return nil, err
	}

	return r, nil
}

// validateReferences checks that every Water device points at existing resources.
func (r *Registry) validateReferences() error {
	for _, d := range r.byKind[KindWater] {
		s, _ := d.Water()
		refs := []Ref{
			{Kind: KindTank, ID: s.TankID},
			{Kind: KindPump, ID: s.PumpID},
			{Kind: KindArm, ID: s.Position.ArmID},
		}
		for _, target := range refs {
			if _, ok := r.index[target]; !ok {
				return fmt.Errorf("%s: %w: %s does not exist", d.Ref(), ErrInvalidReference, target)
			}
		}
	}
	return nil
}

// Get returns the device with the given kind and id.
// Returns ErrNotFound if it does not exist.
func (r *Registry) Get(kind Kind, id int) (Device, error) {
	pos, ok := r.index[Ref{Kind: kind, ID: id}]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s#%d", ErrNotFound, kind, id)
	}
	return r.byKind[kind][pos], nil
}

// All returns every device of the kind in inventory order.
// The returned slice is a copy; callers may modify it.
func (r *Registry) All(kind Kind) []Device {
	src := r.byKind[kind]
	out := make([]Device, len(src))
	copy(out, src)
	return out
}

// Refs returns the address of every device in inventory order.
func (r *Registry) Refs() []Ref {
	out := make([]Ref, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(r.order)
}

// Water returns the settings of Water#id.
func (r *Registry) Water(id int) (WaterSettings, error) {
	d, err := r.Get(KindWater, id)
	if err != nil {
		return WaterSettings{}, err
	}
	s, _ := d.Water()
	return s, nil
}

// Air returns the settings of Air#id.
func (r *Registry) Air(id int) (AirSettings, error) {
	d, err := r.Get(KindAir, id)
	if err != nil {
		return AirSettings{}, err
	}
	s, _ := d.Air()
	return s, nil
}

// Light returns the settings of Light#id.
func (r *Registry) Light(id int) (LightSettings, error) {
	d, err := r.Get(KindLight, id)
	if err != nil {
		return LightSettings{}, err
	}
	s, _ := d.Light()
	return s, nil
}

// Stats holds device counts per kind.
type Stats struct {
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_kind"`
}

// GetStats returns device counts.
func (r *Registry) GetStats() Stats {
	stats := Stats{Total: len(r.order), ByKind: make(map[Kind]int, len(r.byKind))}
	for kind, devices := range r.byKind {
		stats.ByKind[kind] = len(devices)
	}
	return stats
}
