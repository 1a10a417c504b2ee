// Package layout decides which media sources occupy the two display slots of
// a call and re-runs that decision on a fixed schedule while tracks settle.
package layout

import "github.com/tomaslejdung/peepcall/pkg/media"

// Slot is one of the two display regions
type Slot int

const (
	Primary Slot = iota
	Secondary
)

func (s Slot) String() string {
	if s == Primary {
		return "primary"
	}
	return "secondary"
}

// Slots lists both slots in display order
var Slots = [2]Slot{Primary, Secondary}

// Variant selects which camera takes the primary slot when nobody is sharing
type Variant int

const (
	// RemotePrimary shows the remote camera large and the local camera small
	RemotePrimary Variant = iota
	// LocalPrimary swaps the two cameras
	LocalPrimary
)

// ParseVariant maps a config value to a Variant. Unknown values fall back to
// RemotePrimary.
func ParseVariant(s string) Variant {
	switch s {
	case "local-primary", "local":
		return LocalPrimary
	default:
		return RemotePrimary
	}
}

func (v Variant) String() string {
	if v == LocalPrimary {
		return "local-primary"
	}
	return "remote-primary"
}

// Assignment is the occupant of one slot. A nil Source means the slot is empty.
type Assignment struct {
	Slot   Slot
	Source *media.Source
	Label  string
}

// Empty reports whether the slot has no occupant
func (a Assignment) Empty() bool {
	return a.Source == nil
}

// Key identifies the occupant for change detection. Empty slots share the
// key "". Label and stream ID are part of the key so a replaced stream or a
// renamed participant is re-applied.
func (a Assignment) Key() string {
	if a.Source == nil {
		return ""
	}
	return a.Source.Key() + "#" + a.Source.StreamID() + "#" + a.Label
}

// Arrangement is the result of one arrange pass
type Arrangement struct {
	Primary   Assignment
	Secondary Assignment
}

// Get returns the assignment for slot
func (a Arrangement) Get(s Slot) Assignment {
	if s == Primary {
		return a.Primary
	}
	return a.Secondary
}

// Equal reports whether both slots hold the same occupants
func (a Arrangement) Equal(b Arrangement) bool {
	return a.Primary.Key() == b.Primary.Key() && a.Secondary.Key() == b.Secondary.Key()
}
