package layout

import "github.com/tomaslejdung/peepcall/pkg/media"

const (
	youSuffix    = " (you)"
	screenSuffix = " (screen)"
	placeholder  = "Participant"
)

// Arrange assigns the sources of snap to the two slots.
//
// Precedence, highest first:
//  1. a remote screen share takes primary, the local camera secondary
//  2. a local screen share takes primary, the remote camera secondary
//  3. the cameras, remote in primary unless variant is LocalPrimary
//
// The rule is chosen from what is registered. A chosen source that cannot be
// displayed yet (no handle, or ended) leaves its slot empty instead of letting
// a lower-priority source take its place. A local screen share is never shown
// while a remote one is registered.
//
// Arrange is pure: the same snapshot always yields the same arrangement.
func Arrange(snap media.Snapshot, variant Variant) Arrangement {
	var primary, secondary *media.Source

	remoteCam, hasRemoteCam := snap.RemoteCamera()

	switch {
	case snap.RemoteScreen != nil:
		primary = snap.RemoteScreen
		secondary = snap.LocalCamera
	case snap.LocalScreen != nil:
		primary = snap.LocalScreen
		if hasRemoteCam {
			secondary = &remoteCam
		}
	default:
		if hasRemoteCam {
			primary = &remoteCam
		}
		secondary = snap.LocalCamera
		if variant == LocalPrimary {
			primary, secondary = secondary, primary
		}
	}

	return Arrangement{
		Primary:   assign(Primary, primary),
		Secondary: assign(Secondary, secondary),
	}
}

func assign(slot Slot, src *media.Source) Assignment {
	if src == nil || !src.Displayable() {
		return Assignment{Slot: slot}
	}
	c := *src
	return Assignment{Slot: slot, Source: &c, Label: Label(c)}
}

// Label returns the display string for a source
func Label(src media.Source) string {
	name := src.Label
	if name == "" {
		name = src.Owner
	}
	if name == "" {
		name = placeholder
	}
	if src.Kind.IsScreen() {
		name += screenSuffix
	}
	if src.Kind.IsLocal() {
		name += youSuffix
	}
	return name
}
