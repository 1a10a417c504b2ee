package media

import "sort"

// Registry holds the sources currently known to a call.
//
// It is not safe for concurrent use. A Registry is owned by a single
// goroutine (the call session loop) and every mutation happens there.
type Registry struct {
	localCamera   *Source
	localScreen   *Source
	remoteScreen  *Source
	remoteCameras map[string]*Source // identity -> source
	seq           uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		remoteCameras: make(map[string]*Source),
	}
}

func (r *Registry) stamp(kind Kind, owner string, src Source) *Source {
	r.seq++
	src.Kind = kind
	src.Owner = owner
	src.seq = r.seq
	return &src
}

// RegisterLocalCamera inserts or replaces the local camera
func (r *Registry) RegisterLocalCamera(src Source) {
	r.localCamera = r.stamp(LocalCamera, src.Owner, src)
}

// RegisterLocalScreen inserts or replaces the local screen share
func (r *Registry) RegisterLocalScreen(src Source) {
	r.localScreen = r.stamp(LocalScreen, src.Owner, src)
}

// RegisterRemoteCamera inserts or replaces the camera of a remote participant
func (r *Registry) RegisterRemoteCamera(identity string, src Source) {
	r.remoteCameras[identity] = r.stamp(RemoteCamera, identity, src)
}

// RegisterRemoteScreen inserts or replaces the remote screen share.
// Only one remote screen share is tracked; a new one supersedes the old.
func (r *Registry) RegisterRemoteScreen(identity string, src Source) {
	r.remoteScreen = r.stamp(RemoteScreen, identity, src)
}

// Register dispatches on kind. identity is ignored for local kinds.
func (r *Registry) Register(kind Kind, identity string, src Source) {
	switch kind {
	case LocalCamera:
		r.RegisterLocalCamera(src)
	case LocalScreen:
		r.RegisterLocalScreen(src)
	case RemoteCamera:
		r.RegisterRemoteCamera(identity, src)
	case RemoteScreen:
		r.RegisterRemoteScreen(identity, src)
	}
}

// Unregister removes the entry for kind. Removing an absent entry is a no-op.
// For the remote screen share a non-empty identity must match the current
// owner, so a late teardown from an earlier sharer does not remove a newer one.
func (r *Registry) Unregister(kind Kind, identity string) bool {
	switch kind {
	case LocalCamera:
		removed := r.localCamera != nil
		r.localCamera = nil
		return removed
	case LocalScreen:
		removed := r.localScreen != nil
		r.localScreen = nil
		return removed
	case RemoteCamera:
		if _, ok := r.remoteCameras[identity]; !ok {
			return false
		}
		delete(r.remoteCameras, identity)
		return true
	case RemoteScreen:
		if r.remoteScreen == nil {
			return false
		}
		if identity != "" && r.remoteScreen.Owner != identity {
			return false
		}
		r.remoteScreen = nil
		return true
	}
	return false
}

// UnregisterStream removes whichever entry carries the given stream ID
func (r *Registry) UnregisterStream(streamID string) (Source, bool) {
	src, ok := r.findStream(streamID)
	if !ok {
		return Source{}, false
	}
	r.Unregister(src.Kind, src.Owner)
	return *src, true
}

// UnregisterOwner removes every remote entry owned by identity
func (r *Registry) UnregisterOwner(identity string) int {
	n := 0
	if r.Unregister(RemoteCamera, identity) {
		n++
	}
	if r.remoteScreen != nil && r.remoteScreen.Owner == identity {
		r.remoteScreen = nil
		n++
	}
	return n
}

// UnregisterRemote drops all remote entries
func (r *Registry) UnregisterRemote() {
	r.remoteScreen = nil
	r.remoteCameras = make(map[string]*Source)
}

// SetState updates the ready state of the entry carrying streamID
func (r *Registry) SetState(streamID string, state ReadyState) bool {
	src, ok := r.findStream(streamID)
	if !ok {
		return false
	}
	src.State = state
	return true
}

// SetHandle replaces the handle of the entry carrying streamID
func (r *Registry) SetHandle(streamID string, h Handle) bool {
	src, ok := r.findStream(streamID)
	if !ok {
		return false
	}
	src.Handle = h
	return true
}

// Lookup returns a copy of the entry carrying streamID
func (r *Registry) Lookup(streamID string) (Source, bool) {
	src, ok := r.findStream(streamID)
	if !ok {
		return Source{}, false
	}
	return *src, true
}

func (r *Registry) findStream(streamID string) (*Source, bool) {
	if streamID == "" {
		return nil, false
	}
	for _, src := range r.all() {
		if src.StreamID() == streamID {
			return src, true
		}
	}
	return nil, false
}

func (r *Registry) all() []*Source {
	out := make([]*Source, 0, 3+len(r.remoteCameras))
	for _, src := range []*Source{r.localCamera, r.localScreen, r.remoteScreen} {
		if src != nil {
			out = append(out, src)
		}
	}
	for _, src := range r.remoteCameras {
		out = append(out, src)
	}
	return out
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.all())
}

// Snapshot returns an immutable copy of the registry state
func (r *Registry) Snapshot() Snapshot {
	var snap Snapshot
	if r.localCamera != nil {
		c := *r.localCamera
		snap.LocalCamera = &c
	}
	if r.localScreen != nil {
		c := *r.localScreen
		snap.LocalScreen = &c
	}
	if r.remoteScreen != nil {
		c := *r.remoteScreen
		snap.RemoteScreen = &c
	}
	if len(r.remoteCameras) > 0 {
		snap.RemoteCameras = make([]Source, 0, len(r.remoteCameras))
		for _, src := range r.remoteCameras {
			snap.RemoteCameras = append(snap.RemoteCameras, *src)
		}
		sort.Slice(snap.RemoteCameras, func(i, j int) bool {
			return snap.RemoteCameras[i].seq < snap.RemoteCameras[j].seq
		})
	}
	return snap
}

// Snapshot is a point-in-time copy of a Registry. Mutating it has no effect
// on the registry it was taken from.
type Snapshot struct {
	LocalCamera   *Source
	LocalScreen   *Source
	RemoteScreen  *Source
	RemoteCameras []Source // oldest registration first
}

// RemoteCamera returns the most recently registered remote camera
func (s Snapshot) RemoteCamera() (Source, bool) {
	if len(s.RemoteCameras) == 0 {
		return Source{}, false
	}
	return s.RemoteCameras[len(s.RemoteCameras)-1], true
}

// Empty reports whether the snapshot holds no sources
func (s Snapshot) Empty() bool {
	return s.LocalCamera == nil && s.LocalScreen == nil && s.RemoteScreen == nil && len(s.RemoteCameras) == 0
}
