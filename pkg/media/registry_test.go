package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHandle string

func (h testHandle) StreamID() string { return string(h) }

func TestRegisterReplacesSameKind(t *testing.T) {
	r := NewRegistry()
	r.RegisterLocalCamera(Source{Owner: "me", Handle: testHandle("cam-1")})
	r.RegisterLocalCamera(Source{Owner: "me", Handle: testHandle("cam-2")})

	snap := r.Snapshot()
	require.NotNil(t, snap.LocalCamera)
	assert.Equal(t, "cam-2", snap.LocalCamera.StreamID())
	assert.Equal(t, LocalCamera, snap.LocalCamera.Kind)
	assert.Equal(t, 1, r.Len())
}

func TestRemoteScreenIsSingular(t *testing.T) {
	r := NewRegistry()
	r.RegisterRemoteScreen("alice", Source{Handle: testHandle("a-screen")})
	r.RegisterRemoteScreen("bob", Source{Handle: testHandle("b-screen")})

	snap := r.Snapshot()
	require.NotNil(t, snap.RemoteScreen)
	assert.Equal(t, "bob", snap.RemoteScreen.Owner)

	// a late teardown from alice must not remove bob's share
	assert.False(t, r.Unregister(RemoteScreen, "alice"))
	assert.NotNil(t, r.Snapshot().RemoteScreen)

	assert.True(t, r.Unregister(RemoteScreen, "bob"))
	assert.Nil(t, r.Snapshot().RemoteScreen)
}

func TestRemoteCameraMostRecentWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterRemoteCamera("alice", Source{Handle: testHandle("a")})
	r.RegisterRemoteCamera("bob", Source{Handle: testHandle("b")})

	cam, ok := r.Snapshot().RemoteCamera()
	require.True(t, ok)
	assert.Equal(t, "bob", cam.Owner)

	// re-registering alice makes her the most recent again
	r.RegisterRemoteCamera("alice", Source{Handle: testHandle("a2")})
	cam, ok = r.Snapshot().RemoteCamera()
	require.True(t, ok)
	assert.Equal(t, "alice", cam.Owner)
	assert.Len(t, r.Snapshot().RemoteCameras, 2)
}

func TestUnregisterAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	before := r.Snapshot()

	assert.False(t, r.Unregister(LocalCamera, ""))
	assert.False(t, r.Unregister(LocalScreen, ""))
	assert.False(t, r.Unregister(RemoteCamera, "ghost"))
	assert.False(t, r.Unregister(RemoteScreen, "ghost"))
	_, ok := r.UnregisterStream("nope")
	assert.False(t, ok)

	assert.Equal(t, before, r.Snapshot())
}

func TestRegisterThenUnregisterLeavesNoTrace(t *testing.T) {
	kinds := []struct {
		kind     Kind
		identity string
	}{
		{LocalCamera, ""},
		{LocalScreen, ""},
		{RemoteCamera, "alice"},
		{RemoteScreen, "alice"},
	}

	for _, k := range kinds {
		t.Run(k.kind.String(), func(t *testing.T) {
			r := NewRegistry()
			empty := r.Snapshot()

			r.Register(k.kind, k.identity, Source{Owner: k.identity, Handle: testHandle("s")})
			require.Equal(t, 1, r.Len())
			r.Unregister(k.kind, k.identity)

			assert.Equal(t, empty, r.Snapshot())
			assert.True(t, r.Snapshot().Empty())
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.RegisterLocalCamera(Source{Owner: "me", Label: "me", Handle: testHandle("cam")})
	r.RegisterRemoteCamera("alice", Source{Label: "Alice", Handle: testHandle("a")})

	snap := r.Snapshot()
	snap.LocalCamera.Label = "changed"
	snap.RemoteCameras[0].Label = "changed"

	again := r.Snapshot()
	assert.Equal(t, "me", again.LocalCamera.Label)
	assert.Equal(t, "Alice", again.RemoteCameras[0].Label)
}

func TestSetStateAndUnregisterStream(t *testing.T) {
	r := NewRegistry()
	r.RegisterRemoteCamera("alice", Source{Handle: testHandle("a-cam")})
	r.RegisterRemoteScreen("alice", Source{Handle: testHandle("a-screen")})

	assert.True(t, r.SetState("a-cam", Ready))
	assert.False(t, r.SetState("unknown", Ready))

	src, ok := r.Lookup("a-cam")
	require.True(t, ok)
	assert.Equal(t, Ready, src.State)

	removed, ok := r.UnregisterStream("a-screen")
	require.True(t, ok)
	assert.Equal(t, RemoteScreen, removed.Kind)
	assert.Nil(t, r.Snapshot().RemoteScreen)
}

func TestUnregisterOwner(t *testing.T) {
	r := NewRegistry()
	r.RegisterRemoteCamera("alice", Source{Handle: testHandle("a-cam")})
	r.RegisterRemoteScreen("alice", Source{Handle: testHandle("a-screen")})
	r.RegisterRemoteCamera("bob", Source{Handle: testHandle("b-cam")})

	assert.Equal(t, 2, r.UnregisterOwner("alice"))
	assert.Equal(t, 0, r.UnregisterOwner("alice"))

	snap := r.Snapshot()
	assert.Nil(t, snap.RemoteScreen)
	require.Len(t, snap.RemoteCameras, 1)
	assert.Equal(t, "bob", snap.RemoteCameras[0].Owner)
}

func TestDisplayable(t *testing.T) {
	assert.False(t, Source{}.Displayable())
	assert.True(t, Source{Handle: testHandle("x")}.Displayable())
	assert.False(t, Source{Handle: testHandle("x"), State: Ended}.Displayable())
}
