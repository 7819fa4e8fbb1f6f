package proto

import (
	"testing"

	"github.com/samuel/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWatchEvent(t *testing.T) {
	body := []byte{
		0, 0, 0, 3, // data changed
		0, 0, 0, 3, // sync connected
		0, 0, 0, 4, '/', 'f', 'o', 'o',
	}
	ev, err := DecodeWatchEvent(body)
	require.NoError(t, err)
	assert.Equal(t, &WatcherEvent{Type: EventNodeDataChanged, State: StateSyncConnected, Path: "/foo"}, ev)
	assert.Equal(t, "nodeDataChanged", ev.Type.String())
	assert.Equal(t, "syncConnected", ev.State.String())
}

func TestWatchEventRoundTrip(t *testing.T) {
	for _, in := range []WatcherEvent{
		{Type: EventNone, State: StateExpired, Path: ""},
		{Type: EventNodeCreated, State: StateSyncConnected, Path: "/a"},
		{Type: EventChildWatchRemoved, State: StateConnectedReadOnly, Path: "/a/b"},
	} {
		var out WatcherEvent
		roundTrip(t, in, &out)
		assert.Equal(t, in, out)
	}
}

func TestDecodeWatchEventAllStates(t *testing.T) {
	tests := []struct {
		typ   int32
		state int32
		want  WatcherEvent
	}{
		{-1, 1, WatcherEvent{Type: EventNone, State: StateNoSyncConnected, Path: "/p"}},
		{-1, -1, WatcherEvent{Type: EventNone, State: StateUnknown, Path: "/p"}},
		{-1, 7, WatcherEvent{Type: EventNone, State: StateClosed, Path: "/p"}},
		{7, 3, WatcherEvent{Type: EventPersistentWatchRemoved, State: StateSyncConnected, Path: "/p"}},
	}
	for _, tt := range tests {
		e := NewEncoder(0)
		e.WriteInt32(tt.typ)
		e.WriteInt32(tt.state)
		require.NoError(t, e.WriteString("/p"))

		ev, err := DecodeWatchEvent(e.Bytes())
		require.NoError(t, err, "type %d state %d", tt.typ, tt.state)
		assert.Equal(t, &tt.want, ev)
	}
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "persistentWatchRemoved", EventPersistentWatchRemoved.String())
}

func TestDecodeWatchEventUnknown(t *testing.T) {
	_, err := DecodeWatchEvent([]byte{0, 0, 0, 42, 0, 0, 0, 3, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.True(t, IsProtocolError(err))

	_, err = DecodeWatchEvent([]byte{0, 0, 0, 1, 0, 0, 0, 42, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeWatchEventTruncated(t *testing.T) {
	_, err := DecodeWatchEvent([]byte{0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 9, '/'})
	assert.True(t, IsFramingError(err))
}

func TestWatchEventFrame(t *testing.T) {
	e := NewEncoder(0)
	require.NoError(t, ReplyHeader{Xid: WatcherEventXid, Zxid: -1}.Encode(e))
	require.NoError(t, WatcherEvent{Type: EventNodeDeleted, State: StateSyncConnected, Path: "/gone"}.Encode(e))

	var h ReplyHeader
	d := NewDecoder(e.Bytes())
	require.NoError(t, h.Decode(d))
	assert.True(t, h.IsWatchEvent())

	ev, err := DecodeWatchEvent(d.Rest())
	require.NoError(t, err)
	assert.Equal(t, zk.Event{Type: zk.EventNodeDeleted, State: zk.State(3), Path: "/gone"}, ev.ZKEvent())
}
