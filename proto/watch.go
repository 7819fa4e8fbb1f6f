package proto

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap/zapcore"
)

// EventType is the kind of change a watcher notification reports.
type EventType int32

const (
	EventNone                   EventType = -1
	EventNodeCreated            EventType = 1
	EventNodeDeleted            EventType = 2
	EventNodeDataChanged        EventType = 3
	EventNodeChildrenChanged    EventType = 4
	EventDataWatchRemoved       EventType = 5
	EventChildWatchRemoved      EventType = 6
	EventPersistentWatchRemoved EventType = 7
)

var eventNames = map[EventType]string{
	EventNone:                   "none",
	EventNodeCreated:            "nodeCreated",
	EventNodeDeleted:            "nodeDeleted",
	EventNodeDataChanged:        "nodeDataChanged",
	EventNodeChildrenChanged:    "nodeChildrenChanged",
	EventDataWatchRemoved:       "dataWatchRemoved",
	EventChildWatchRemoved:      "childWatchRemoved",
	EventPersistentWatchRemoved: "persistentWatchRemoved",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int32(t))
}

// KeeperState is the session state carried by a watcher notification.
type KeeperState int32

const (
	StateUnknown           KeeperState = -1
	StateDisconnected      KeeperState = 0
	StateNoSyncConnected   KeeperState = 1
	StateSyncConnected     KeeperState = 3
	StateAuthFailed        KeeperState = 4
	StateConnectedReadOnly KeeperState = 5
	StateSaslAuthenticated KeeperState = 6
	StateClosed            KeeperState = 7
	StateExpired           KeeperState = -112
)

var stateNames = map[KeeperState]string{
	StateUnknown:           "unknown",
	StateDisconnected:      "disconnected",
	StateNoSyncConnected:   "noSyncConnected",
	StateSyncConnected:     "syncConnected",
	StateAuthFailed:        "authFailed",
	StateConnectedReadOnly: "connectedReadOnly",
	StateSaslAuthenticated: "saslAuthenticated",
	StateClosed:            "closed",
	StateExpired:           "expired",
}

func (s KeeperState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("KeeperState(%d)", int32(s))
}

// WatcherEvent is the body of a notification frame, the frame whose reply
// header has WatcherEventXid.
type WatcherEvent struct {
	Type  EventType
	State KeeperState
	Path  string
}

func (ev WatcherEvent) Encode(e *Encoder) error {
	e.WriteInt32(int32(ev.Type))
	e.WriteInt32(int32(ev.State))
	return e.WriteString(ev.Path)
}

func (ev *WatcherEvent) Decode(d *Decoder) error {
	typ, err := d.ReadInt32()
	if err != nil {
		return err
	}
	state, err := d.ReadInt32()
	if err != nil {
		return err
	}
	if _, ok := eventNames[EventType(typ)]; !ok {
		return errors.Wrapf(ErrUnknownEvent, "event type %d", typ)
	}
	if _, ok := stateNames[KeeperState(state)]; !ok {
		return errors.Wrapf(ErrUnknownEvent, "keeper state %d", state)
	}
	path, err := d.ReadString()
	if err != nil {
		return err
	}
	ev.Type, ev.State, ev.Path = EventType(typ), KeeperState(state), path
	return nil
}

// ZKEvent converts the notification to a go-zookeeper event.
func (ev *WatcherEvent) ZKEvent() zk.Event {
	return zk.Event{
		Type:  zk.EventType(ev.Type),
		State: zk.State(ev.State),
		Path:  ev.Path,
	}
}

func (ev *WatcherEvent) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddString("type", ev.Type.String())
	kv.AddString("state", ev.State.String())
	kv.AddString("path", ev.Path)
	return nil
}

// DecodeWatchEvent decodes a notification body, the bytes after the reply
// header.
func DecodeWatchEvent(body []byte) (*WatcherEvent, error) {
	ev := &WatcherEvent{}
	if err := DecodeAll(body, ev); err != nil {
		return nil, errors.Wrap(err, "decode watcher event")
	}
	return ev, nil
}
