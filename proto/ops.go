package proto

import (
	"fmt"

	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap/zapcore"
)

// Based on ZK 3.5 https://github.com/apache/zookeeper/blob/branch-3.5/src/java/main/org/apache/zookeeper/ZooDefs.java

// OpType is the type of ZK operation, carried as the opcode of a request header
// and as the type of each transaction entry.
type OpType int32

const (
	// OpNotify is for watch notifications
	OpNotify OpType = iota
	// OpCreate is zk connection Create()
	OpCreate
	// OpDelete is zk connection Delete()
	OpDelete
	// OpExists is zk connection Exists()
	OpExists
	// OpGetData is zk connection Get()
	OpGetData
	// OpSetData is zk connection Set()
	OpSetData

	// OpGetACL is zk connection GetACL()
	OpGetACL
	OpSetACL
	OpGetChildren
	OpSync // 9

	// OpPing is the zk client connection ping request
	OpPing OpType = iota + 1 // 11
	OpGetChildren2
	OpCheck
	OpMulti

	OpCreate2 // 15
	OpReconfig
	OpCheckWatches
	OpRemoveWatches
	OpCreateContainer

	OpDeleteContainer // 20
	OpCreateTTL

	OpCreateSession OpType = -12
	OpClose         OpType = -11

	OpSetAuth    OpType = 100
	OpSetWatches OpType = 101
	OpSasl       OpType = 102

	// OpError is the type of a failed transaction entry and of the entry
	// that terminates a transaction.
	OpError OpType = -1
)

var opNames = map[OpType]string{
	OpNotify:          "notify",
	OpCreate:          "create",
	OpDelete:          "delete",
	OpExists:          "exists",
	OpGetData:         "getData",
	OpSetData:         "setData",
	OpGetACL:          "getACL",
	OpSetACL:          "setACL",
	OpGetChildren:     "getChildren",
	OpSync:            "sync",
	OpPing:            "ping",
	OpGetChildren2:    "getChildren2",
	OpCheck:           "check",
	OpMulti:           "multi",
	OpCreate2:         "create2",
	OpReconfig:        "reconfig",
	OpCheckWatches:    "checkWatches",
	OpRemoveWatches:   "removeWatches",
	OpCreateContainer: "createContainer",
	OpDeleteContainer: "deleteContainer",
	OpCreateTTL:       "createTTL",
	OpCreateSession:   "createSession",
	OpClose:           "close",
	OpSetAuth:         "setAuth",
	OpSetWatches:      "setWatches",
	OpSasl:            "sasl",
	OpError:           "error",
}

func (o OpType) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OpType(%d)", int32(o))
}

// MarshalLogObject renders the logging structure for the OpType
func (o OpType) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddInt32("code", int32(o))
	kv.AddString("name", o.String())
	return nil
}

// Reserved xids. Regular requests use positive xids assigned by the caller.
const (
	WatcherEventXid int32 = -1
	PingXid         int32 = -2
	AuthXid         int32 = -4
	SetWatchesXid   int32 = -8
)

// CreateMode is the creation-mode code sent with create requests. The low
// bits are the go-zookeeper create flags.
type CreateMode int32

const (
	CreatePersistent           CreateMode = 0
	CreateEphemeral            CreateMode = zk.FlagEphemeral
	CreatePersistentSequential CreateMode = zk.FlagSequence
	CreateEphemeralSequential  CreateMode = zk.FlagEphemeral | zk.FlagSequence
	CreateContainer            CreateMode = 4
)

func (m CreateMode) String() string {
	switch m {
	case CreatePersistent:
		return "persistent"
	case CreateEphemeral:
		return "ephemeral"
	case CreatePersistentSequential:
		return "persistentSequential"
	case CreateEphemeralSequential:
		return "ephemeralSequential"
	case CreateContainer:
		return "container"
	}
	return fmt.Sprintf("CreateMode(%d)", int32(m))
}

// IsEphemeral reports whether nodes created with m are removed with the session.
func (m CreateMode) IsEphemeral() bool {
	return m&zk.FlagEphemeral != 0
}

// IsSequential reports whether the server appends a counter to the path.
func (m CreateMode) IsSequential() bool {
	return m&zk.FlagSequence != 0
}
