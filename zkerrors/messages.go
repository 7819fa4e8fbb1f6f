package zkerrors

import "github.com/samuel/go-zookeeper/zk"

const (
	// ErrOk The OK Error code from ZK packets
	ErrOk zk.ErrCode = 0
	// System and server-side errors
	ErrSystemError          zk.ErrCode = -1
	ErrRuntimeInconsistency zk.ErrCode = -2
	ErrDataInconsistency    zk.ErrCode = -3
	ErrConnectionLoss       zk.ErrCode = -4
	ErrMarshallingError     zk.ErrCode = -5
	ErrUnimplemented        zk.ErrCode = -6
	ErrOperationTimeout     zk.ErrCode = -7
	ErrBadArguments         zk.ErrCode = -8
	ErrInvalidState         zk.ErrCode = -9

	// API errors
	ErrAPIError                zk.ErrCode = -100
	ErrNoNode                  zk.ErrCode = -101 // *
	ErrNoAuth                  zk.ErrCode = -102
	ErrBadVersion              zk.ErrCode = -103 // *
	ErrNoChildrenForEphemerals zk.ErrCode = -108
	ErrNodeExists              zk.ErrCode = -110 // *
	ErrNotEmpty                zk.ErrCode = -111
	ErrSessionExpired          zk.ErrCode = -112
	ErrInvalidCallback         zk.ErrCode = -113
	ErrInvalidACL              zk.ErrCode = -114
	ErrAuthFailed              zk.ErrCode = -115
	ErrClosing                 zk.ErrCode = -116
	ErrNothing                 zk.ErrCode = -117
	ErrSessionMoved            zk.ErrCode = -118
)

var errCodeToString = map[zk.ErrCode]string{
	ErrOk:                      "",
	ErrSystemError:             "system error",
	ErrRuntimeInconsistency:    "runtime inconsistency",
	ErrDataInconsistency:       "data inconsistency",
	ErrConnectionLoss:          "connection loss",
	ErrMarshallingError:        "marshalling error",
	ErrUnimplemented:           "unimplemented",
	ErrOperationTimeout:        "operation timeout",
	ErrBadArguments:            "invalid arguments",
	ErrInvalidState:            "invalid state",
	ErrAPIError:                "api error",
	ErrNoNode:                  "node does not exist",
	ErrNoAuth:                  "not authenticated",
	ErrBadVersion:              "version conflict",
	ErrNoChildrenForEphemerals: "ephemeral nodes may not have children",
	ErrNodeExists:              "node already exists",
	ErrNotEmpty:                "node has children",
	ErrSessionExpired:          "session has been expired by the server",
	ErrInvalidCallback:         "invalid callback",
	ErrInvalidACL:              "invalid ACL specified",
	ErrAuthFailed:              "client authentication failed",
	ErrClosing:                 "zookeeper is closing",
	ErrNothing:                 "no server responsees to process",
	ErrSessionMoved:            "session moved to another server, so operation is ignored",
}

// errCodeToError maps the codes go-zookeeper has values for. Callers match on
// those values with errors.Is.
var errCodeToError = map[zk.ErrCode]error{
	ErrOk:                      nil,
	ErrAPIError:                zk.ErrAPIError,
	ErrNoNode:                  zk.ErrNoNode,
	ErrNoAuth:                  zk.ErrNoAuth,
	ErrBadVersion:              zk.ErrBadVersion,
	ErrNoChildrenForEphemerals: zk.ErrNoChildrenForEphemerals,
	ErrNodeExists:              zk.ErrNodeExists,
	ErrNotEmpty:                zk.ErrNotEmpty,
	ErrSessionExpired:          zk.ErrSessionExpired,
	ErrInvalidACL:              zk.ErrInvalidACL,
	ErrAuthFailed:              zk.ErrAuthFailed,
	ErrClosing:                 zk.ErrClosing,
	ErrNothing:                 zk.ErrNothing,
	ErrSessionMoved:            zk.ErrSessionMoved,
	ErrConnectionLoss:          zk.ErrConnectionClosed,
}

// ZKErrCodeToMessage converts the ZK error code to a message
func ZKErrCodeToMessage(ec zk.ErrCode) string {
	if errString, ok := errCodeToString[ec]; ok {
		return errString
	}
	return "unknown error"
}

// ToError returns the go-zookeeper error value for ec. ErrOk maps to nil and
// codes without a dedicated value map to zk.ErrUnknown.
func ToError(ec zk.ErrCode) error {
	if err, ok := errCodeToError[ec]; ok {
		return err
	}
	return zk.ErrUnknown
}

// IsSystemError reports whether ec is in the server-side range (-1 to -99),
// as opposed to an API error caused by the request itself.
func IsSystemError(ec zk.ErrCode) bool {
	return ec < ErrOk && ec > ErrAPIError
}
