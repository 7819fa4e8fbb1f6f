package proto

import (
	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap/zapcore"

	"github.com/jeffbean/zkwire/zkerrors"
)

// ReplyHeader is the first bytes for all ZK response packets
type ReplyHeader struct {
	Xid  int32
	Zxid int64
	Err  zk.ErrCode
}

func (h ReplyHeader) Encode(e *Encoder) error {
	e.WriteInt32(h.Xid)
	e.WriteInt64(h.Zxid)
	e.WriteInt32(int32(h.Err))
	return nil
}

func (h *ReplyHeader) Decode(d *Decoder) error {
	if d.Remaining() < replyHeaderSize {
		_, err := d.next(replyHeaderSize)
		return err
	}
	h.Xid, _ = d.ReadInt32()
	h.Zxid, _ = d.ReadInt64()
	code, _ := d.ReadInt32()
	h.Err = zk.ErrCode(code)
	return nil
}

const replyHeaderSize = 4 + 8 + 4

// IsWatchEvent reports whether the frame is a watcher notification rather
// than the reply to a request.
func (h ReplyHeader) IsWatchEvent() bool { return h.Xid == WatcherEventXid }

// Result returns the server result as an error, nil on success.
func (h ReplyHeader) Result() error {
	if h.Err == zkerrors.ErrOk {
		return nil
	}
	return &ServiceError{Code: h.Err}
}

// MarshalLogObject renders the reply header for logging
func (h *ReplyHeader) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddInt32("xid", h.Xid)
	kv.AddInt64("zxid", h.Zxid)
	kv.AddInt32("errorCode", int32(h.Err))
	kv.AddString("errorMsg", zkerrors.ZKErrCodeToMessage(h.Err))
	return nil
}

// ConnectResponse is the packet from ZK server connection request
type ConnectResponse struct {
	ProtocolVersion int32
	TimeOut         int32
	SessionID       int64
	Passwd          []byte
	ReadOnly        bool
}

// InitialConnectResponse is the session state before the first handshake:
// no session and an all zero password.
func InitialConnectResponse(timeout int32) *ConnectResponse {
	return &ConnectResponse{
		TimeOut: timeout,
		Passwd:  make([]byte, 16),
	}
}

func (r ConnectResponse) Encode(e *Encoder) error {
	e.WriteInt32(r.ProtocolVersion)
	e.WriteInt32(r.TimeOut)
	e.WriteInt64(r.SessionID)
	if err := e.WriteBuffer(r.Passwd); err != nil {
		return err
	}
	e.WriteBool(r.ReadOnly)
	return nil
}

func (r *ConnectResponse) Decode(d *Decoder) (err error) {
	if r.ProtocolVersion, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.TimeOut, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.SessionID, err = d.ReadInt64(); err != nil {
		return err
	}
	if r.Passwd, err = d.ReadBuffer(); err != nil {
		return err
	}
	// Servers older than 3.4 do not send the read-only flag.
	if d.Remaining() == 0 {
		r.ReadOnly = false
		return nil
	}
	r.ReadOnly, err = d.ReadBool()
	return err
}

// PathResponse carries the path the server acted on.
type PathResponse struct {
	Path string
}

func (r PathResponse) Encode(e *Encoder) error { return e.WriteString(r.Path) }

func (r *PathResponse) Decode(d *Decoder) (err error) {
	r.Path, err = d.ReadString()
	return err
}

type CreateResponse = PathResponse
type SyncResponse = PathResponse

// StatResponse carries the metadata of the node after the request.
type StatResponse struct {
	Stat Stat
}

func (r StatResponse) Encode(e *Encoder) error { return r.Stat.Encode(e) }

func (r *StatResponse) Decode(d *Decoder) error { return r.Stat.Decode(d) }

type ExistsResponse = StatResponse
type SetDataResponse = StatResponse
type SetACLResponse = StatResponse

// Create2Response is the reply to OpCreate2 and OpCreateContainer.
type Create2Response struct {
	Path string
	Stat Stat
}

func (r Create2Response) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	return r.Stat.Encode(e)
}

func (r *Create2Response) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type GetDataResponse struct {
	Data []byte
	Stat Stat
}

func (r GetDataResponse) Encode(e *Encoder) error {
	if err := e.WriteBuffer(r.Data); err != nil {
		return err
	}
	return r.Stat.Encode(e)
}

func (r *GetDataResponse) Decode(d *Decoder) (err error) {
	if r.Data, err = d.ReadBuffer(); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type GetACLResponse struct {
	ACL  []ACL
	Stat Stat
}

func (r GetACLResponse) Encode(e *Encoder) error {
	if err := WriteSlice(e, r.ACL); err != nil {
		return err
	}
	return r.Stat.Encode(e)
}

func (r *GetACLResponse) Decode(d *Decoder) (err error) {
	if r.ACL, err = ReadSlice[ACL](d); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

type GetChildrenResponse struct {
	Children []string
}

func (r GetChildrenResponse) Encode(e *Encoder) error { return e.WriteStrings(r.Children) }

func (r *GetChildrenResponse) Decode(d *Decoder) (err error) {
	r.Children, err = d.ReadStrings()
	return err
}

type GetChildren2Response struct {
	Children []string
	Stat     Stat
}

func (r GetChildren2Response) Encode(e *Encoder) error {
	if err := e.WriteStrings(r.Children); err != nil {
		return err
	}
	return r.Stat.Encode(e)
}

func (r *GetChildren2Response) Decode(d *Decoder) (err error) {
	if r.Children, err = d.ReadStrings(); err != nil {
		return err
	}
	return r.Stat.Decode(d)
}

// EmptyResponse is the body of replies that carry nothing but the header.
type EmptyResponse struct{}

func (EmptyResponse) Encode(*Encoder) error { return nil }

func (*EmptyResponse) Decode(*Decoder) error { return nil }

type DeleteResponse = EmptyResponse
type SetAuthResponse = EmptyResponse
type SetWatchesResponse = EmptyResponse
type PingResponse = EmptyResponse
type CloseResponse = EmptyResponse

// ResponseForOp returns an empty response body for op, or nil if the reply to
// op has no body this package understands.
func ResponseForOp(op OpType) Decodable {
	switch op {
	case OpCreate, OpSync:
		return &PathResponse{}
	case OpExists, OpSetData, OpSetACL:
		return &StatResponse{}
	case OpCreate2, OpCreateContainer:
		return &Create2Response{}
	case OpGetData:
		return &GetDataResponse{}
	case OpGetACL:
		return &GetACLResponse{}
	case OpGetChildren:
		return &GetChildrenResponse{}
	case OpGetChildren2:
		return &GetChildren2Response{}
	case OpDelete, OpSetAuth, OpSetWatches, OpPing, OpClose, OpCheck:
		return &EmptyResponse{}
	case OpMulti:
		return &MultiResponse{}
	}
	return nil
}
