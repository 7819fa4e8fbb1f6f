package proto

import "go.uber.org/zap/zapcore"

// RequestHeader is the first bytes for all request packets
type RequestHeader struct {
	Xid    int32
	Opcode OpType
}

func (h RequestHeader) Encode(e *Encoder) error {
	e.WriteInt32(h.Xid)
	e.WriteInt32(int32(h.Opcode))
	return nil
}

func (h *RequestHeader) Decode(d *Decoder) error {
	xid, err := d.ReadInt32()
	if err != nil {
		return err
	}
	op, err := d.ReadInt32()
	if err != nil {
		return err
	}
	h.Xid, h.Opcode = xid, OpType(op)
	return nil
}

// MarshalLogObject renders the request header for logging
func (h *RequestHeader) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddInt32("xid", h.Xid)
	return kv.AddObject("opcode", h.Opcode)
}

// ConnectRequest is the packet bytes struct for a connection request. It is
// sent without a RequestHeader.
type ConnectRequest struct {
	ProtocolVersion int32
	LastZxidSeen    int64
	TimeOut         int32
	SessionID       int64
	Passwd          []byte
	ReadOnly        bool
}

// ConnectRequestFrom builds the request that re-establishes the session
// described by resp.
func ConnectRequestFrom(resp *ConnectResponse, lastZxidSeen int64) *ConnectRequest {
	passwd := make([]byte, len(resp.Passwd))
	copy(passwd, resp.Passwd)
	return &ConnectRequest{
		ProtocolVersion: resp.ProtocolVersion,
		LastZxidSeen:    lastZxidSeen,
		TimeOut:         resp.TimeOut,
		SessionID:       resp.SessionID,
		Passwd:          passwd,
		ReadOnly:        resp.ReadOnly,
	}
}

func (r ConnectRequest) Encode(e *Encoder) error {
	e.WriteInt32(r.ProtocolVersion)
	e.WriteInt64(r.LastZxidSeen)
	e.WriteInt32(r.TimeOut)
	e.WriteInt64(r.SessionID)
	if err := e.WriteBuffer(r.Passwd); err != nil {
		return err
	}
	e.WriteBool(r.ReadOnly)
	return nil
}

func (r *ConnectRequest) Decode(d *Decoder) (err error) {
	if r.ProtocolVersion, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.LastZxidSeen, err = d.ReadInt64(); err != nil {
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
	// Clients older than 3.4 do not send the read-only flag.
	if d.Remaining() == 0 {
		r.ReadOnly = false
		return nil
	}
	r.ReadOnly, err = d.ReadBool()
	return err
}

// CreateRequest creates a node. Its response is a CreateResponse.
type CreateRequest struct {
	Path string
	Data []byte
	ACL  []ACL
	Mode CreateMode
}

func (r CreateRequest) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	if err := e.WriteBuffer(r.Data); err != nil {
		return err
	}
	if err := WriteSlice(e, r.ACL); err != nil {
		return err
	}
	e.WriteInt32(int32(r.Mode))
	return nil
}

func (r *CreateRequest) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	if r.Data, err = d.ReadBuffer(); err != nil {
		return err
	}
	if r.ACL, err = ReadSlice[ACL](d); err != nil {
		return err
	}
	mode, err := d.ReadInt32()
	r.Mode = CreateMode(mode)
	return err
}

// PathVersionRequest carries a path and an expected version, -1 for any.
type PathVersionRequest struct {
	Path    string
	Version int32
}

func (r PathVersionRequest) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	e.WriteInt32(r.Version)
	return nil
}

func (r *PathVersionRequest) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	r.Version, err = d.ReadInt32()
	return err
}

type DeleteRequest = PathVersionRequest
type CheckVersionRequest = PathVersionRequest

// PathWatchRequest carries a path and whether to leave a watch on it.
type PathWatchRequest struct {
	Path  string
	Watch bool
}

func (r PathWatchRequest) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	e.WriteBool(r.Watch)
	return nil
}

func (r *PathWatchRequest) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	r.Watch, err = d.ReadBool()
	return err
}

// We special case these so we track if these are watching actions
type ExistsRequest = PathWatchRequest
type GetDataRequest = PathWatchRequest
type GetChildrenRequest = PathWatchRequest
type GetChildren2Request = PathWatchRequest

// PathRequest carries only a path.
type PathRequest struct {
	Path string
}

func (r PathRequest) Encode(e *Encoder) error { return e.WriteString(r.Path) }

func (r *PathRequest) Decode(d *Decoder) (err error) {
	r.Path, err = d.ReadString()
	return err
}

type GetACLRequest = PathRequest
type SyncRequest = PathRequest

type SetACLRequest struct {
	Path    string
	ACL     []ACL
	Version int32
}

func (r SetACLRequest) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	if err := WriteSlice(e, r.ACL); err != nil {
		return err
	}
	e.WriteInt32(r.Version)
	return nil
}

func (r *SetACLRequest) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	if r.ACL, err = ReadSlice[ACL](d); err != nil {
		return err
	}
	r.Version, err = d.ReadInt32()
	return err
}

type SetDataRequest struct {
	Path    string
	Data    []byte
	Version int32
}

func (r SetDataRequest) Encode(e *Encoder) error {
	if err := e.WriteString(r.Path); err != nil {
		return err
	}
	if err := e.WriteBuffer(r.Data); err != nil {
		return err
	}
	e.WriteInt32(r.Version)
	return nil
}

func (r *SetDataRequest) Decode(d *Decoder) (err error) {
	if r.Path, err = d.ReadString(); err != nil {
		return err
	}
	if r.Data, err = d.ReadBuffer(); err != nil {
		return err
	}
	r.Version, err = d.ReadInt32()
	return err
}

// AuthRequest adds credentials to the session. It is sent with AuthXid.
type AuthRequest struct {
	Type   int32
	Scheme string
	Auth   []byte
}

func (r AuthRequest) Encode(e *Encoder) error {
	e.WriteInt32(r.Type)
	if err := e.WriteString(r.Scheme); err != nil {
		return err
	}
	return e.WriteBuffer(r.Auth)
}

func (r *AuthRequest) Decode(d *Decoder) (err error) {
	if r.Type, err = d.ReadInt32(); err != nil {
		return err
	}
	if r.Scheme, err = d.ReadString(); err != nil {
		return err
	}
	r.Auth, err = d.ReadBuffer()
	return err
}

// SetWatchesRequest re-registers watches after a reconnect. It is sent with
// SetWatchesXid.
type SetWatchesRequest struct {
	RelativeZxid int64
	DataWatches  []string
	ExistWatches []string
	ChildWatches []string
}

func (r SetWatchesRequest) Encode(e *Encoder) error {
	e.WriteInt64(r.RelativeZxid)
	for _, ws := range [][]string{r.DataWatches, r.ExistWatches, r.ChildWatches} {
		if err := e.WriteStrings(ws); err != nil {
			return err
		}
	}
	return nil
}

func (r *SetWatchesRequest) Decode(d *Decoder) (err error) {
	if r.RelativeZxid, err = d.ReadInt64(); err != nil {
		return err
	}
	for _, ws := range []*[]string{&r.DataWatches, &r.ExistWatches, &r.ChildWatches} {
		if *ws, err = d.ReadStrings(); err != nil {
			return err
		}
	}
	return nil
}

// EmptyRequest is the body of ping and close requests.
type EmptyRequest struct{}

func (EmptyRequest) Encode(*Encoder) error  { return nil }
func (*EmptyRequest) Decode(*Decoder) error { return nil }

type PingRequest = EmptyRequest
type CloseRequest = EmptyRequest

// RequestForOp returns an empty request body for op, or nil if op has no
// request body this package understands. Connect requests carry no header and
// are not keyed by an opcode.
func RequestForOp(op OpType) Decodable {
	switch op {
	case OpCreate, OpCreate2, OpCreateContainer:
		return &CreateRequest{}
	case OpDelete, OpCheck:
		return &PathVersionRequest{}
	case OpExists, OpGetData, OpGetChildren, OpGetChildren2:
		return &PathWatchRequest{}
	case OpGetACL, OpSync:
		return &PathRequest{}
	case OpSetACL:
		return &SetACLRequest{}
	case OpSetData:
		return &SetDataRequest{}
	case OpSetAuth:
		return &AuthRequest{}
	case OpSetWatches:
		return &SetWatchesRequest{}
	case OpPing, OpClose:
		return &EmptyRequest{}
	case OpMulti:
		return &MultiRequest{}
	}
	return nil
}
