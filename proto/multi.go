package proto

import (
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap/zapcore"

	"github.com/jeffbean/zkwire/zkerrors"
)

// AnyVersionCode is the wire value for "no version constraint".
const AnyVersionCode int32 = -1

// Version is the optional version constraint of a transaction operation. The
// zero value matches any version and is encoded as -1.
type Version struct {
	value int32
	set   bool
}

// AnyVersion matches every version of a node.
var AnyVersion = Version{}

// ExactVersion requires the node to be at version v. A negative v is the
// same as AnyVersion.
func ExactVersion(v int32) Version {
	if v < 0 {
		return AnyVersion
	}
	return Version{value: v, set: true}
}

// Get returns the required version and whether there is one.
func (v Version) Get() (int32, bool) { return v.value, v.set }

func (v Version) wire() int32 {
	if !v.set {
		return AnyVersionCode
	}
	return v.value
}

// Op is one operation of a multi-operation transaction: CheckOp, CreateOp,
// DeleteOp or SetDataOp.
type Op interface {
	// Type is the opcode of the transaction entry.
	Type() OpType
	// Request is the standalone request with the same body layout.
	Request() Encodable
}

// CheckOp fails the transaction unless the node at Path exists at Version.
type CheckOp struct {
	Path    string
	Version Version
}

// CreateOp creates a node.
type CreateOp struct {
	Path string
	Data []byte
	ACL  []ACL
	Mode CreateMode
}

// DeleteOp deletes the node at Path.
type DeleteOp struct {
	Path    string
	Version Version
}

// SetDataOp replaces the data of the node at Path.
type SetDataOp struct {
	Path    string
	Data    []byte
	Version Version
}

func (CheckOp) Type() OpType   { return OpCheck }
func (CreateOp) Type() OpType  { return OpCreate }
func (DeleteOp) Type() OpType  { return OpDelete }
func (SetDataOp) Type() OpType { return OpSetData }

func (o CheckOp) Request() Encodable {
	return CheckVersionRequest{Path: o.Path, Version: o.Version.wire()}
}

func (o CreateOp) Request() Encodable {
	return CreateRequest{Path: o.Path, Data: o.Data, ACL: o.ACL, Mode: o.Mode}
}

func (o DeleteOp) Request() Encodable {
	return DeleteRequest{Path: o.Path, Version: o.Version.wire()}
}

func (o SetDataOp) Request() Encodable {
	return SetDataRequest{Path: o.Path, Data: o.Data, Version: o.Version.wire()}
}

// MultiHeader precedes every entry of a transaction request and reply.
type MultiHeader struct {
	Type OpType
	Done bool
	Err  zk.ErrCode
}

// multiDoneHeader terminates a transaction request and reply.
var multiDoneHeader = MultiHeader{Type: OpError, Done: true, Err: -1}

func (h MultiHeader) Encode(e *Encoder) error {
	e.WriteInt32(int32(h.Type))
	e.WriteBool(h.Done)
	e.WriteInt32(int32(h.Err))
	return nil
}

func (h *MultiHeader) Decode(d *Decoder) error {
	typ, err := d.ReadInt32()
	if err != nil {
		return err
	}
	done, err := d.ReadBool()
	if err != nil {
		return err
	}
	code, err := d.ReadInt32()
	if err != nil {
		return err
	}
	h.Type, h.Done, h.Err = OpType(typ), done, zk.ErrCode(code)
	return nil
}

// terminal reports whether h is the header-only entry that ends the stream.
func (h MultiHeader) terminal() bool { return h.Done && h.Type == OpError }

func (h *MultiHeader) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddBool("done", h.Done)
	kv.AddInt32("opcode", int32(h.Type))
	kv.AddString("opName", h.Type.String())
	kv.AddInt("errorCode", int(h.Err))
	kv.AddString("errorMsg", zkerrors.ZKErrCodeToMessage(h.Err))
	return nil
}

// MultiRequest is the body of an OpMulti request.
type MultiRequest struct {
	Ops []Op
}

func (r MultiRequest) Encode(e *Encoder) error {
	for i, op := range r.Ops {
		if op == nil {
			return errors.Wrapf(ErrNilOp, "op %d", i)
		}
		// Requests never carry a result, so err is always -1.
		if err := (MultiHeader{Type: op.Type(), Err: -1}).Encode(e); err != nil {
			return err
		}
		if err := op.Request().Encode(e); err != nil {
			return errors.Wrapf(err, "op %d (%v)", i, op.Type())
		}
	}
	return multiDoneHeader.Encode(e)
}

func (r *MultiRequest) Decode(d *Decoder) error {
	r.Ops = r.Ops[:0]
	for {
		var h MultiHeader
		if err := h.Decode(d); err != nil {
			return errors.Wrapf(err, "op %d header", len(r.Ops))
		}
		if h.Done {
			return nil
		}
		op, err := decodeOp(h.Type, d)
		if err != nil {
			return errors.Wrapf(err, "op %d (%v)", len(r.Ops), h.Type)
		}
		r.Ops = append(r.Ops, op)
	}
}

func decodeOp(typ OpType, d *Decoder) (Op, error) {
	switch typ {
	case OpCheck:
		var req CheckVersionRequest
		if err := req.Decode(d); err != nil {
			return nil, err
		}
		return CheckOp{Path: req.Path, Version: ExactVersion(req.Version)}, nil
	case OpCreate:
		var req CreateRequest
		if err := req.Decode(d); err != nil {
			return nil, err
		}
		return CreateOp{Path: req.Path, Data: req.Data, ACL: req.ACL, Mode: req.Mode}, nil
	case OpDelete:
		var req DeleteRequest
		if err := req.Decode(d); err != nil {
			return nil, err
		}
		return DeleteOp{Path: req.Path, Version: ExactVersion(req.Version)}, nil
	case OpSetData:
		var req SetDataRequest
		if err := req.Decode(d); err != nil {
			return nil, err
		}
		return SetDataOp{Path: req.Path, Data: req.Data, Version: ExactVersion(req.Version)}, nil
	}
	return nil, errors.Wrapf(ErrUnexpectedOpType, "transaction entry type %v", typ)
}

// ErrRolledBack is the outcome of an operation that would have succeeded but
// was undone because another operation of the transaction failed.
var ErrRolledBack = errors.New("zkwire: operation rolled back with its transaction")

// OpResult is the outcome of one transaction operation: EmptyResult,
// CreateResult, SetDataResult or ErrorResult. Results are positional, the
// i-th result belongs to the i-th Op.
type OpResult interface {
	// Err is nil unless the result is an ErrorResult.
	Err() error
	// Matches reports whether the result can be the outcome of op.
	Matches(op Op) bool
}

// EmptyResult is the outcome of a CheckOp or DeleteOp.
type EmptyResult struct{}

// CreateResult is the outcome of a CreateOp. Path differs from the requested
// path for sequential nodes. Stat is only set by servers answering create2.
type CreateResult struct {
	Path string
	Stat *Stat
}

// SetDataResult is the outcome of a SetDataOp.
type SetDataResult struct {
	Stat Stat
}

// ErrorResult is the outcome of an operation that did not apply. Code 0
// means the operation was rolled back because of another failure.
type ErrorResult struct {
	Code zk.ErrCode
}

func (EmptyResult) Err() error   { return nil }
func (CreateResult) Err() error  { return nil }
func (SetDataResult) Err() error { return nil }

func (r ErrorResult) Err() error {
	if r.Code == zkerrors.ErrOk {
		return ErrRolledBack
	}
	return &ServiceError{Code: r.Code}
}

func (EmptyResult) Matches(op Op) bool {
	switch op.(type) {
	case CheckOp, DeleteOp, *CheckOp, *DeleteOp:
		return true
	}
	return false
}

func (CreateResult) Matches(op Op) bool {
	switch op.(type) {
	case CreateOp, *CreateOp:
		return true
	}
	return false
}

func (SetDataResult) Matches(op Op) bool {
	switch op.(type) {
	case SetDataOp, *SetDataOp:
		return true
	}
	return false
}

func (ErrorResult) Matches(op Op) bool { return op != nil }

// MultiResponse is the body of an OpMulti reply.
type MultiResponse struct {
	Results []OpResult
}

// Encode writes results the way the server does: success entries carry
// err 0, failed entries are typed OpError and repeat their code as payload.
func (r MultiResponse) Encode(e *Encoder) error {
	for i, res := range r.Results {
		var err error
		switch res := res.(type) {
		case EmptyResult:
			// Check and delete results share a payload, the entry type only
			// needs to name one of them.
			err = MultiHeader{Type: OpCheck}.Encode(e)
		case CreateResult:
			typ := OpCreate
			if res.Stat != nil {
				typ = OpCreate2
			}
			_ = MultiHeader{Type: typ}.Encode(e)
			if err = e.WriteString(res.Path); err == nil && res.Stat != nil {
				err = res.Stat.Encode(e)
			}
		case SetDataResult:
			_ = MultiHeader{Type: OpSetData}.Encode(e)
			err = res.Stat.Encode(e)
		case ErrorResult:
			_ = MultiHeader{Type: OpError, Err: res.Code}.Encode(e)
			e.WriteInt32(int32(res.Code))
		default:
			err = errors.Wrapf(ErrUnexpectedOpType, "result %T", res)
		}
		if err != nil {
			return errors.Wrapf(err, "result %d", i)
		}
	}
	return multiDoneHeader.Encode(e)
}

// Decode reads entries until the terminal entry, or until an entry marked
// done. Each entry yields one result, in order:
//   - type OpError, not done: a failed operation, followed by its i32 code.
//   - any other type with err neither 0 nor -1: a failed operation with no payload.
//   - OpCheck, OpDelete: EmptyResult.
//   - OpSetData: SetDataResult, followed by a Stat.
//   - OpCreate: CreateResult, followed by the path. OpCreate2 adds a Stat.
//
// Any other type is a protocol error.
func (r *MultiResponse) Decode(d *Decoder) error {
	r.Results = r.Results[:0]
	for {
		var h MultiHeader
		if err := h.Decode(d); err != nil {
			return errors.Wrapf(err, "result %d header", len(r.Results))
		}
		if h.terminal() {
			return nil
		}
		res, err := decodeResult(h, d)
		if err != nil {
			return errors.Wrapf(err, "result %d (%v)", len(r.Results), h.Type)
		}
		r.Results = append(r.Results, res)
		if h.Done {
			return nil
		}
	}
}

func decodeResult(h MultiHeader, d *Decoder) (OpResult, error) {
	if h.Type == OpError {
		code, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		return ErrorResult{Code: zk.ErrCode(code)}, nil
	}
	if h.Err != zkerrors.ErrOk && h.Err != -1 {
		return ErrorResult{Code: h.Err}, nil
	}
	switch h.Type {
	case OpCheck, OpDelete:
		return EmptyResult{}, nil
	case OpSetData:
		var res SetDataResult
		if err := res.Stat.Decode(d); err != nil {
			return nil, err
		}
		return res, nil
	case OpCreate, OpCreate2:
		path, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		res := CreateResult{Path: path}
		if h.Type == OpCreate2 {
			res.Stat = &Stat{}
			if err := res.Stat.Decode(d); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	return nil, errors.Wrapf(ErrUnexpectedOpType, "transaction result type %v", h.Type)
}

// Err returns the first failure among the results, ignoring rolled back
// operations.
func (r *MultiResponse) Err() error {
	var rolledBack error
	for _, res := range r.Results {
		err := res.Err()
		if err == nil {
			continue
		}
		if err != ErrRolledBack {
			return err
		}
		rolledBack = err
	}
	return rolledBack
}

// Match checks that the results correspond one to one with ops.
func (r *MultiResponse) Match(ops []Op) error {
	if len(r.Results) != len(ops) {
		return errors.Wrapf(ErrResultMismatch, "%d results for %d operations", len(r.Results), len(ops))
	}
	for i, res := range r.Results {
		if !res.Matches(ops[i]) {
			return errors.Wrapf(ErrResultMismatch, "result %d is %T for %v", i, res, ops[i].Type())
		}
	}
	return nil
}

// EncodeTransaction frames ops as one OpMulti request.
func EncodeTransaction(xid int32, ops []Op) ([]byte, error) {
	return EncodeRequest(xid, OpMulti, MultiRequest{Ops: ops})
}

// DecodeTransactionReply decodes the reply to EncodeTransaction(xid, ops).
// It returns one result per op, in order. A reply that does not line up with
// ops is a protocol error. When the transaction failed the results are
// returned together with the error of the first failed operation.
func DecodeTransactionReply(body []byte, ops []Op) (ReplyHeader, []OpResult, error) {
	var h ReplyHeader
	d := NewDecoder(body)
	if err := h.Decode(d); err != nil {
		return h, nil, errors.Wrap(err, "decode reply header")
	}
	if d.Remaining() == 0 && h.Err != zkerrors.ErrOk {
		return h, nil, h.Result()
	}
	var resp MultiResponse
	if err := DecodeAll(d.Rest(), &resp); err != nil {
		return h, nil, errors.Wrap(err, "decode transaction reply")
	}
	if err := resp.Match(ops); err != nil {
		return h, nil, err
	}
	if err := resp.Err(); err != nil {
		return h, resp.Results, err
	}
	return h, resp.Results, h.Result()
}
