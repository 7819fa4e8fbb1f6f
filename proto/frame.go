package proto

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// DefaultMaxFrameSize bounds frames read from a stream. It matches the
// jute.maxbuffer default the server uses for packets.
const DefaultMaxFrameSize = 1536 * 1024

// frameLengthSize is the size of the length prefix in front of every frame.
const frameLengthSize = 4

// EncodeFrame encodes parts one after another into a body and returns
// [i32 len(body)][body]. The body is built first so the prefix is written
// once, from its measured length.
func EncodeFrame(parts ...Encodable) ([]byte, error) {
	body := NewEncoder(64)
	for _, p := range parts {
		if err := p.Encode(body); err != nil {
			return nil, errors.Wrapf(err, "encode %T", p)
		}
	}
	if body.Len() > math.MaxInt32 {
		return nil, errors.Wrapf(ErrValueTooLarge, "frame body of %d bytes", body.Len())
	}
	frame := make([]byte, frameLengthSize, frameLengthSize+body.Len())
	binary.BigEndian.PutUint32(frame, uint32(body.Len()))
	return append(frame, body.Bytes()...), nil
}

// EncodeRequest frames a request header for xid and op followed by req. A nil
// req encodes an empty body, as used by ping and close.
func EncodeRequest(xid int32, op OpType, req Encodable) ([]byte, error) {
	if req == nil {
		req = EmptyRequest{}
	}
	return EncodeFrame(RequestHeader{Xid: xid, Opcode: op}, req)
}

// EncodeConnect frames the session handshake. It has no request header.
func EncodeConnect(req *ConnectRequest) ([]byte, error) {
	return EncodeFrame(req)
}

// EncodePing frames a ping request.
func EncodePing() ([]byte, error) {
	return EncodeRequest(PingXid, OpPing, nil)
}

// EncodeAuth frames an auth request.
func EncodeAuth(req *AuthRequest) ([]byte, error) {
	return EncodeRequest(AuthXid, OpSetAuth, req)
}

// EncodeClose frames a close-session request.
func EncodeClose(xid int32) ([]byte, error) {
	return EncodeRequest(xid, OpClose, nil)
}

// ReadFrame reads one length-prefixed frame from r and returns its body.
// Frames larger than max are rejected before any body byte is read.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var prefix [frameLengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errors.Wrap(err, "read frame length")
	}
	n := int32(binary.BigEndian.Uint32(prefix[:]))
	if n < 0 {
		return nil, errors.Wrapf(ErrNegativeLength, "frame length %d", n)
	}
	if int(n) > max {
		return nil, errors.Wrapf(ErrFrameTooLarge, "frame length %d, max %d", n, max)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Cause(err) == io.ErrUnexpectedEOF || errors.Cause(err) == io.EOF {
			return nil, errors.Wrapf(ErrShortBuffer, "frame body of %d bytes: %v", n, err)
		}
		return nil, errors.Wrap(err, "read frame body")
	}
	return body, nil
}

// SplitFrame splits the first frame off buf and returns its body and the
// bytes after it. An incomplete frame returns ErrShortBuffer; frames larger
// than max are rejected without waiting for their body.
func SplitFrame(buf []byte, max int) (body, rest []byte, err error) {
	d := NewDecoder(buf)
	n, err := d.ReadInt32()
	if err != nil {
		return nil, buf, err
	}
	if n < 0 {
		return nil, buf, errors.Wrapf(ErrNegativeLength, "frame length %d", n)
	}
	if int(n) > max {
		return nil, buf, errors.Wrapf(ErrFrameTooLarge, "frame length %d, max %d", n, max)
	}
	body, err = d.next(int(n))
	if err != nil {
		return nil, buf, err
	}
	return body, d.Rest(), nil
}

// DecodeRequest decodes a request body: the header, then the body matching
// its opcode.
func DecodeRequest(body []byte) (RequestHeader, Decodable, error) {
	var h RequestHeader
	d := NewDecoder(body)
	if err := h.Decode(d); err != nil {
		return h, nil, errors.Wrap(err, "decode request header")
	}
	req := RequestForOp(h.Opcode)
	if req == nil {
		return h, nil, errors.Wrapf(ErrUnexpectedOpType, "request opcode %v", h.Opcode)
	}
	if err := DecodeAll(d.Rest(), req); err != nil {
		return h, req, errors.Wrapf(err, "decode %v request", h.Opcode)
	}
	return h, req, nil
}

// DecodeReply decodes a reply body into its header and resp. When the header
// carries a non-zero result the body is not read and the result is returned
// as a *ServiceError. A nil resp expects an empty body.
func DecodeReply(body []byte, resp Decodable) (ReplyHeader, error) {
	var h ReplyHeader
	d := NewDecoder(body)
	if err := h.Decode(d); err != nil {
		return h, errors.Wrap(err, "decode reply header")
	}
	if err := h.Result(); err != nil {
		return h, err
	}
	if resp == nil {
		resp = &EmptyResponse{}
	}
	if err := DecodeAll(d.Rest(), resp); err != nil {
		return h, errors.Wrapf(err, "decode %T", resp)
	}
	return h, nil
}

// DecodeConnectResponse decodes the handshake reply. It has no reply header.
func DecodeConnectResponse(body []byte) (*ConnectResponse, error) {
	resp := &ConnectResponse{}
	if err := DecodeAll(body, resp); err != nil {
		return nil, errors.Wrap(err, "decode connect response")
	}
	return resp, nil
}
