package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap"
)

// eventBuffer is how many watcher events are kept for Events before new ones
// are dropped.
const eventBuffer = 16

// session is one ZooKeeper session over a single connection. Calls are
// serialized: one request is in flight at a time.
type session struct {
	mu       sync.Mutex
	conn     net.Conn
	logger   *zap.Logger
	timeout  time.Duration
	maxFrame int

	xid      int32
	lastZxid int64
	id       int64
	passwd   []byte
	// negotiated is the session timeout granted by the server.
	negotiated time.Duration

	events chan zk.Event
}

func dial(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) (*session, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	s := newSession(conn, timeout, logger.With(zap.String("server", addr)))
	if err := s.connect(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func newSession(conn net.Conn, timeout time.Duration, logger *zap.Logger) *session {
	return &session{
		conn:     conn,
		logger:   logger,
		timeout:  timeout,
		maxFrame: proto.DefaultMaxFrameSize,
		events:   make(chan zk.Event, eventBuffer),
	}
}

// connect runs the session handshake. The first handshake asks for a new
// session; later ones resume the session with the id and password granted.
func (s *session) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := proto.InitialConnectResponse(int32(s.timeout / time.Millisecond))
	if s.id != 0 {
		prev.SessionID, prev.Passwd = s.id, s.passwd
	}
	frame, err := proto.EncodeConnect(proto.ConnectRequestFrom(prev, s.lastZxid))
	if err != nil {
		return err
	}
	if err := s.write(frame); err != nil {
		return err
	}
	body, err := proto.ReadFrame(s.conn, s.maxFrame)
	if err != nil {
		return errors.Wrap(err, "read connect response")
	}
	resp, err := proto.DecodeConnectResponse(body)
	if err != nil {
		return err
	}
	if resp.TimeOut <= 0 {
		return errors.Wrapf(zk.ErrSessionExpired, "session %#x", s.id)
	}
	s.id, s.passwd = resp.SessionID, resp.Passwd
	s.negotiated = time.Duration(resp.TimeOut) * time.Millisecond
	s.logger.Info("session established",
		zap.String("sessionID", sessionString(s.id)),
		zap.Duration("timeout", s.negotiated),
		zap.Bool("readOnly", resp.ReadOnly),
	)
	return nil
}

func sessionString(id int64) string {
	return fmt.Sprintf("%#x", id)
}

// Events returns watcher notifications received while waiting for replies.
func (s *session) Events() <-chan zk.Event {
	return s.events
}

func (s *session) write(frame []byte) error {
	if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return errors.Wrap(err, "set deadline")
	}
	if _, err := s.conn.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (s *session) nextXid() int32 {
	s.xid++
	if s.xid <= 0 {
		s.xid = 1
	}
	return s.xid
}

// readReply reads frames until the reply for xid arrives. Watcher
// notifications read on the way are queued for Events.
func (s *session) readReply(xid int32) ([]byte, error) {
	for {
		body, err := proto.ReadFrame(s.conn, s.maxFrame)
		if err != nil {
			return nil, errors.Wrap(err, "read reply")
		}
		var h proto.ReplyHeader
		d := proto.NewDecoder(body)
		if err := h.Decode(d); err != nil {
			return nil, errors.Wrap(err, "decode reply header")
		}
		if h.Zxid > 0 {
			s.lastZxid = h.Zxid
		}
		if h.IsWatchEvent() {
			ev, err := proto.DecodeWatchEvent(d.Rest())
			if err != nil {
				return nil, err
			}
			s.deliver(ev)
			continue
		}
		if h.Xid != xid {
			return nil, errors.Errorf("reply for xid %d while waiting for %d", h.Xid, xid)
		}
		return body, nil
	}
}

func (s *session) deliver(ev *proto.WatcherEvent) {
	s.logger.Debug("watcher event", zap.Object("event", ev))
	select {
	case s.events <- ev.ZKEvent():
	default:
		s.logger.Warn("dropping watcher event", zap.Object("event", ev))
	}
}

// call sends one request and decodes its reply into resp.
func (s *session) call(op proto.OpType, req proto.Encodable, resp proto.Decodable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	xid := s.nextXid()
	frame, err := proto.EncodeRequest(xid, op, req)
	if err != nil {
		return err
	}
	return s.roundTrip(xid, op, frame, resp)
}

// roundTrip writes an encoded request frame and waits for the reply to xid.
// The caller holds mu.
func (s *session) roundTrip(xid int32, op proto.OpType, frame []byte, resp proto.Decodable) error {
	if err := s.write(frame); err != nil {
		return err
	}
	body, err := s.readReply(xid)
	if err != nil {
		return err
	}
	_, err = proto.DecodeReply(body, resp)
	return errors.Wrapf(err, "%v", op)
}

func (s *session) Create(path string, data []byte, mode proto.CreateMode, acl []proto.ACL) (string, error) {
	var resp proto.CreateResponse
	err := s.call(proto.OpCreate, proto.CreateRequest{Path: path, Data: data, ACL: acl, Mode: mode}, &resp)
	return resp.Path, err
}

func (s *session) Get(path string, watch bool) ([]byte, proto.Stat, error) {
	var resp proto.GetDataResponse
	err := s.call(proto.OpGetData, proto.GetDataRequest{Path: path, Watch: watch}, &resp)
	return resp.Data, resp.Stat, err
}

func (s *session) Set(path string, data []byte, version proto.Version) (proto.Stat, error) {
	var resp proto.SetDataResponse
	v, ok := version.Get()
	if !ok {
		v = proto.AnyVersionCode
	}
	err := s.call(proto.OpSetData, proto.SetDataRequest{Path: path, Data: data, Version: v}, &resp)
	return resp.Stat, err
}

func (s *session) Delete(path string, version proto.Version) error {
	v, ok := version.Get()
	if !ok {
		v = proto.AnyVersionCode
	}
	return s.call(proto.OpDelete, proto.DeleteRequest{Path: path, Version: v}, nil)
}

// Exists reports whether path exists. A missing node is not an error.
func (s *session) Exists(path string, watch bool) (bool, proto.Stat, error) {
	var resp proto.ExistsResponse
	err := s.call(proto.OpExists, proto.ExistsRequest{Path: path, Watch: watch}, &resp)
	if errors.Is(err, zk.ErrNoNode) {
		return false, proto.Stat{}, nil
	}
	return err == nil, resp.Stat, err
}

func (s *session) Children(path string) ([]string, error) {
	var resp proto.GetChildrenResponse
	err := s.call(proto.OpGetChildren, proto.GetChildrenRequest{Path: path}, &resp)
	return resp.Children, err
}

func (s *session) Auth(scheme string, auth []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, err := proto.EncodeAuth(&proto.AuthRequest{Scheme: scheme, Auth: auth})
	if err != nil {
		return err
	}
	return s.roundTrip(proto.AuthXid, proto.OpSetAuth, frame, nil)
}

func (s *session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, err := proto.EncodePing()
	if err != nil {
		return err
	}
	return s.roundTrip(proto.PingXid, proto.OpPing, frame, nil)
}

// Multi runs ops as one transaction. When it fails the per-op results are
// returned with the error of the first failed op.
func (s *session) Multi(ops ...proto.Op) ([]proto.OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xid := s.nextXid()
	frame, err := proto.EncodeTransaction(xid, ops)
	if err != nil {
		return nil, err
	}
	if err := s.write(frame); err != nil {
		return nil, err
	}
	body, err := s.readReply(xid)
	if err != nil {
		return nil, err
	}
	_, results, err := proto.DecodeTransactionReply(body, ops)
	return results, errors.Wrap(err, "multi")
}

// Close ends the session and closes the connection.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	xid := s.nextXid()
	frame, err := proto.EncodeClose(xid)
	if err == nil {
		err = s.roundTrip(xid, proto.OpClose, frame, nil)
	}
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
