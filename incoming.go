package main

import (
	"encoding/binary"
	"time"

	"github.com/jeffbean/zkwire/proto"
	"go.uber.org/zap"
)

// Connect request bodies are 44 bytes, or 45 with the read-only flag.
const (
	connectRequestSize         = 44
	connectRequestReadOnlySize = 45
)

// looksLikeConnect reports whether a client frame is a session handshake.
// The handshake has no request header; it starts with protocol version 0,
// which would otherwise be read as xid 0, an xid clients never use.
func looksLikeConnect(body []byte) bool {
	if len(body) != connectRequestSize && len(body) != connectRequestReadOnlySize {
		return false
	}
	return binary.BigEndian.Uint32(body) == 0
}

func (s *sniffer) handleRequest(c client, body []byte, ts time.Time) error {
	l := s.logger.With(zap.Stringer("client", c))
	if looksLikeConnect(body) {
		var req proto.ConnectRequest
		if err := proto.DecodeAll(body, &req); err == nil {
			s.connecting[c.String()] = ts
			s.metrics.request(proto.OpCreateSession, false)
			l.Info("---> client connect",
				zap.Int64("sessionID", req.SessionID),
				zap.Int32("timeout", req.TimeOut),
				zap.Int64("lastZxidSeen", req.LastZxidSeen),
				zap.Bool("readOnly", req.ReadOnly),
			)
			return nil
		}
	}

	header, ot, err := processIncomingOperation(l, body)
	if err != nil {
		return err
	}
	ot.time = ts
	s.pending[c.xidKey(header.Xid)] = ot
	s.metrics.request(ot.opCode, ot.watch)
	return nil
}

// processIncomingOperation decodes one client frame body and returns the
// operation to track until its reply arrives.
func processIncomingOperation(l *zap.Logger, body []byte) (proto.RequestHeader, *opTime, error) {
	header, req, err := proto.DecodeRequest(body)
	if err != nil {
		return header, nil, err
	}
	// This section is breaking up how to process different request types all based on the header operation
	// We have a few special cases where we want to see metrics for watches and multi operations
	ot := &opTime{opCode: header.Opcode}
	l = l.With(zap.Object("header", &header))
	switch r := req.(type) {
	case *proto.PathWatchRequest:
		ot.watch = r.Watch
		l.Debug("--> client watchable request", zap.String("path", r.Path), zap.Bool("watch", r.Watch))
	case *proto.MultiRequest:
		ot.ops = r.Ops
		l.Debug("--> client multi request", zap.Int("ops", len(r.Ops)))
	case *proto.AuthRequest:
		l.Debug("--> client auth", zap.String("scheme", r.Scheme))
	case *proto.SetWatchesRequest:
		l.Debug("--> client set watches",
			zap.Int64("relativeZxid", r.RelativeZxid),
			zap.Strings("data", r.DataWatches),
			zap.Strings("exist", r.ExistWatches),
			zap.Strings("child", r.ChildWatches),
		)
	case *proto.EmptyRequest:
	default:
		l.Debug("--> client request", zap.Any("request", req))
	}
	return header, ot, nil
}
