package main

import (
	"time"

	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (s *sniffer) handleReply(c client, body []byte, ts time.Time) error {
	l := s.logger.With(zap.Stringer("client", c))
	if start, ok := s.connecting[c.String()]; ok {
		delete(s.connecting, c.String())
		return s.handleConnectReply(l, body, ts.Sub(start))
	}

	var header proto.ReplyHeader
	d := proto.NewDecoder(body)
	if err := header.Decode(d); err != nil {
		return errors.Wrap(err, "decode reply header")
	}
	l = l.With(zap.Object("header", &header))

	if header.IsWatchEvent() {
		ev, err := proto.DecodeWatchEvent(d.Rest())
		if err != nil {
			return err
		}
		s.metrics.watchEvent(ev)
		l.Info("<-- watcher event notification", zap.Object("event", ev))
		return nil
	}

	// see if we have a client request for this server reply
	key := c.xidKey(header.Xid)
	operation, found := s.pending[key]
	if !found {
		l.Debug("<-- reply without a tracked request")
		return nil
	}
	delete(s.pending, key)
	s.metrics.latency(operation.opCode, ts.Sub(operation.time))
	return s.processOutgoingOperation(l.With(zap.Object("op", operation)), operation, body)
}

func (s *sniffer) handleConnectReply(l *zap.Logger, body []byte, took time.Duration) error {
	resp, err := proto.DecodeConnectResponse(body)
	if err != nil {
		return err
	}
	s.metrics.latency(proto.OpCreateSession, took)
	// An expired session is refused with a zero timeout.
	if resp.TimeOut <= 0 {
		s.metrics.session("expired")
		l.Warn("<-- session expired", zap.Int64("sessionID", resp.SessionID))
		return nil
	}
	s.metrics.session("established")
	l.Info("<-- connect",
		zap.Int64("sessionID", resp.SessionID),
		zap.Int32("timeout", resp.TimeOut),
		zap.Bool("readOnly", resp.ReadOnly),
	)
	return nil
}

// processOutgoingOperation decodes a reply body for the tracked operation. A
// server result code is a normal outcome and is counted, not returned.
func (s *sniffer) processOutgoingOperation(l *zap.Logger, op *opTime, body []byte) error {
	if op.opCode == proto.OpMulti {
		_, results, err := proto.DecodeTransactionReply(body, op.ops)
		if proto.IsFramingError(err) || proto.IsProtocolError(err) {
			return err
		}
		s.metrics.transaction(results, err)
		if code, ok := proto.IsServiceError(err); ok {
			s.metrics.serviceError(op.opCode, code)
		}
		l.Debug("<-- multi response", zap.Int("results", len(results)), zap.Error(err))
		return nil
	}

	resp := proto.ResponseForOp(op.opCode)
	if resp == nil {
		l.Debug("<-- reply to an operation without a known body")
		return nil
	}
	if _, err := proto.DecodeReply(body, resp); err != nil {
		if code, ok := proto.IsServiceError(err); ok {
			s.metrics.serviceError(op.opCode, code)
			l.Debug("<-- server error", zap.Error(err))
			return nil
		}
		return err
	}
	if op.opCode == proto.OpClose {
		s.metrics.session("closed")
	}
	l.Debug("<-- server response", zap.Any("response", resp))
	return nil
}
