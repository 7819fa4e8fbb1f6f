package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// pendingTTL is how long a request waits for its reply before it is dropped
// and counted as unanswered.
const pendingTTL = 2 * time.Minute

const (
	directionRequest = "request"
	directionReply   = "reply"
)

// client is the client end of one ZooKeeper connection.
type client struct {
	host net.IP
	port layers.TCPPort
}

func (c client) String() string {
	return net.JoinHostPort(c.host.String(), strconv.Itoa(int(c.port)))
}

func (c client) xidKey(xid int32) string {
	return fmt.Sprintf("%v:%d", c, xid)
}

// opTime is a request waiting for its reply.
type opTime struct {
	time   time.Time
	opCode proto.OpType
	watch  bool
	// ops are the operations of a transaction, needed to decode its reply.
	ops []proto.Op
}

func (o *opTime) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddString("opName", o.opCode.String())
	kv.AddBool("watch", o.watch)
	kv.AddTime("time", o.time)
	if o.opCode == proto.OpMulti {
		kv.AddInt("ops", len(o.ops))
	}
	return nil
}

// sniffer follows the ZooKeeper connections seen in captured packets. It is
// not safe for concurrent use; packets are handled one at a time in capture
// order.
type sniffer struct {
	logger   *zap.Logger
	metrics  *metrics
	port     layers.TCPPort
	maxFrame int

	// pending requests keyed by client and xid.
	pending map[string]*opTime
	// connecting holds clients whose connect request has not been answered.
	connecting map[string]time.Time
	// streams holds the unread tail of each direction of each connection.
	streams   map[string][]byte
	lastSweep time.Time
}

func newSniffer(logger *zap.Logger, m *metrics, cfg config) *sniffer {
	registerZooKeeperPort(cfg.Port)
	return &sniffer{
		logger:     logger,
		metrics:    m,
		port:       layers.TCPPort(cfg.Port),
		maxFrame:   cfg.MaxFrameSize,
		pending:    make(map[string]*opTime),
		connecting: make(map[string]time.Time),
		streams:    make(map[string][]byte),
	}
}

func castLayers(packet gopacket.Packet) (*layers.TCP, net.IP, net.IP, error) {
	// Need TCP to use the source and destination ports to see the direction of the packets
	tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return nil, nil, nil, errors.New("tcp layer not found")
	}
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		return tcp, ip.SrcIP, ip.DstIP, nil
	case *layers.IPv6:
		return tcp, ip.SrcIP, ip.DstIP, nil
	}
	return nil, nil, nil, errors.New("ip layer not found")
}

func (s *sniffer) handlePacket(packet gopacket.Packet) {
	// In this hot path we want to return as soon as we know anything is not going through
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		s.logger.Debug("error layer found in packet", zap.Error(errLayer.Error()))
		return
	}
	tcp, src, dst, err := castLayers(packet)
	if err != nil {
		return
	}
	ts := packet.Metadata().Timestamp
	s.sweep(ts)

	var (
		c         client
		direction string
	)
	switch {
	case tcp.DstPort == s.port:
		c, direction = client{host: src, port: tcp.SrcPort}, directionRequest
	case tcp.SrcPort == s.port:
		c, direction = client{host: dst, port: tcp.DstPort}, directionReply
	default:
		return
	}

	if zl, ok := packet.Layer(LayerTypeZooKeeper).(*ZooKeeperLayer); ok && len(zl.Payload()) > 0 {
		s.readFrames(c, direction, zl.Payload(), ts)
	}
	if tcp.FIN || tcp.RST {
		s.closeConnection(c)
	}
}

// readFrames appends payload to the unread tail of the stream and handles
// every complete frame. An incomplete frame is kept for the next segment. A
// framing error drops the tail, since the stream cannot be resynchronized.
func (s *sniffer) readFrames(c client, direction string, payload []byte, ts time.Time) {
	key := direction + "/" + c.String()
	buf := payload
	if tail, ok := s.streams[key]; ok {
		buf = append(tail, payload...)
		delete(s.streams, key)
	}

	for len(buf) > 0 {
		body, rest, err := proto.SplitFrame(buf, s.maxFrame)
		if errors.Is(err, proto.ErrShortBuffer) {
			s.streams[key] = append([]byte(nil), buf...)
			return
		}
		if err != nil {
			s.metrics.decodeError(direction, err)
			s.logger.Warn("dropping unreadable stream", zap.Stringer("client", c), zap.String("direction", direction), zap.Error(err))
			return
		}
		buf = rest
		if direction == directionRequest {
			err = s.handleRequest(c, body, ts)
		} else {
			err = s.handleReply(c, body, ts)
		}
		if err != nil {
			s.metrics.decodeError(direction, err)
			s.logger.Debug("failed to decode frame",
				zap.Stringer("client", c),
				zap.String("direction", direction),
				zap.Error(err),
				zap.Binary("payload", body),
			)
		}
	}
}

func (s *sniffer) closeConnection(c client) {
	delete(s.streams, directionRequest+"/"+c.String())
	delete(s.streams, directionReply+"/"+c.String())
	delete(s.connecting, c.String())
}

// sweep drops requests that have waited longer than pendingTTL.
func (s *sniffer) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < pendingTTL {
		return
	}
	s.lastSweep = now
	dropped := 0
	for key, op := range s.pending {
		if now.Sub(op.time) > pendingTTL {
			delete(s.pending, key)
			dropped++
		}
	}
	for key, start := range s.connecting {
		if now.Sub(start) > pendingTTL {
			delete(s.connecting, key)
			dropped++
		}
	}
	if dropped > 0 {
		s.metrics.unanswered(dropped)
		s.logger.Debug("dropped unanswered requests", zap.Int("count", dropped))
	}
}
