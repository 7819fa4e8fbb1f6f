package main

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jeffbean/zkwire/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

var (
	clientIP = net.IP{10, 0, 0, 1}
	serverIP = net.IP{10, 0, 0, 2}
	start    = time.Unix(1500000000, 0)
)

const clientPort = 40000

func newTestSniffer(t *testing.T) (*sniffer, tally.TestScope) {
	t.Helper()
	scope := tally.NewTestScope("", nil)
	return newSniffer(zap.NewNop(), newMetrics(scope), defaultConfig()), scope
}

// segment builds a captured TCP segment between the test client and server.
func segment(t *testing.T, fromClient bool, ts time.Time, payload []byte, fin bool) gopacket.Packet {
	t.Helper()
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: clientIP, DstIP: serverIP}
	tcp := &layers.TCP{SrcPort: clientPort, DstPort: zkDefaultPort, ACK: true, PSH: len(payload) > 0, FIN: fin, Window: 4096}
	if !fromClient {
		ip.SrcIP, ip.DstIP = serverIP, clientIP
		tcp.SrcPort, tcp.DstPort = zkDefaultPort, clientPort
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(payload)))

	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeIPv4, gopacket.DecodeOptions{DecodeStreamsAsDatagrams: true})
	packet.Metadata().Timestamp = ts
	return packet
}

func replyFrame(t *testing.T, h proto.ReplyHeader, body proto.Encodable) []byte {
	t.Helper()
	parts := []proto.Encodable{h}
	if body != nil {
		parts = append(parts, body)
	}
	frame, err := proto.EncodeFrame(parts...)
	require.NoError(t, err)
	return frame
}

func counterTotal(scope tally.TestScope, name string) int64 {
	var total int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			total += c.Value()
		}
	}
	return total
}

func TestSegmentDecodesAsZooKeeper(t *testing.T) {
	newTestSniffer(t)
	packet := segment(t, true, start, []byte{0, 0, 0, 0}, false)
	zl, ok := packet.Layer(LayerTypeZooKeeper).(*ZooKeeperLayer)
	require.True(t, ok, "layers: %v", packet.Layers())
	assert.Equal(t, []byte{0, 0, 0, 0}, zl.Payload())
	assert.Equal(t, zl, packet.ApplicationLayer())
}

func TestRequestReplyLatency(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeRequest(1, proto.OpCreate, proto.CreateRequest{
		Path: "/a", Data: []byte("x"), ACL: proto.OpenUnsafeACL(), Mode: proto.CreateEphemeral,
	})
	require.NoError(t, err)

	s.handlePacket(segment(t, true, start, req, false))
	assert.Len(t, s.pending, 1)

	reply := replyFrame(t, proto.ReplyHeader{Xid: 1, Zxid: 5}, proto.CreateResponse{Path: "/a"})
	s.handlePacket(segment(t, false, start.Add(5*time.Millisecond), reply, false))

	assert.Empty(t, s.pending)
	assert.Equal(t, int64(1), counterValue(scope, "requests", map[string]string{"operation": "create", "watch": "false"}))
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, timerValues(scope, "latency", map[string]string{"operation": "create"}))
	assert.Zero(t, counterTotal(scope, "decode_errors"))
}

func TestWatchRequestAndServiceError(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeRequest(2, proto.OpGetData, proto.GetDataRequest{Path: "/missing", Watch: true})
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))

	reply := replyFrame(t, proto.ReplyHeader{Xid: 2, Zxid: 5, Err: -101}, nil)
	s.handlePacket(segment(t, false, start.Add(time.Millisecond), reply, false))

	assert.Equal(t, int64(1), counterValue(scope, "requests", map[string]string{"operation": "getData", "watch": "true"}))
	assert.Equal(t, int64(1), counterValue(scope, "service_errors", map[string]string{"operation": "getData", "code": "-101", "system": "false"}))
	assert.Zero(t, counterTotal(scope, "decode_errors"))
}

func TestTransactionOutcome(t *testing.T) {
	s, scope := newTestSniffer(t)
	ops := []proto.Op{
		proto.CreateOp{Path: "/a", ACL: proto.OpenUnsafeACL()},
		proto.DeleteOp{Path: "/b", Version: proto.AnyVersion},
	}
	req, err := proto.EncodeTransaction(3, ops)
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))

	reply := replyFrame(t, proto.ReplyHeader{Xid: 3, Zxid: 9}, proto.MultiResponse{Results: []proto.OpResult{
		proto.ErrorResult{Code: 0},
		proto.ErrorResult{Code: -101},
	}})
	s.handlePacket(segment(t, false, start.Add(time.Millisecond), reply, false))

	assert.Equal(t, int64(1), counterValue(scope, "transactions", map[string]string{"outcome": "aborted"}))
	assert.Equal(t, int64(1), counterValue(scope, "transaction_ops", map[string]string{"result": "rolledBack"}))
	assert.Equal(t, int64(1), counterValue(scope, "service_errors", map[string]string{"operation": "multi", "code": "-101", "system": "false"}))
	assert.Zero(t, counterTotal(scope, "decode_errors"))
}

func TestConnectHandshake(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeConnect(proto.ConnectRequestFrom(proto.InitialConnectResponse(30000), 0))
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))
	assert.Len(t, s.connecting, 1)

	resp, err := proto.EncodeFrame(proto.ConnectResponse{TimeOut: 30000, SessionID: 7, Passwd: make([]byte, 16)})
	require.NoError(t, err)
	s.handlePacket(segment(t, false, start.Add(2*time.Millisecond), resp, false))

	assert.Empty(t, s.connecting)
	assert.Equal(t, int64(1), counterValue(scope, "sessions", map[string]string{"event": "established"}))
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, timerValues(scope, "latency", map[string]string{"operation": "createSession"}))
}

func TestConnectExpired(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeConnect(&proto.ConnectRequest{TimeOut: 30000, SessionID: 7, Passwd: make([]byte, 16)})
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))

	resp, err := proto.EncodeFrame(proto.ConnectResponse{Passwd: make([]byte, 16)})
	require.NoError(t, err)
	s.handlePacket(segment(t, false, start, resp, false))

	assert.Equal(t, int64(1), counterValue(scope, "sessions", map[string]string{"event": "expired"}))
}

func TestWatchEventNotification(t *testing.T) {
	s, scope := newTestSniffer(t)
	frame := replyFrame(t, proto.ReplyHeader{Xid: proto.WatcherEventXid, Zxid: -1}, proto.WatcherEvent{
		Type: proto.EventNodeDataChanged, State: proto.StateSyncConnected, Path: "/a",
	})
	s.handlePacket(segment(t, false, start, frame, false))
	assert.Equal(t, int64(1), counterValue(scope, "watch_events", map[string]string{"type": "nodeDataChanged"}))
}

func TestFrameSplitAcrossSegments(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeRequest(4, proto.OpExists, proto.ExistsRequest{Path: "/split"})
	require.NoError(t, err)

	s.handlePacket(segment(t, true, start, req[:2], false))
	s.handlePacket(segment(t, true, start, req[2:7], false))
	assert.Zero(t, counterTotal(scope, "requests"))
	assert.Len(t, s.streams, 1)

	s.handlePacket(segment(t, true, start, req[7:], false))
	assert.Empty(t, s.streams)
	assert.Equal(t, int64(1), counterValue(scope, "requests", map[string]string{"operation": "exists", "watch": "false"}))
}

func TestSeveralFramesInOneSegment(t *testing.T) {
	s, scope := newTestSniffer(t)
	ping, err := proto.EncodePing()
	require.NoError(t, err)
	getData, err := proto.EncodeRequest(5, proto.OpGetData, proto.GetDataRequest{Path: "/a"})
	require.NoError(t, err)

	s.handlePacket(segment(t, true, start, append(ping, getData...), false))
	assert.Equal(t, int64(1), counterValue(scope, "requests", map[string]string{"operation": "ping", "watch": "false"}))
	assert.Equal(t, int64(1), counterValue(scope, "requests", map[string]string{"operation": "getData", "watch": "false"}))
	assert.Len(t, s.pending, 2)
}

func TestDecodeErrorsAreCounted(t *testing.T) {
	tests := []struct {
		name       string
		fromClient bool
		payload    []byte
		direction  string
		kind       string
	}{
		{"unknown opcode", true, mustFrame(proto.EncodeRequest(6, proto.OpReconfig, nil)), "request", "protocol"},
		{"frame too large", true, []byte{0x7f, 0, 0, 0, 1, 2, 3}, "request", "framing"},
		{"negative length", false, []byte{0xff, 0xff, 0xff, 0xff}, "reply", "framing"},
		{"bad watch event", false, replyFrame(t, proto.ReplyHeader{Xid: proto.WatcherEventXid}, proto.EmptyResponse{}), "reply", "framing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, scope := newTestSniffer(t)
			s.handlePacket(segment(t, tt.fromClient, start, tt.payload, false))
			assert.Equal(t, int64(1), counterValue(scope, "decode_errors", map[string]string{"direction": tt.direction, "kind": tt.kind}))
			assert.Empty(t, s.streams)
		})
	}
}

func TestTruncatedReplyBody(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeRequest(7, proto.OpGetData, proto.GetDataRequest{Path: "/a"})
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))

	// A well framed reply whose body ends inside the stat.
	body := replyFrame(t, proto.ReplyHeader{Xid: 7}, proto.GetDataResponse{Data: []byte("v")})[4:]
	body = body[:len(body)-10]
	frame, err := proto.EncodeFrame(rawBody(body))
	require.NoError(t, err)
	s.handlePacket(segment(t, false, start, frame, false))

	assert.Equal(t, int64(1), counterValue(scope, "decode_errors", map[string]string{"direction": "reply", "kind": "framing"}))
}

func TestReplyWithoutRequest(t *testing.T) {
	s, scope := newTestSniffer(t)
	s.handlePacket(segment(t, false, start, replyFrame(t, proto.ReplyHeader{Xid: 99}, nil), false))
	assert.Zero(t, counterTotal(scope, "decode_errors"))
	assert.Empty(t, scope.Snapshot().Timers())
}

func TestUnansweredRequestsAreSwept(t *testing.T) {
	s, scope := newTestSniffer(t)
	req, err := proto.EncodeRequest(8, proto.OpSync, proto.SyncRequest{Path: "/"})
	require.NoError(t, err)
	s.handlePacket(segment(t, true, start, req, false))
	require.Len(t, s.pending, 1)

	s.handlePacket(segment(t, true, start.Add(3*time.Minute), nil, false))
	assert.Empty(t, s.pending)
	assert.Equal(t, int64(1), counterTotal(scope, "unanswered_requests"))
}

func TestFinDropsPartialFrames(t *testing.T) {
	s, _ := newTestSniffer(t)
	s.handlePacket(segment(t, true, start, []byte{0, 0, 0, 20, 1}, false))
	require.Len(t, s.streams, 1)
	s.handlePacket(segment(t, true, start, nil, true))
	assert.Empty(t, s.streams)
}

func TestProcessIncomingOperation(t *testing.T) {
	frame, err := proto.EncodeRequest(10, proto.OpGetChildren2, proto.GetChildren2Request{Path: "/foo", Watch: true})
	require.NoError(t, err)
	header, ot, err := processIncomingOperation(zap.NewNop(), frame[4:])
	require.NoError(t, err)
	assert.Equal(t, proto.RequestHeader{Xid: 10, Opcode: proto.OpGetChildren2}, header)
	assert.Equal(t, &opTime{opCode: proto.OpGetChildren2, watch: true}, ot)
}

func TestProcessIncomingOperationNoPayload(t *testing.T) {
	_, _, err := processIncomingOperation(zap.NewNop(), []byte{})
	assert.Error(t, err)
	assert.True(t, proto.IsFramingError(err))
}

func TestLooksLikeConnect(t *testing.T) {
	req, err := proto.EncodeConnect(&proto.ConnectRequest{Passwd: make([]byte, 16), ReadOnly: true})
	require.NoError(t, err)
	assert.True(t, looksLikeConnect(req[4:]))

	ping, err := proto.EncodePing()
	require.NoError(t, err)
	assert.False(t, looksLikeConnect(ping[4:]))
}

// rawBody encodes its bytes unchanged.
type rawBody []byte

func (b rawBody) Encode(e *proto.Encoder) error {
	for _, c := range b {
		e.WriteUint8(c)
	}
	return nil
}

func mustFrame(frame []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return frame
}
