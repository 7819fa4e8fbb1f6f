package main

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeZooKeeper is the application layer of TCP segments to and from the
// ZooKeeper port. It should be unique and high so it doesn't conflict.
var LayerTypeZooKeeper = gopacket.RegisterLayerType(1200, gopacket.LayerTypeMetadata{
	Name:    "ZooKeeper",
	Decoder: gopacket.DecodeFunc(decodeZooKeeperLayer),
})

// ZooKeeperLayer holds the bytes of one TCP segment of a ZooKeeper stream. A
// segment may hold several frames, or only part of one, so frames are split
// by the stream reader rather than here.
type ZooKeeperLayer struct {
	layers.BaseLayer
}

func (z *ZooKeeperLayer) LayerType() gopacket.LayerType { return LayerTypeZooKeeper }
func (z *ZooKeeperLayer) Payload() []byte                { return z.Contents }

func decodeZooKeeperLayer(data []byte, p gopacket.PacketBuilder) error {
	z := &ZooKeeperLayer{BaseLayer: layers.BaseLayer{Contents: data}}
	p.AddLayer(z)
	p.SetApplicationLayer(z)
	return nil
}

// registerZooKeeperPort makes TCP segments on port decode as ZooKeeperLayer.
// Packets must be decoded with DecodeStreamsAsDatagrams set.
func registerZooKeeperPort(port int) {
	layers.RegisterTCPPortLayerType(layers.TCPPort(port), LayerTypeZooKeeper)
}
