package proto

import "go.uber.org/zap/zapcore"

// Stat is the metadata the server keeps for each node.
type Stat struct {
	// Czxid is the zxid change that caused this znode to be created.
	Czxid int64
	// Mzxid is The zxid change that last modified this znode.
	Mzxid int64
	// Ctime is milliseconds from epoch when this znode was created.
	Ctime int64
	// Mtime is The time in milliseconds from epoch when this znode was last modified.
	Mtime          int64
	Version        int32 // The number of changes to the data of this znode.
	Cversion       int32 // The number of changes to the children of this znode.
	Aversion       int32 // The number of changes to the ACL of this znode.
	EphemeralOwner int64 // The session id of the owner of this znode if the znode is an ephemeral node. If it is not an ephemeral node, it will be zero.
	DataLength     int32 // The length of the data field of this znode.
	NumChildren    int32 // The number of children of this znode.
	Pzxid          int64 // last modified children
}

func (s Stat) Encode(e *Encoder) error {
	e.WriteInt64(s.Czxid)
	e.WriteInt64(s.Mzxid)
	e.WriteInt64(s.Ctime)
	e.WriteInt64(s.Mtime)
	e.WriteInt32(s.Version)
	e.WriteInt32(s.Cversion)
	e.WriteInt32(s.Aversion)
	e.WriteInt64(s.EphemeralOwner)
	e.WriteInt32(s.DataLength)
	e.WriteInt32(s.NumChildren)
	e.WriteInt64(s.Pzxid)
	return nil
}

// statSize is the fixed encoded size of a Stat.
const statSize = 8*6 + 4*5

func (s *Stat) Decode(d *Decoder) error {
	// Check the whole record up front so a short buffer never yields a
	// half-filled Stat.
	if _, err := d.next(statSize); err != nil {
		return err
	}
	d.off -= statSize
	s.Czxid, _ = d.ReadInt64()
	s.Mzxid, _ = d.ReadInt64()
	s.Ctime, _ = d.ReadInt64()
	s.Mtime, _ = d.ReadInt64()
	s.Version, _ = d.ReadInt32()
	s.Cversion, _ = d.ReadInt32()
	s.Aversion, _ = d.ReadInt32()
	s.EphemeralOwner, _ = d.ReadInt64()
	s.DataLength, _ = d.ReadInt32()
	s.NumChildren, _ = d.ReadInt32()
	s.Pzxid, _ = d.ReadInt64()
	return nil
}

// MarshalLogObject renders the node metadata for logging
func (s *Stat) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddInt64("czxid", s.Czxid)
	kv.AddInt64("mzxid", s.Mzxid)
	kv.AddInt32("version", s.Version)
	kv.AddInt32("cversion", s.Cversion)
	kv.AddInt32("aversion", s.Aversion)
	kv.AddInt64("ephemeralOwner", s.EphemeralOwner)
	kv.AddInt32("dataLength", s.DataLength)
	kv.AddInt32("numChildren", s.NumChildren)
	kv.AddInt64("pzxid", s.Pzxid)
	return nil
}
