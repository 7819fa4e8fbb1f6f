package proto

import (
	"strings"

	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap/zapcore"
)

// Permission is the bitmask of an ACL entry.
type Permission uint32

const (
	PermRead   Permission = zk.PermRead
	PermWrite  Permission = zk.PermWrite
	PermCreate Permission = zk.PermCreate
	PermDelete Permission = zk.PermDelete
	PermAdmin  Permission = zk.PermAdmin
	PermAll    Permission = zk.PermAll
)

var permNames = []struct {
	perm Permission
	name string
}{
	{PermRead, "read"},
	{PermWrite, "write"},
	{PermCreate, "create"},
	{PermDelete, "delete"},
	{PermAdmin, "admin"},
}

// Has reports whether every bit of q is set in p.
func (p Permission) Has(q Permission) bool { return p&q == q }

// Names returns the named permissions set in p, lowest bit first. Bits
// outside PermAll are ignored.
func (p Permission) Names() []string {
	var names []string
	for _, pn := range permNames {
		if p.Has(pn.perm) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Permission) String() string {
	if p&PermAll == 0 {
		return "none"
	}
	if p.Has(PermAll) {
		return "all"
	}
	return strings.Join(p.Names(), "|")
}

// ACL is one permission entry of a node.
type ACL struct {
	Perms  Permission
	Scheme string
	ID     string
}

func (a ACL) Encode(e *Encoder) error {
	e.WriteUint32(uint32(a.Perms))
	if err := e.WriteString(a.Scheme); err != nil {
		return err
	}
	return e.WriteString(a.ID)
}

func (a *ACL) Decode(d *Decoder) error {
	perms, err := d.ReadUint32()
	if err != nil {
		return err
	}
	a.Perms = Permission(perms)
	if a.Scheme, err = d.ReadString(); err != nil {
		return err
	}
	a.ID, err = d.ReadString()
	return err
}

// MarshalLogObject renders the ACL entry for logging
func (a ACL) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddString("perms", a.Perms.String())
	kv.AddString("scheme", a.Scheme)
	kv.AddString("id", a.ID)
	return nil
}

// FromZK converts go-zookeeper ACL entries.
func FromZK(acls []zk.ACL) []ACL {
	out := make([]ACL, len(acls))
	for i, a := range acls {
		out[i] = ACL{Perms: Permission(uint32(a.Perms)), Scheme: a.Scheme, ID: a.ID}
	}
	return out
}

// OpenUnsafeACL gives everyone every permission.
func OpenUnsafeACL() []ACL { return FromZK(zk.WorldACL(zk.PermAll)) }

// ReadUnsafeACL gives everyone read permission.
func ReadUnsafeACL() []ACL { return FromZK(zk.WorldACL(zk.PermRead)) }

// CreatorAllACL gives the authenticated creator every permission.
func CreatorAllACL() []ACL { return FromZK(zk.AuthACL(zk.PermAll)) }

// DigestACL gives the digest identity user:password the perms.
func DigestACL(perms Permission, user, password string) []ACL {
	return FromZK(zk.DigestACL(int32(perms), user, password))
}
