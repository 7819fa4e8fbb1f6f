package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionNames(t *testing.T) {
	assert.Equal(t, []string{"read", "write", "create", "delete", "admin"}, PermAll.Names())
	assert.Equal(t, []string{"read", "delete"}, (PermRead | PermDelete).Names())
	assert.Nil(t, Permission(0).Names())
	assert.Equal(t, "all", PermAll.String())
	assert.Equal(t, "read|admin", (PermRead | PermAdmin).String())
	assert.Equal(t, "none", Permission(0x20).String())
	assert.True(t, PermAll.Has(PermWrite|PermCreate))
	assert.False(t, PermRead.Has(PermWrite))
}

func TestACLPresets(t *testing.T) {
	assert.Equal(t, []ACL{{Perms: PermAll, Scheme: "world", ID: "anyone"}}, OpenUnsafeACL())
	assert.Equal(t, []ACL{{Perms: PermRead, Scheme: "world", ID: "anyone"}}, ReadUnsafeACL())
	assert.Equal(t, []ACL{{Perms: PermAll, Scheme: "auth", ID: ""}}, CreatorAllACL())

	digest := DigestACL(PermRead|PermWrite, "user", "secret")
	require.Len(t, digest, 1)
	assert.Equal(t, "digest", digest[0].Scheme)
	assert.Equal(t, PermRead|PermWrite, digest[0].Perms)
	assert.Contains(t, digest[0].ID, "user:")
}

func TestACLLayout(t *testing.T) {
	e := NewEncoder(0)
	require.NoError(t, ACL{Perms: PermAll, Scheme: "ip", ID: "1"}.Encode(e))
	assert.Equal(t, []byte{
		0, 0, 0, 0x1f,
		0, 0, 0, 2, 'i', 'p',
		0, 0, 0, 1, '1',
	}, e.Bytes())

	var got ACL
	require.NoError(t, DecodeAll(e.Bytes(), &got))
	assert.Equal(t, ACL{Perms: PermAll, Scheme: "ip", ID: "1"}, got)
}

func TestACLDecodeKeepsUnknownBits(t *testing.T) {
	var got ACL
	require.NoError(t, DecodeAll([]byte{0x80, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}, &got))
	assert.Equal(t, Permission(0x80000001), got.Perms)
	assert.Equal(t, []string{"read"}, got.Perms.Names())
}

func TestStatRoundTrip(t *testing.T) {
	in := Stat{
		Czxid:          1,
		Mzxid:          2,
		Ctime:          1500000000000,
		Mtime:          1500000000001,
		Version:        3,
		Cversion:       -4,
		Aversion:       5,
		EphemeralOwner: 0x1234567890,
		DataLength:     6,
		NumChildren:    7,
		Pzxid:          8,
	}
	e := NewEncoder(0)
	require.NoError(t, in.Encode(e))
	assert.Equal(t, statSize, e.Len())

	var out Stat
	require.NoError(t, DecodeAll(e.Bytes(), &out))
	assert.Equal(t, in, out)
}

func TestStatFieldOrder(t *testing.T) {
	e := NewEncoder(0)
	require.NoError(t, Stat{Czxid: 1, Version: 2, Pzxid: 3}.Encode(e))
	b := e.Bytes()
	assert.Equal(t, byte(1), b[7], "czxid is the first i64")
	assert.Equal(t, byte(2), b[35], "version follows the four i64 fields")
	assert.Equal(t, byte(3), b[statSize-1], "pzxid is last")
}
