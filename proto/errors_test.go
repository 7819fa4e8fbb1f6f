package proto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{errors.Wrap(ErrShortBuffer, "x"), "framing"},
		{ErrInvalidUTF8, "framing"},
		{errors.Wrap(ErrResultMismatch, "x"), "protocol"},
		{ErrUnknownEvent, "protocol"},
		{ErrValueTooLarge, "encoding"},
		{&ServiceError{Code: -101}, "service"},
		{errors.Wrap(&ServiceError{Code: -110}, "create"), "service"},
		{ErrRolledBack, "service"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestServiceError(t *testing.T) {
	err := &ServiceError{Code: -110}
	assert.Equal(t, "zkwire: server error -110: node already exists", err.Error())
	assert.ErrorIs(t, err, zk.ErrNodeExists)

	err = &ServiceError{Code: -2}
	assert.ErrorIs(t, err, zk.ErrUnknown)
	assert.Equal(t, "zkwire: server error -2: runtime inconsistency", err.Error())
}
