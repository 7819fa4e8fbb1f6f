package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

func counterValue(scope tally.TestScope, name string, tags map[string]string) int64 {
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name && equalTags(c.Tags(), tags) {
			return c.Value()
		}
	}
	return 0
}

func timerValues(scope tally.TestScope, name string, tags map[string]string) []time.Duration {
	for _, tm := range scope.Snapshot().Timers() {
		if tm.Name() == name && equalTags(tm.Tags(), tags) {
			return tm.Values()
		}
	}
	return nil
}

func equalTags(got, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestZKPacketMetricsNewRootScope_OK(t *testing.T) {
	scopeFactory := func() (tally.Scope, http.Handler, io.Closer, error) {
		return tally.NoopScope, http.NotFoundHandler(), io.NopCloser(nil), nil
	}
	scope, handler, closer, err := newRootScope(scopeFactory)
	require.NoError(t, err)
	assert.Equal(t, tally.NoopScope, scope)
	assert.NotNil(t, handler)
	assert.NotNil(t, closer)
}

func TestZKPacketMetricsNewRootScope_Error(t *testing.T) {
	scopeFactory := func() (tally.Scope, http.Handler, io.Closer, error) {
		return nil, nil, nil, errors.New("no reporter")
	}
	_, _, _, err := newRootScope(scopeFactory)
	assert.Error(t, err)
}

func TestRootScopeServesPrometheus(t *testing.T) {
	scope, handler, closer, err := RootScope()
	require.NoError(t, err)
	defer closer.Close()

	newMetrics(scope).request(proto.OpCreate, false)
	require.NoError(t, closer.Close())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zkwire_requests")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsTransaction(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	m := newMetrics(scope)

	m.transaction([]proto.OpResult{proto.EmptyResult{}, proto.CreateResult{Path: "/a"}}, nil)
	m.transaction([]proto.OpResult{proto.ErrorResult{Code: 0}, proto.ErrorResult{Code: -101}}, &proto.ServiceError{Code: -101})

	assert.Equal(t, int64(1), counterValue(scope, "transactions", map[string]string{"outcome": "committed"}))
	assert.Equal(t, int64(1), counterValue(scope, "transactions", map[string]string{"outcome": "aborted"}))
	assert.Equal(t, int64(1), counterValue(scope, "transaction_ops", map[string]string{"result": "empty"}))
	assert.Equal(t, int64(1), counterValue(scope, "transaction_ops", map[string]string{"result": "create"}))
	assert.Equal(t, int64(1), counterValue(scope, "transaction_ops", map[string]string{"result": "rolledBack"}))
	assert.Equal(t, int64(1), counterValue(scope, "transaction_ops", map[string]string{"result": "error"}))
}

func TestMetricsErrors(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	m := newMetrics(scope)

	m.decodeError(directionReply, errors.Wrap(proto.ErrShortBuffer, "body"))
	m.serviceError(proto.OpGetData, -101)
	m.serviceError(proto.OpGetData, -4)

	assert.Equal(t, int64(1), counterValue(scope, "decode_errors", map[string]string{"direction": "reply", "kind": "framing"}))
	assert.Equal(t, int64(1), counterValue(scope, "service_errors", map[string]string{"operation": "getData", "code": "-101", "system": "false"}))
	assert.Equal(t, int64(1), counterValue(scope, "service_errors", map[string]string{"operation": "getData", "code": "-4", "system": "true"}))
}
