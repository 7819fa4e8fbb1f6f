package main

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jeffbean/zkwire/proto"
	"github.com/jeffbean/zkwire/zkerrors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samuel/go-zookeeper/zk"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
)

type rootScopeFactory func() (tally.Scope, http.Handler, io.Closer, error)

// RootScope returns the metrics scope of the sniffer and the HTTP handler that
// exposes it.
func RootScope() (tally.Scope, http.Handler, io.Closer, error) {
	return newRootScope(getRootScope)
}

func newRootScope(scopeFactory rootScopeFactory) (tally.Scope, http.Handler, io.Closer, error) {
	scope, handler, closer, err := scopeFactory()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "initialize metrics reporter")
	}
	return scope, handler, closer, nil
}

func getRootScope() (tally.Scope, http.Handler, io.Closer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, nil, err
	}
	reporter := promreporter.NewReporter(promreporter.Options{Registerer: registry})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "zkwire",
		Tags:           map[string]string{},
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, time.Second)
	return scope, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), closer, nil
}

// metrics names every measurement the sniffer takes. Each metric name is
// always reported with the same tag keys.
type metrics struct {
	scope tally.Scope
}

func newMetrics(scope tally.Scope) *metrics {
	return &metrics{scope: scope}
}

func (m *metrics) request(op proto.OpType, watch bool) {
	m.scope.Tagged(map[string]string{
		"operation": op.String(),
		"watch":     strconv.FormatBool(watch),
	}).Counter("requests").Inc(1)
}

func (m *metrics) latency(op proto.OpType, d time.Duration) {
	m.scope.Tagged(map[string]string{"operation": op.String()}).Timer("latency").Record(d)
}

func (m *metrics) decodeError(direction string, err error) {
	m.scope.Tagged(map[string]string{
		"direction": direction,
		"kind":      proto.ErrorKind(err),
	}).Counter("decode_errors").Inc(1)
}

func (m *metrics) serviceError(op proto.OpType, code zk.ErrCode) {
	m.scope.Tagged(map[string]string{
		"operation": op.String(),
		"code":      strconv.Itoa(int(code)),
		"system":    strconv.FormatBool(zkerrors.IsSystemError(code)),
	}).Counter("service_errors").Inc(1)
}

// transaction counts the outcome of a whole transaction and of each of its
// operations.
func (m *metrics) transaction(results []proto.OpResult, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
	}
	m.scope.Tagged(map[string]string{"outcome": outcome}).Counter("transactions").Inc(1)
	for _, res := range results {
		m.scope.Tagged(map[string]string{"result": resultName(res)}).Counter("transaction_ops").Inc(1)
	}
}

func resultName(res proto.OpResult) string {
	switch r := res.(type) {
	case proto.EmptyResult:
		return "empty"
	case proto.CreateResult:
		return "create"
	case proto.SetDataResult:
		return "setData"
	case proto.ErrorResult:
		if r.Err() == proto.ErrRolledBack {
			return "rolledBack"
		}
		return "error"
	}
	return "unknown"
}

func (m *metrics) watchEvent(ev *proto.WatcherEvent) {
	m.scope.Tagged(map[string]string{"type": ev.Type.String()}).Counter("watch_events").Inc(1)
}

func (m *metrics) session(event string) {
	m.scope.Tagged(map[string]string{"event": event}).Counter("sessions").Inc(1)
}

func (m *metrics) unanswered(n int) {
	m.scope.Counter("unanswered_requests").Inc(int64(n))
}
