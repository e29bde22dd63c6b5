package hubotel

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zerologger "github.com/salvationdao/hubotel/ext/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// lines decodes every zerolog json line written so far
func (b *lockedBuffer) lines(t *testing.T) []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func (b *lockedBuffer) find(t *testing.T, message string) (map[string]interface{}, bool) {
	for _, entry := range b.lines(t) {
		if msg, _ := entry["message"].(string); strings.Contains(msg, message) {
			return entry, true
		}
	}
	return nil, false
}

type fixture struct {
	tp     *sdktrace.TracerProvider
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *lockedBuffer
	inst   *Instrumentation
}

func newFixture(t *testing.T, conf Config, traceOpts ...sdktrace.TracerProviderOption) *fixture {
	t.Helper()
	f := &fixture{
		spans:  tracetest.NewSpanRecorder(),
		reader: sdkmetric.NewManualReader(),
		logs:   &lockedBuffer{},
	}
	f.tp = sdktrace.NewTracerProvider(append(traceOpts, sdktrace.WithSpanProcessor(f.spans))...)

	conf.TracerProvider = f.tp
	conf.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	conf.Log = zerologger.New(zerolog.New(f.logs).Level(zerolog.DebugLevel))

	inst, err := New(&conf)
	require.NoError(t, err)
	f.inst = inst
	return f
}

func (f *fixture) ended() []sdktrace.ReadOnlySpan {
	return f.spans.Ended()
}

func (f *fixture) metrics(t *testing.T) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(m metricdata.Metrics) int64 {
	data, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramOf(m metricdata.Metrics) (count uint64, sum float64) {
	data, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		return 0, 0
	}
	for _, dp := range data.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	return count, sum
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func calc(method string) *InvocationContext {
	return &InvocationContext{
		HubName:       "Calc",
		MethodName:    method,
		ConnectionID:  "conn-1",
		RemoteAddress: "localhost:8080",
	}
}

func add(x, y int) func(context.Context) (interface{}, error) {
	return func(context.Context) (interface{}, error) {
		return x + y, nil
	}
}

// tick returns a clock that advances by step on every reading
func tick(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
