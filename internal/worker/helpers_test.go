package worker_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/internal/observe"
	"github.com/MrWong99/sonoscribe/internal/worker"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// recorder is a concurrency-safe Emitter that keeps every message.
type recorder struct {
	mu   sync.Mutex
	msgs []worker.Message
}

func (r *recorder) Emit(m worker.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) all() []worker.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]worker.Message(nil), r.msgs...)
}

// texts renders every non-level message as "kind:text" for order checks.
func (r *recorder) texts() []string {
	var out []string
	for _, m := range r.all() {
		if m.Kind == worker.KindAudioLevel {
			continue
		}
		out = append(out, string(m.Kind)+":"+m.Text)
	}
	return out
}

// waitFor polls until pred holds for the recorded messages.
func (r *recorder) waitFor(t *testing.T, what string, pred func([]worker.Message) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !pred(r.all()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; got %v", what, r.texts())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitText waits for a message of kind whose text starts with prefix.
func (r *recorder) waitText(t *testing.T, kind worker.Kind, prefix string) {
	t.Helper()
	r.waitFor(t, string(kind)+" "+prefix, func(ms []worker.Message) bool {
		return indexOf(ms, kind, prefix) >= 0
	})
}

func indexOf(ms []worker.Message, kind worker.Kind, prefix string) int {
	for i, m := range ms {
		if m.Kind == kind && strings.HasPrefix(m.Text, prefix) {
			return i
		}
	}
	return -1
}

// testConfig emits an utterance every 8000 samples (0.5 s at 16 kHz).
func testConfig() worker.Config {
	return worker.Config{
		Provider: "mock",
		Engine:   stt.EngineConfig{Model: "tiny"},
		Capture:  audio.StreamConfig{SampleRate: 16000, BlockMs: 250, Device: -1},
		Gate: gate.Config{
			SampleRate:      16000,
			MinSeconds:      0.5,
			EnergyThreshold: gate.DefaultEnergyThreshold,
		},
		PollInterval:  10 * time.Millisecond,
		LevelInterval: 20 * time.Millisecond,
	}
}

func constChunk(n int, v float32) audio.Chunk {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return audio.Chunk{Samples: s, SampleRate: 16000}
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counterSum sums an Int64 sum metric whose attribute key equals value.
func counterSum(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}
