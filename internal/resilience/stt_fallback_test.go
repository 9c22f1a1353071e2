package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonoscribe/pkg/provider/stt/mock"
)

func TestSTTFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Engine{Default: sttmock.Response{Segments: []stt.Segment{{Text: "right lobe"}}}}
	secondary := &sttmock.Engine{}

	fb := NewSTTFallback("whisper-server", primary, FallbackConfig{})
	fb.AddFallback("whisper-native", secondary)
	var served string
	fb.OnServed = func(name string) { served = name }

	segs, err := fb.Transcribe(context.Background(), make([]float32, 16000), 16000, stt.TranscribeOptions{Language: "ko"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stt.JoinSegments(segs) != "right lobe" {
		t.Errorf("segments = %+v", segs)
	}
	if primary.TranscribeCallCount() != 1 || secondary.TranscribeCallCount() != 0 {
		t.Errorf("calls primary=%d secondary=%d", primary.TranscribeCallCount(), secondary.TranscribeCallCount())
	}
	if served != "whisper-server" {
		t.Errorf("served = %q", served)
	}
}

func TestSTTFallback_Failover(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Engine{Default: sttmock.Response{Err: errors.New("connection refused")}}
	secondary := &sttmock.Engine{Default: sttmock.Response{Segments: []stt.Segment{{Text: "cyst"}}}}

	fb := NewSTTFallback("whisper-server", primary, FallbackConfig{})
	fb.AddFallback("whisper-native", secondary)

	segs, err := fb.Transcribe(context.Background(), nil, 16000, stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stt.JoinSegments(segs) != "cyst" {
		t.Errorf("segments = %+v", segs)
	}
	calls := secondary.Calls()
	if len(calls) != 1 || calls[0].SampleRate != 16000 {
		t.Errorf("secondary calls = %+v", calls)
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback("a", &sttmock.Engine{Default: sttmock.Response{Err: errTest}}, FallbackConfig{})
	fb.AddFallback("b", &sttmock.Engine{Default: sttmock.Response{Err: errTest}})

	if _, err := fb.Transcribe(context.Background(), nil, 16000, stt.TranscribeOptions{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_CancelledContext(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Engine{}
	fb := NewSTTFallback("a", primary, FallbackConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fb.Transcribe(ctx, nil, 16000, stt.TranscribeOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.TranscribeCallCount() != 0 {
		t.Error("engine called with cancelled context")
	}
}

func TestSTTFallback_CloseClosesAll(t *testing.T) {
	t.Parallel()

	a := &sttmock.Engine{}
	b := &sttmock.Engine{CloseErr: errors.New("busy")}
	fb := NewSTTFallback("a", a, FallbackConfig{})
	fb.AddFallback("b", b)

	err := fb.Close()
	if err == nil {
		t.Fatal("expected close error from b")
	}
	if a.CloseCallCount != 1 || b.CloseCallCount != 1 {
		t.Errorf("close calls a=%d b=%d", a.CloseCallCount, b.CloseCallCount)
	}
}
