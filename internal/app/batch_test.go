package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/sonoscribe/internal/app"
	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/transcript"
	"github.com/MrWong99/sonoscribe/pkg/audio/wavfile"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonoscribe/pkg/provider/stt/mock"
)

// writeRecording writes 0.1 s of speech-level audio, 0.1 s of silence and
// 0.15 s of speech at 16 kHz.
func writeRecording(t *testing.T) string {
	t.Helper()
	var samples []float32
	add := func(n int, v float32) {
		for range n {
			samples = append(samples, v)
		}
	}
	add(1600, 0.4)
	add(1600, 0)
	add(2400, -0.4)
	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := wavfile.Write(path, samples, 16000); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeFile(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.Capture.BlockMs = 100
	dict, err := dictionary.Load(cfg.Correction.Dictionary)
	if err != nil {
		t.Fatal(err)
	}
	c, err := app.NewCorrector(dict, cfg.Correction)
	if err != nil {
		t.Fatal(err)
	}
	eng := &sttmock.Engine{Responses: []sttmock.Response{
		{Segments: []stt.Segment{{Text: " thyroidnodule "}}},
		{Segments: []stt.Segment{{Text: "second"}}},
	}}

	var got []app.Utterance
	err = app.TranscribeFile(context.Background(), cfg, eng.Factory(), transcript.NewHolder(c), "prompt", writeRecording(t), func(u app.Utterance) {
		got = append(got, u)
	})
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}

	// Blocks: speech (emitted), silence (too quiet), speech (emitted), then
	// half a block left in the gate and dropped.
	if len(got) != 2 {
		t.Fatalf("utterances = %+v", got)
	}
	if got[0].Result.Corrected != "thyroid nodule" || got[0].Start != 0 || got[0].Index != 1 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Result.Corrected != "second" || got[1].Start != 200*time.Millisecond {
		t.Errorf("second = %+v", got[1])
	}
	calls := eng.Calls()
	if len(calls) != 2 || calls[0].Opts.InitialPrompt != "prompt" || calls[0].SampleRate != 16000 {
		t.Errorf("calls = %+v", calls)
	}
}

func TestTranscribeFile_Errors(t *testing.T) {
	t.Parallel()
	cfg, dir := testConfig(t)
	holder := transcript.NewHolder(nil)
	noop := func(app.Utterance) {}

	if err := app.TranscribeFile(context.Background(), cfg, (&sttmock.Engine{}).Factory(), holder, "", filepath.Join(dir, "missing.wav"), noop); err == nil {
		t.Error("missing file should fail")
	}

	loadErr := errors.New("no model")
	eng := &sttmock.Engine{FactoryErr: loadErr}
	if err := app.TranscribeFile(context.Background(), cfg, eng.Factory(), holder, "", writeRecording(t), noop); !errors.Is(err, loadErr) {
		t.Errorf("load failure = %v", err)
	}

	eng = &sttmock.Engine{Default: sttmock.Response{Err: errors.New("decode")}}
	cfg.Capture.BlockMs = 100
	if err := app.TranscribeFile(context.Background(), cfg, eng.Factory(), holder, "", writeRecording(t), noop); err == nil {
		t.Error("transcription failure should be returned")
	}
}
