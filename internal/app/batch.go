package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/sonoscribe/internal/config"
	"github.com/MrWong99/sonoscribe/internal/gate"
	"github.com/MrWong99/sonoscribe/internal/transcript"
	"github.com/MrWong99/sonoscribe/pkg/audio"
	"github.com/MrWong99/sonoscribe/pkg/audio/wavfile"
	"github.com/MrWong99/sonoscribe/pkg/provider/stt"
)

// Utterance is one result of [TranscribeFile].
type Utterance struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
	RMS      float64
	Result   transcript.Result
	Elapsed  time.Duration
}

// TranscribeFile runs the WAV file at path through the same gate, engine
// and corrector a live dictation uses, block by block, and calls emit for
// every utterance the engine recognised text in. Audio left in the gate at
// the end of the file is dropped, as it would be on stop. The recording is
// converted to mono at the capture sample rate first.
func TranscribeFile(ctx context.Context, cfg *config.Config, factory stt.Factory, corrector *transcript.Holder, prompt, path string, emit func(Utterance)) error {
	samples, format, err := wavfile.Read(path)
	if err != nil {
		return err
	}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: cfg.Capture.SampleRate, Channels: 1}}
	mono := conv.Convert(samples, format).Samples

	g, err := gate.New(cfg.GateConfig())
	if err != nil {
		return err
	}
	engine := stt.NewLazy(factory, cfg.STT.EngineConfig(cfg.STT.Provider))
	defer engine.Close()
	if err := engine.Load(ctx); err != nil {
		return err
	}
	opts := cfg.STT.TranscribeOptions(prompt)

	block := cfg.StreamConfig().BlockSize()
	rate := cfg.Capture.SampleRate
	var (
		index    int
		consumed int
	)
	for off := 0; off < len(mono); off += block {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+block, len(mono))
		g.Push(audio.Chunk{Samples: mono[off:end], SampleRate: rate})

		utt, verdict := g.TryEmit()
		switch verdict.Outcome {
		case gate.Accumulating:
			continue
		case gate.TooQuiet:
			slog.Debug("skipped quiet audio", "rms", verdict.RMS, "at", samplesToDuration(consumed, rate))
			consumed = end
			continue
		}
		startAt := samplesToDuration(consumed, rate)
		consumed = end

		t0 := time.Now()
		segs, err := engine.Transcribe(ctx, utt.Samples, utt.SampleRate, opts)
		if err != nil {
			return fmt.Errorf("transcribe utterance at %s: %w", startAt, err)
		}
		text := stt.JoinSegments(segs)
		if text == "" {
			continue
		}
		index++
		emit(Utterance{
			Index:    index,
			Start:    startAt,
			Duration: utt.Duration(),
			RMS:      verdict.RMS,
			Result:   corrector.Correct(text),
			Elapsed:  time.Since(t0),
		})
	}
	return nil
}

func samplesToDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
