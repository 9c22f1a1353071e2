package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts interleaved float32 frames from a source format
// into mono [Chunk] values at the target rate. It logs a warning on the first
// format mismatch. Create one per stream; not designed for shared use across
// goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert downmixes and resamples interleaved samples in src format into a
// mono chunk at the target sample rate. If the source format already matches
// the target, the samples are wrapped unchanged (zero allocation).
// Conversion order: channel convert first, then resample.
func (c *FormatConverter) Convert(samples []float32, src Format) Chunk {
	if src.SampleRate == c.Target.SampleRate && src.Channels <= 1 {
		return Chunk{Samples: samples, SampleRate: c.Target.SampleRate}
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(src.SampleRate, src.Channels),
			"to", formatString(c.Target.SampleRate, 1),
		)
	})

	mono := DownmixToMono(samples, src.Channels)
	mono = Resample(mono, src.SampleRate, c.Target.SampleRate)
	return Chunk{Samples: mono, SampleRate: c.Target.SampleRate}
}

// DownmixToMono averages every interleaved frame of channels samples into a
// single mono sample. If channels is 1 (or less) the input is returned
// unchanged. Trailing samples that do not form a complete frame are dropped.
func DownmixToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is invalid), the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Float32ToPCM16 converts float32 samples to 16-bit signed little-endian PCM.
// Samples outside [-1.0, 1.0] are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}

// FloatToInt16 scales a single float32 sample to the int16 range, clamping
// values outside [-1.0, 1.0].
func FloatToInt16(s float32) int16 {
	v := s * 32768.0
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
