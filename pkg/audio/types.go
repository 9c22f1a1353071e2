package audio

import "time"

// Chunk is a single block of mono audio as delivered by a capture [Stream].
// Chunks are the atomic unit of audio transport: produced by the capture
// callback, buffered by the gate, and concatenated into utterances.
//
// A Chunk is immutable once handed to a [Callback]; consumers that need to
// modify samples must copy them first.
type Chunk struct {
	// Samples holds mono float32 PCM in the range [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for STT).
	SampleRate int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int { return len(c.Samples) }

// Duration returns the playback duration of the chunk. Returns 0 when the
// sample rate is unknown.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}
