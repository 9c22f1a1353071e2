package gate

import (
	"math"
	"sync/atomic"

	"github.com/MrWong99/sonoscribe/pkg/audio"
)

// LevelMeter holds the RMS of the most recently captured chunk. Observe is
// called from the capture callback and never blocks; Level is read by the
// worker at its reporting cadence. The zero value is ready to use.
type LevelMeter struct {
	bits atomic.Uint64
}

// Observe records the RMS of chunk. Empty chunks leave the level unchanged.
func (m *LevelMeter) Observe(chunk audio.Chunk) {
	if len(chunk.Samples) == 0 {
		return
	}
	m.Set(audio.RMS(chunk.Samples))
}

// Set stores rms directly.
func (m *LevelMeter) Set(rms float64) {
	m.bits.Store(math.Float64bits(rms))
}

// Level returns the last observed RMS, or 0 if nothing was observed.
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}
