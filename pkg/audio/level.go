package audio

import "math"

// RMS returns the root-mean-square energy of samples, sqrt(mean(s²)).
// Returns 0 for an empty buffer. For float PCM in [-1, 1] the result is also
// in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude in samples. Returns 0 for an
// empty buffer.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// Normalize scales samples in place by 1/peak so that the maximum absolute
// amplitude becomes 1.0. Silent buffers (peak 0) are left untouched. It
// returns the peak found before scaling.
func Normalize(samples []float32) float64 {
	peak := Peak(samples)
	if peak <= 0 {
		return 0
	}
	for i, s := range samples {
		samples[i] = float32(float64(s) / peak)
	}
	return peak
}

// Concat joins the samples of chunks into one freshly allocated buffer.
func Concat(chunks []Chunk) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return out
}
