package audio

import (
	"encoding/binary"
	"math"
)

// applyGain scales s16le samples so the RMS level lands on targetDBFS.
// Silence is returned unchanged; samples are clipped to the int16 range.
func applyGain(pcm []byte, targetDBFS float64) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return pcm
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return pcm
	}
	current := 20 * math.Log10(rms/math.MaxInt16)
	factor := math.Pow(10, (targetDBFS-current)/20)

	out := make([]byte, len(pcm))
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) * factor
		s = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(s)))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}
