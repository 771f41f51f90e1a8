package vocals

import (
	"math"
)

// maxSampleValue is the int16 full-scale magnitude used for float conversion.
const maxSampleValue = 32768

// Float32ToPCM converts samples in [-1, 1] to signed 16-bit PCM, clipping
// values outside that range.
func Float32ToPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * maxSampleValue)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// PCMToFloat32 converts signed 16-bit PCM to floats in [-1, 1).
func PCMToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / maxSampleValue
	}
	return out
}

// RMS returns the root mean square level of samples, normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / maxSampleValue
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample, normalized to [0, 1].
func Peak(samples []int16) float64 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / maxSampleValue
}

// ApplyGain scales samples by gainDb decibels, saturating at the int16 range.
func ApplyGain(samples []int16, gainDb float64) []int16 {
	gain := math.Pow(10, gainDb/20)

	result := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		result[i] = int16(v)
	}
	return result
}

// Deinterleave splits interleaved samples into one slice per channel.
func Deinterleave(samples []int16, channels int) [][]int16 {
	if channels <= 1 {
		return [][]int16{samples}
	}
	out := make([][]int16, channels)
	perChannel := len(samples) / channels
	for c := range out {
		out[c] = make([]int16, perChannel)
	}
	for i := 0; i < perChannel*channels; i++ {
		out[i%channels][i/channels] = samples[i]
	}
	return out
}
