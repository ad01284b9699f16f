package pcm

import "fmt"

// Resample converts samples from one sample rate to another.
// Uses linear interpolation for reasonable quality resampling.
func Resample(input []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}

	if fromRate == toRate {
		result := make([]float32, len(input))
		copy(result, input)
		return result, nil
	}

	n := len(input)
	if n == 0 {
		return []float32{}, nil
	}

	outLen := int(float64(n) * float64(toRate) / float64(fromRate))
	if outLen == 0 {
		return []float32{}, nil
	}

	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx >= n-1 {
			out[i] = input[n-1]
			continue
		}
		s0, s1 := input[srcIdx], input[srcIdx+1]
		out[i] = s0 + frac*(s1-s0)
	}
	return out, nil
}

// Mono averages all channels of b into a single sequence.
func (b *Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		out := make([]float32, len(b.Channels[0]))
		copy(out, b.Channels[0])
		return out
	}
	frames := b.Frames()
	out := make([]float32, frames)
	inv := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i := 0; i < frames; i++ {
			out[i] += ch[i] * inv
		}
	}
	return out
}
