package resampler

import (
	"errors"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidRate is returned for non-positive sample rates.
var ErrInvalidRate = errors.New("resampler: sample rate must be positive")

// flushSeconds of silence are appended before resampling so the filter
// delay line drains the tail of the real signal.
const flushSeconds = 0.1

// Resample converts mono samples from srcRate to dstRate. The output has
// round(len(samples) * dstRate / srcRate) samples at most; it may be a few
// samples shorter when the filter holds back its tail. Samples equal to
// the input rate are returned as a copy.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, ErrInvalidRate
	}
	if len(samples) == 0 {
		return []float32{}, nil
	}
	if srcRate == dstRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	pad := int(float64(srcRate) * flushSeconds)
	in := make([]float64, len(samples)+pad)
	for i, s := range samples {
		in[i] = float64(s)
	}
	res, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}

	want := int((int64(len(samples))*int64(dstRate) + int64(srcRate)/2) / int64(srcRate))
	if len(res) > want {
		res = res[:want]
	}
	out := make([]float32, len(res))
	for i, s := range res {
		out[i] = clamp(float32(s))
	}
	return out, nil
}

// Downmix averages interleaved frames of the given channel count into one
// channel. Trailing partial frames are dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
