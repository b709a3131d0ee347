package extract

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/haivivi/accentid/pkg/audio/resampler"
	"github.com/haivivi/accentid/pkg/audio/wav"
)

// Native decodes WAV files without an external process.
type Native struct {
	// MaxDuration limits how much audio is kept. Zero means no limit.
	MaxDuration time.Duration
}

// Extract decodes path as WAV, downmixes to mono and resamples to
// sampleRate. Errors wrap both ErrExtraction and the wav package error.
func (n *Native) Extract(ctx context.Context, path string, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrExtraction, sampleRate)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	a, err := wav.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	mono := resampler.Downmix(a.Samples, a.Channels)
	if n.MaxDuration > 0 {
		src := &Waveform{Samples: mono, SampleRate: a.SampleRate}
		src.truncate(n.MaxDuration)
		mono = src.Samples
	}
	out, err := resampler.Resample(mono, a.SampleRate, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return &Waveform{Samples: out, SampleRate: sampleRate}, nil
}
