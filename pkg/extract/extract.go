// Package extract decodes the audio track of a media file into a mono
// waveform at the sample rate a model expects.
//
// FFmpeg handles every container ffmpeg can read. Native decodes WAV
// files in process. Auto picks Native for WAV input and FFmpeg for
// everything else.
package extract

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/haivivi/accentid/pkg/audio/pcm"
)

// ErrExtraction is returned when no usable audio can be produced.
var ErrExtraction = errors.New("extract: audio extraction failed")

// Extractor turns a media file into a mono waveform at sampleRate.
type Extractor interface {
	Extract(ctx context.Context, path string, sampleRate int) (*Waveform, error)
}

// Waveform is mono audio with samples in [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the play time.
func (w *Waveform) Duration() time.Duration {
	return pcm.Duration(len(w.Samples), w.SampleRate)
}

// RMS returns the root mean square amplitude, 0 for an empty waveform.
func (w *Waveform) RMS() float64 {
	if len(w.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(w.Samples)))
}

// truncate cuts the waveform to at most d. Zero means no limit.
func (w *Waveform) truncate(d time.Duration) {
	if d <= 0 {
		return
	}
	max := int(int64(w.SampleRate) * int64(d) / int64(time.Second))
	if len(w.Samples) > max {
		w.Samples = w.Samples[:max]
	}
}
