// Package fbank computes log mel filterbank features, the front end of
// ECAPA-style classifiers whose exported graph starts after feature
// extraction.
//
// Frames are centered: the signal is reflect-padded by half a window on
// both sides, so a clip of n samples yields 1 + n/hop frames. Energies are
// converted to decibels and clamped to TopDB below the loudest bin.
package fbank

import (
	"fmt"
	"math"
)

// Config controls feature extraction.
type Config struct {
	SampleRate int
	NumMels    int
	WindowSize int // samples
	HopSize    int // samples
	FFTSize    int // power of two, at least WindowSize
	LowFreq    float64
	HighFreq   float64
	TopDB      float64 // 0 disables clamping
}

// DefaultConfig returns 25 ms windows every 10 ms over the full band.
func DefaultConfig(sampleRate, numMels int) Config {
	win := sampleRate * 25 / 1000
	size := 1
	for size < win {
		size <<= 1
	}
	return Config{
		SampleRate: sampleRate,
		NumMels:    numMels,
		WindowSize: win,
		HopSize:    sampleRate / 100,
		FFTSize:    size,
		LowFreq:    0,
		HighFreq:   float64(sampleRate) / 2,
		TopDB:      80,
	}
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("fbank: sample rate %d", c.SampleRate)
	case c.NumMels <= 0:
		return fmt.Errorf("fbank: %d mel bins", c.NumMels)
	case c.WindowSize <= 1 || c.HopSize <= 0:
		return fmt.Errorf("fbank: window %d hop %d", c.WindowSize, c.HopSize)
	case c.FFTSize < c.WindowSize || c.FFTSize&(c.FFTSize-1) != 0:
		return fmt.Errorf("fbank: fft size %d must be a power of two >= window %d", c.FFTSize, c.WindowSize)
	case c.HighFreq <= c.LowFreq || c.HighFreq > float64(c.SampleRate)/2:
		return fmt.Errorf("fbank: band %.0f-%.0f Hz", c.LowFreq, c.HighFreq)
	}
	return nil
}

// Features is a [Frames, Mels] matrix stored row-major.
type Features struct {
	Frames int
	Mels   int
	Data   []float32
}

// Row returns frame t.
func (f *Features) Row(t int) []float32 {
	return f.Data[t*f.Mels : (t+1)*f.Mels]
}

// Shape returns the [1, Frames, Mels] tensor shape.
func (f *Features) Shape() []int64 {
	return []int64{1, int64(f.Frames), int64(f.Mels)}
}

// Extractor computes features for one Config. It is safe for concurrent
// use.
type Extractor struct {
	cfg    Config
	window []float64
	bank   []filter
}

// New returns an Extractor for cfg.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:    cfg,
		window: hamming(cfg.WindowSize),
		bank:   melBank(cfg),
	}, nil
}

// Config returns the extractor's configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Compute returns the log mel energies of samples, which must be at the
// configured sample rate. Empty input yields zero frames.
func (e *Extractor) Compute(samples []float32) *Features {
	cfg := e.cfg
	out := &Features{Mels: cfg.NumMels}
	if len(samples) == 0 {
		return out
	}
	padded := reflectPad(samples, cfg.FFTSize/2)
	frames := 1 + len(samples)/cfg.HopSize
	out.Frames = frames
	out.Data = make([]float32, frames*cfg.NumMels)

	re := make([]float64, cfg.FFTSize)
	im := make([]float64, cfg.FFTSize)
	power := make([]float64, cfg.FFTSize/2+1)
	// Windows are centered within the FFT frame.
	offset := (cfg.FFTSize - cfg.WindowSize) / 2
	peak := math.Inf(-1)
	for t := range frames {
		start := t * cfg.HopSize
		clear(re)
		clear(im)
		for i, w := range e.window {
			if j := start + offset + i; j < len(padded) {
				re[offset+i] = float64(padded[j]) * w
			}
		}
		fft(re, im)
		for k := range power {
			power[k] = re[k]*re[k] + im[k]*im[k]
		}
		row := out.Data[t*cfg.NumMels : (t+1)*cfg.NumMels]
		for m, f := range e.bank {
			sum := 0.0
			for k, w := range f.weights {
				sum += w * power[f.start+k]
			}
			db := 10 * math.Log10(math.Max(sum, 1e-10))
			peak = math.Max(peak, db)
			row[m] = float32(db)
		}
	}
	if cfg.TopDB > 0 {
		floor := float32(peak - cfg.TopDB)
		for i, v := range out.Data {
			if v < floor {
				out.Data[i] = floor
			}
		}
	}
	return out
}

// Normalize subtracts each mel bin's mean over the frames and, when std
// is set, divides by its standard deviation.
func Normalize(f *Features, std bool) {
	if f.Frames == 0 {
		return
	}
	n := float64(f.Frames)
	for m := range f.Mels {
		var sum float64
		for t := range f.Frames {
			sum += float64(f.Data[t*f.Mels+m])
		}
		mean := sum / n
		scale := 1.0
		if std {
			var v float64
			for t := range f.Frames {
				d := float64(f.Data[t*f.Mels+m]) - mean
				v += d * d
			}
			scale = 1 / math.Max(math.Sqrt(v/n), 1e-10)
		}
		for t := range f.Frames {
			i := t*f.Mels + m
			f.Data[i] = float32((float64(f.Data[i]) - mean) * scale)
		}
	}
}

// reflectPad mirrors pad samples onto each end without repeating the edge
// sample. Clips shorter than pad are mirrored as far as they reach and
// zero-filled beyond.
func reflectPad(s []float32, pad int) []float32 {
	out := make([]float32, len(s)+2*pad)
	copy(out[pad:], s)
	for i := 1; i <= pad && i < len(s); i++ {
		out[pad-i] = s[i]
		out[pad+len(s)-1+i] = s[len(s)-1-i]
	}
	return out
}
