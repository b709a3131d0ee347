package fbank

import "math"

// filter is one triangular mel filter over power bins
// [start, start+len(weights)).
type filter struct {
	start   int
	weights []float64
}

func hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melBank builds NumMels triangles evenly spaced on the mel scale. Weights
// are computed from the bin's exact frequency, so narrow low filters still
// cover at least part of a bin.
func melBank(cfg Config) []filter {
	bins := cfg.FFTSize/2 + 1
	lo, hi := hzToMel(cfg.LowFreq), hzToMel(cfg.HighFreq)
	edges := make([]float64, cfg.NumMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(cfg.NumMels+1))
	}
	binHz := float64(cfg.SampleRate) / float64(cfg.FFTSize)

	bank := make([]filter, cfg.NumMels)
	for m := range bank {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		f := filter{start: -1}
		for k := range bins {
			hz := float64(k) * binHz
			var w float64
			switch {
			case hz > left && hz <= center:
				w = (hz - left) / (center - left)
			case hz > center && hz < right:
				w = (right - hz) / (right - center)
			}
			if w <= 0 {
				if f.start >= 0 {
					break
				}
				continue
			}
			if f.start < 0 {
				f.start = k
			}
			f.weights = append(f.weights, w)
		}
		if f.start < 0 {
			// Narrower than one bin: take the nearest bin whole.
			k := min(int(math.Round(center/binHz)), bins-1)
			f = filter{start: k, weights: []float64{1}}
		}
		bank[m] = f
	}
	return bank
}
