package fbank

import "math"

// fft is an in-place radix-2 transform; len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		theta := -2 * math.Pi / float64(size)
		wr, wi := math.Cos(theta), math.Sin(theta)
		for start := 0; start < n; start += size {
			cr, ci := 1.0, 0.0
			for k := range half {
				u, v := start+k, start+k+half
				tr := cr*re[v] - ci*im[v]
				ti := cr*im[v] + ci*re[v]
				re[v], im[v] = re[u]-tr, im[u]-ti
				re[u] += tr
				im[u] += ti
				cr, ci = cr*wr-ci*wi, cr*wi+ci*wr
			}
		}
	}
}
