// Package resampler converts decoded audio to the mono, fixed-rate form
// a speech model expects.
//
// Sample rate conversion uses the pure Go polyphase resampler from
// github.com/tphakala/go-audio-resampling, so no cgo toolchain is needed.
//
// Example usage:
//
//	mono := resampler.Downmix(interleaved, 2)
//	out, err := resampler.Resample(mono, 44100, 16000)
package resampler
