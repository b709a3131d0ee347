// Package pcm converts between 16-bit signed little-endian PCM (s16le),
// the raw format ffmpeg writes and WAV files carry, and normalised
// float32 samples in [-1, 1].
//
// Example usage:
//
//	samples := pcm.DecodeS16LE(raw)
//	d := pcm.Duration(len(samples), 16000)
package pcm
