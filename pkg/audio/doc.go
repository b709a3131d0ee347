// Package audio groups the signal-processing packages used between
// extraction and classification:
//
//   - pcm: s16le and float32 conversion
//   - wav: RIFF/WAVE decoding and encoding
//   - resampler: sample-rate conversion
//   - fbank: log mel filterbank features
package audio
