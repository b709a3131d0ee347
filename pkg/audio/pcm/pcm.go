package pcm

import (
	"encoding/binary"
	"time"
)

// DecodeS16LE converts s16le bytes to float32 samples. A trailing odd byte
// is ignored.
func DecodeS16LE(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return out
}

// EncodeS16LE converts float32 samples to s16le bytes, clipping values
// outside [-1, 1].
func EncodeS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ToInt16(s)))
	}
	return out
}

// ToInt16 converts one float32 sample to int16 with clipping.
func ToInt16(s float32) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32768)
}

// Duration returns the play time of n mono samples at rate Hz.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
