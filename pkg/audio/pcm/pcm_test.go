package pcm

import (
	"testing"
	"time"
)

func TestDecodeS16LE(t *testing.T) {
	got := DecodeS16LE([]byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x01})
	want := []float32{0, 32767.0 / 32768, -1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEncodeRoundTripClips(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 2, -2}
	out := DecodeS16LE(EncodeS16LE(in))
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768, -1}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(24000, 16000); d != 1500*time.Millisecond {
		t.Errorf("Duration = %v", d)
	}
	if d := Duration(100, 0); d != 0 {
		t.Errorf("Duration with zero rate = %v", d)
	}
}
