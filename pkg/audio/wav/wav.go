// Package wav reads and writes RIFF/WAVE files.
//
// Decode supports integer PCM (8, 16, 24 and 32 bit) and IEEE float
// (32 and 64 bit), including WAVE_FORMAT_EXTENSIBLE headers that wrap
// those codecs. Compressed codecs (ADPCM, mu-law, ...) are rejected with
// ErrUnsupportedCodec so callers can fall back to a transcoder.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/haivivi/accentid/pkg/audio/pcm"
)

const (
	formatPCM        = 0x0001
	formatFloat      = 0x0003
	formatExtensible = 0xfffe
)

var (
	// ErrNotWAV is returned when the input is not a RIFF/WAVE stream.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

	// ErrUnsupportedCodec is returned for WAVE files whose codec Decode
	// cannot handle.
	ErrUnsupportedCodec = errors.New("wav: unsupported codec")
)

// Audio is decoded audio. Samples are interleaved when Channels > 1.
type Audio struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []float32
}

// Frames returns the number of sample frames.
func (a *Audio) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

type fmtChunk struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Decode reads a complete WAVE stream from r.
func Decode(r io.Reader) (*Audio, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		f       *fmtChunk
		codec   uint16
		payload []byte
	)
	for payload == nil {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			if f == nil {
				return nil, fmt.Errorf("wav: missing fmt chunk: %w", err)
			}
			return nil, fmt.Errorf("wav: missing data chunk: %w", err)
		}
		id := string(ch[0:4])
		size := binary.LittleEndian.Uint32(ch[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too small (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			f = new(fmtChunk)
			if err := binary.Read(bytes.NewReader(body[:16]), binary.LittleEndian, f); err != nil {
				return nil, fmt.Errorf("wav: parse fmt chunk: %w", err)
			}
			codec = f.AudioFormat
			if codec == formatExtensible {
				if size < 26 {
					return nil, fmt.Errorf("wav: extensible fmt chunk too small (%d bytes)", size)
				}
				// The first two bytes of the sub-format GUID hold the codec.
				codec = binary.LittleEndian.Uint16(body[24:26])
			}
		case "data":
			if f == nil {
				return nil, errors.New("wav: data chunk before fmt chunk")
			}
			// Streams written by ffmpeg to a pipe carry size 0 or 0xffffffff;
			// the rest of the input is the payload.
			src := r
			if size != 0 && size != 0xffffffff {
				src = io.LimitReader(r, int64(size))
			}
			data, err := io.ReadAll(src)
			if err != nil {
				return nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			payload = data
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)+int64(size&1)); err != nil {
				return nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
		if size&1 == 1 && id == "fmt " {
			io.CopyN(io.Discard, r, 1)
		}
	}

	if f.Channels == 0 || f.SampleRate == 0 {
		return nil, fmt.Errorf("wav: invalid format: %d channels at %d Hz", f.Channels, f.SampleRate)
	}
	samples, err := decodeSamples(payload, codec, int(f.BitsPerSample))
	if err != nil {
		return nil, err
	}
	return &Audio{
		SampleRate: int(f.SampleRate),
		Channels:   int(f.Channels),
		BitDepth:   int(f.BitsPerSample),
		Samples:    samples,
	}, nil
}

func decodeSamples(b []byte, codec uint16, bits int) ([]float32, error) {
	switch {
	case codec == formatPCM && bits == 16:
		return pcm.DecodeS16LE(b), nil
	case codec == formatPCM && bits == 8:
		out := make([]float32, len(b))
		for i, v := range b {
			out[i] = (float32(v) - 128) / 128
		}
		return out, nil
	case codec == formatPCM && bits == 24:
		out := make([]float32, len(b)/3)
		for i := range out {
			v := int32(b[i*3]) | int32(b[i*3+1])<<8 | int32(int8(b[i*3+2]))<<16
			out[i] = float32(v) / (1 << 23)
		}
		return out, nil
	case codec == formatPCM && bits == 32:
		out := make([]float32, len(b)/4)
		for i := range out {
			out[i] = float32(float64(int32(binary.LittleEndian.Uint32(b[i*4:]))) / (1 << 31))
		}
		return out, nil
	case codec == formatFloat && bits == 32:
		out := make([]float32, len(b)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		return out, nil
	case codec == formatFloat && bits == 64:
		out := make([]float32, len(b)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: format 0x%04x with %d bits", ErrUnsupportedCodec, codec, bits)
}

// Encode writes mono samples as a 16-bit PCM WAVE stream.
func Encode(w io.Writer, samples []float32, sampleRate int) error {
	data := pcm.EncodeS16LE(samples)
	hdr := make([]byte, 44)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+len(data)))
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:], 2)
	binary.LittleEndian.PutUint16(hdr[34:], 16)
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(data)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
