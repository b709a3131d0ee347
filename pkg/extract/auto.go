package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/haivivi/accentid/pkg/audio/wav"
)

// Auto uses Native for .wav files and FFmpeg for everything else. WAV
// files Native cannot read (compressed codecs, misnamed files) are retried
// with FFmpeg when the binary is available.
type Auto struct {
	Native *Native
	FFmpeg *FFmpeg
}

func (a *Auto) Extract(ctx context.Context, path string, sampleRate int) (*Waveform, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		w, err := a.Native.Extract(ctx, path, sampleRate)
		if err == nil {
			return w, nil
		}
		retry := errors.Is(err, wav.ErrUnsupportedCodec) || errors.Is(err, wav.ErrNotWAV)
		if !retry || !a.FFmpeg.Available() {
			return nil, err
		}
		a.FFmpeg.logger().Debug("extract: native decode failed, retrying with ffmpeg", "path", path, "error", err)
	}
	return a.FFmpeg.Extract(ctx, path, sampleRate)
}

var (
	_ Extractor = (*FFmpeg)(nil)
	_ Extractor = (*Native)(nil)
	_ Extractor = (*Auto)(nil)
)
