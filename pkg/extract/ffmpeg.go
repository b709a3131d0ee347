package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/audio/pcm"
)

// FFmpeg extracts audio by running the ffmpeg binary. The zero value
// looks up "ffmpeg" in PATH.
type FFmpeg struct {
	// Path is the ffmpeg binary. Empty means "ffmpeg".
	Path string

	// MaxDuration limits how much audio is decoded. Zero means no limit.
	MaxDuration time.Duration

	Logger *slog.Logger
}

func (f *FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f *FFmpeg) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Available reports whether the binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.bin())
	return err == nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(f.bin())
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found: %v", ErrExtraction, err)
	}
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("extract: ffmpeg -version: %w", err)
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return strings.TrimSpace(string(line)), nil
}

// Extract decodes the first audio stream of path to mono s16le at
// sampleRate and converts it to float32.
func (f *FFmpeg) Extract(ctx context.Context, path string, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrExtraction, sampleRate)
	}
	bin, err := exec.LookPath(f.bin())
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrExtraction, err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
	}
	if f.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(f.MaxDuration.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-f", "s16le", "-acodec", "pcm_s16le", "pipe:1")

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: 2048}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: ffmpeg exited with code %d: %s", ErrExtraction, exitErr.ExitCode(), stderr.lastLine())
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if stdout.Len() < 2 {
		return nil, fmt.Errorf("%w: no audio stream in input", ErrExtraction)
	}

	w := &Waveform{Samples: pcm.DecodeS16LE(stdout.Bytes()), SampleRate: sampleRate}
	f.logger().Debug("extract: ffmpeg done", "path", path,
		"duration", w.Duration().Round(time.Millisecond), "took", time.Since(start).Round(time.Millisecond))
	return w, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// lastLine returns the last non-empty stderr line, which is where ffmpeg
// puts the fatal error.
func (t *tailBuffer) lastLine() string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(t.buf))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if last == "" {
		return "no error output"
	}
	return last
}
