package accent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/hub"
)

const (
	// DefaultMinDuration is the shortest audio accepted.
	DefaultMinDuration = 500 * time.Millisecond

	// DefaultSilenceRMS is the RMS level under which audio counts as silent.
	DefaultSilenceRMS = 1e-4
)

// Classifier turns waveforms into accent predictions.
type Classifier struct {
	model       Model
	meta        hub.Metadata
	display     []string
	minDuration time.Duration
	silenceRMS  float64
	logger      *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithDisplayNames overrides display names by raw label.
func WithDisplayNames(names map[string]string) Option {
	return func(c *Classifier) {
		overrides := make(map[string]string, len(names))
		for k, v := range names {
			overrides[strings.ToLower(k)] = v
		}
		for i, l := range c.meta.Labels {
			c.display[i] = displayName(l, overrides)
		}
	}
}

// WithMinDuration sets the shortest audio accepted.
func WithMinDuration(d time.Duration) Option {
	return func(c *Classifier) {
		c.minDuration = d
	}
}

// WithSilenceRMS sets the silence threshold. Zero disables the check.
func WithSilenceRMS(rms float64) Option {
	return func(c *Classifier) {
		c.silenceRMS = rms
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// New wraps a backend. meta must name at least two labels and a positive
// sample rate.
func New(model Model, meta hub.Metadata, opts ...Option) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: no model backend", ErrModelLoad)
	}
	if len(meta.Labels) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 labels, got %d", ErrModelLoad, len(meta.Labels))
	}
	if meta.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrModelLoad, meta.SampleRate)
	}
	if meta.Output == "" {
		meta.Output = hub.ScoreLogits
	}
	meta.Labels = append([]string(nil), meta.Labels...)
	c := &Classifier{
		model:       model,
		meta:        meta,
		display:     make([]string, len(meta.Labels)),
		minDuration: DefaultMinDuration,
		silenceRMS:  DefaultSilenceRMS,
		logger:      slog.Default(),
	}
	for i, l := range meta.Labels {
		c.display[i] = displayName(l, nil)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Metadata returns the checkpoint metadata.
func (c *Classifier) Metadata() hub.Metadata {
	m := c.meta
	m.Labels = append([]string(nil), m.Labels...)
	return m
}

// SampleRate returns the rate waveforms must have.
func (c *Classifier) SampleRate() int { return c.meta.SampleRate }

// DisplayNames returns label -> display name for every label.
func (c *Classifier) DisplayNames() map[string]string {
	out := make(map[string]string, len(c.display))
	for i, l := range c.meta.Labels {
		out[l] = c.display[i]
	}
	return out
}

// Classify predicts the accent of w.
func (c *Classifier) Classify(ctx context.Context, w *extract.Waveform) (*Result, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: no audio", ErrInference)
	}
	if w.SampleRate != c.meta.SampleRate {
		return nil, fmt.Errorf("%w: audio is %d Hz, model expects %d Hz", ErrInference, w.SampleRate, c.meta.SampleRate)
	}
	if err := c.checkAudio(w); err != nil {
		return nil, err
	}

	samples := w.Samples
	if c.meta.Normalize {
		samples = normalize(samples)
	}

	start := time.Now()
	scores, err := c.model.Scores(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(scores) != len(c.meta.Labels) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels", ErrInference, len(scores), len(c.meta.Labels))
	}
	probs, err := distribution(scores, c.meta.Output)
	if err != nil {
		return nil, err
	}

	best := argmax(probs)
	res := &Result{
		Label:         c.meta.Labels[best],
		DisplayLabel:  c.display[best],
		Confidence:    probs[best],
		Probabilities: make([]LabelScore, len(probs)),
		AudioDuration: w.Duration(),
		SampleRate:    w.SampleRate,
		Samples:       len(w.Samples),
	}
	for i, p := range probs {
		res.Probabilities[i] = LabelScore{Label: c.meta.Labels[i], DisplayLabel: c.display[i], Probability: p}
	}
	sort.SliceStable(res.Probabilities, func(i, j int) bool {
		return res.Probabilities[i].Probability > res.Probabilities[j].Probability
	})

	c.logger.Debug("accent: classified", "label", res.Label, "confidence", res.Confidence,
		"audio", res.AudioDuration.Round(time.Millisecond), "took", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// checkAudio rejects input that cannot carry an accent: nothing, too
// little, or silence. The messages depend only on the input.
func (c *Classifier) checkAudio(w *extract.Waveform) error {
	if len(w.Samples) == 0 {
		return fmt.Errorf("%w: audio is empty", ErrInference)
	}
	if d := w.Duration(); d < c.minDuration {
		return fmt.Errorf("%w: audio is %v long, need at least %v", ErrInference, d.Round(time.Millisecond), c.minDuration)
	}
	if c.silenceRMS > 0 {
		if rms := w.RMS(); rms < c.silenceRMS {
			return fmt.Errorf("%w: audio is silent (rms %.2e below %.2e)", ErrInference, rms, c.silenceRMS)
		}
	}
	return nil
}

// Close releases the backend.
func (c *Classifier) Close() error {
	return c.model.Close()
}
