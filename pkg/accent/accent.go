// Package accent classifies the English accent of a speaker from a mono
// waveform using a pretrained audio-classification model.
//
// # Architecture
//
// A [Model] backend turns samples into one raw score per label. The
// [Classifier] wraps a backend with the checkpoint's metadata (label set,
// sample rate, normalisation) and the input policy:
//
//  1. reject a sample-rate mismatch
//  2. reject empty, too short or silent audio
//  3. normalise to zero mean and unit variance when the checkpoint asks
//  4. run the backend
//  5. turn the scores into a distribution (softmax or renormalisation)
//  6. pick the most probable label
//
// Backends: [ONNXModel] runs the graph locally through ONNX Runtime;
// [RemoteModel] calls a Hugging Face style inference endpoint.
//
// # Thread Safety
//
// A Classifier is read-only after [New] or [Load] and safe for
// concurrent use.
package accent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInference is returned when the audio cannot be classified.
	ErrInference = errors.New("accent: inference failed")

	// ErrModelLoad is returned when the model cannot be loaded.
	ErrModelLoad = errors.New("accent: model load failed")
)

// Model computes raw scores for one utterance.
//
// Implementations must be safe for concurrent use.
type Model interface {
	// Scores returns one score per label, in label order.
	Scores(ctx context.Context, samples []float32) ([]float32, error)

	// Close releases any resources held by the model.
	Close() error
}

// LabelScore is the probability of one label.
type LabelScore struct {
	Label        string  `json:"label" yaml:"label"`
	DisplayLabel string  `json:"display_label" yaml:"display_label"`
	Probability  float64 `json:"probability" yaml:"probability"`
}

// Result is the outcome of one classification. Probabilities are sorted by
// decreasing probability and sum to 1; Confidence is the probability of
// Label.
type Result struct {
	Label         string        `json:"label" yaml:"label"`
	DisplayLabel  string        `json:"display_label" yaml:"display_label"`
	Confidence    float64       `json:"confidence" yaml:"confidence"`
	Probabilities []LabelScore  `json:"probabilities" yaml:"probabilities"`
	AudioDuration time.Duration `json:"audio_duration" yaml:"audio_duration"`
	SampleRate    int           `json:"sample_rate" yaml:"sample_rate"`
	// Samples is the length of the mono waveform the model saw.
	Samples int `json:"samples" yaml:"samples"`
}

// Percent returns the confidence as a percentage.
func (r *Result) Percent() float64 {
	return r.Confidence * 100
}

// Summary returns the one-line description shown to users.
func (r *Result) Summary() string {
	return fmt.Sprintf("Detected %s accent with %.1f%% confidence.", r.DisplayLabel, r.Percent())
}
