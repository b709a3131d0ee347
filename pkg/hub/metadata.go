package hub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Artifact file names.
const (
	FileConfig        = "config.json"
	FilePreprocessor  = "preprocessor_config.json"
	FileLabelEncoder  = "label_encoder.txt"
	FileHyperparams   = "hyperparams.yaml"
	DefaultWeightFile = "model.onnx"
)

// DefaultSampleRate is assumed when the metadata does not name one.
const DefaultSampleRate = 16000

// ScoreKind tells how to turn raw model outputs into a distribution.
type ScoreKind string

const (
	// ScoreLogits are unnormalised (or log-softmax) scores; apply softmax.
	ScoreLogits ScoreKind = "logits"
	// ScoreProbabilities already form a distribution up to rounding.
	ScoreProbabilities ScoreKind = "probabilities"
)

// Metadata describes a classification checkpoint.
type Metadata struct {
	ID         string    `json:"id" yaml:"id"`
	Revision   string    `json:"revision" yaml:"revision"`
	Layout     string    `json:"layout" yaml:"layout"`
	Labels     []string  `json:"labels" yaml:"labels"`
	SampleRate int       `json:"sample_rate" yaml:"sample_rate"`
	Normalize  bool      `json:"normalize" yaml:"normalize"`
	Output     ScoreKind `json:"output" yaml:"output"`
	// NumMels is the filterbank size of SpeechBrain checkpoints, zero when
	// the hyperparameters do not name one.
	NumMels int `json:"num_mels,omitempty" yaml:"num_mels,omitempty"`
}

// Model is a resolved, cached checkpoint.
type Model struct {
	Metadata Metadata
	Manifest *Manifest
	Weights  string
}

// Resolve fetches the metadata files of id@revision, discovers the
// checkpoint layout and fetches the weights file (DefaultWeightFile unless
// weights is given).
func (c *Client) Resolve(ctx context.Context, id, revision string, weights ...string) (*Model, error) {
	if revision == "" {
		revision = DefaultRevision
	}
	md, err := c.metadata(ctx, id, revision)
	if err != nil {
		return nil, err
	}
	wf := DefaultWeightFile
	if len(weights) > 0 && weights[0] != "" {
		wf = weights[0]
	}
	m, err := c.Fetch(ctx, id, revision, wf)
	if err != nil {
		return nil, err
	}
	return &Model{Metadata: *md, Manifest: m, Weights: wf}, nil
}

// Metadata fetches and parses only the metadata files of id@revision.
func (c *Client) Metadata(ctx context.Context, id, revision string) (*Metadata, error) {
	if revision == "" {
		revision = DefaultRevision
	}
	return c.metadata(ctx, id, revision)
}

func (c *Client) metadata(ctx context.Context, id, revision string) (*Metadata, error) {
	md, err := c.transformersMetadata(ctx, id, revision)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrOffline) {
		md, err = c.speechBrainMetadata(ctx, id, revision)
	}
	if err != nil {
		return nil, err
	}
	md.ID, md.Revision = id, revision
	return md, nil
}

func (c *Client) transformersMetadata(ctx context.Context, id, revision string) (*Metadata, error) {
	if _, err := c.Fetch(ctx, id, revision, FileConfig); err != nil {
		return nil, err
	}
	cfg, err := c.ReadFile(ctx, id, revision, FileConfig)
	if err != nil {
		return nil, err
	}
	var pre []byte
	if _, err := c.Fetch(ctx, id, revision, FilePreprocessor); err == nil {
		if pre, err = c.ReadFile(ctx, id, revision, FilePreprocessor); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrOffline) {
		return nil, err
	}
	return ParseTransformers(cfg, pre)
}

func (c *Client) speechBrainMetadata(ctx context.Context, id, revision string) (*Metadata, error) {
	if _, err := c.Fetch(ctx, id, revision, FileLabelEncoder); err != nil {
		return nil, err
	}
	enc, err := c.ReadFile(ctx, id, revision, FileLabelEncoder)
	if err != nil {
		return nil, err
	}
	var hp []byte
	if _, err := c.Fetch(ctx, id, revision, FileHyperparams); err == nil {
		if hp, err = c.ReadFile(ctx, id, revision, FileHyperparams); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrOffline) {
		return nil, err
	}
	return ParseSpeechBrain(enc, hp)
}

// ParseTransformers reads a transformers config.json and an optional
// preprocessor_config.json.
func ParseTransformers(config, preprocessor []byte) (*Metadata, error) {
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("hub: parse %s: %w", FileConfig, err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("hub: %s has no id2label", FileConfig)
	}
	idx := make(map[int]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("hub: %s: bad label index %q", FileConfig, k)
		}
		idx[i] = v
	}
	labels, err := orderLabels(idx)
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Layout:     "transformers",
		Labels:     labels,
		SampleRate: DefaultSampleRate,
		Output:     ScoreLogits,
	}
	if len(preprocessor) > 0 {
		var pre struct {
			SamplingRate int   `json:"sampling_rate"`
			DoNormalize  *bool `json:"do_normalize"`
		}
		if err := json.Unmarshal(preprocessor, &pre); err != nil {
			return nil, fmt.Errorf("hub: parse %s: %w", FilePreprocessor, err)
		}
		if pre.SamplingRate > 0 {
			md.SampleRate = pre.SamplingRate
		}
		if pre.DoNormalize != nil {
			md.Normalize = *pre.DoNormalize
		}
	}
	return md, nil
}

// ParseSpeechBrain reads a SpeechBrain label_encoder.txt and an optional
// hyperparams.yaml.
//
// The encoder lists one "'label' => index" pair per line; a line of '='
// ends the label section. Of the hyperparams file only the top-level
// sample_rate and n_mels values are used; tagged nodes elsewhere are
// decoded and ignored.
func ParseSpeechBrain(labelEncoder, hyperparams []byte) (*Metadata, error) {
	idx := make(map[int]string)
	sc := bufio.NewScanner(bytes.NewReader(labelEncoder))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "=") {
			break
		}
		k, v, ok := strings.Cut(line, "=>")
		if !ok {
			return nil, fmt.Errorf("hub: %s: bad line %q", FileLabelEncoder, line)
		}
		label := strings.Trim(strings.TrimSpace(k), `'"`)
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("hub: %s: bad index in %q", FileLabelEncoder, line)
		}
		if prev, dup := idx[i]; dup {
			return nil, fmt.Errorf("hub: %s: index %d used by %q and %q", FileLabelEncoder, i, prev, label)
		}
		idx[i] = label
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("hub: read %s: %w", FileLabelEncoder, err)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("hub: %s has no labels", FileLabelEncoder)
	}
	labels, err := orderLabels(idx)
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Layout:     "speechbrain",
		Labels:     labels,
		SampleRate: DefaultSampleRate,
		Output:     ScoreLogits,
	}
	if len(bytes.TrimSpace(hyperparams)) == 0 {
		return md, nil
	}
	var hp speechBrainHyperparams
	if err := yaml.Unmarshal(hyperparams, &hp); err != nil {
		return nil, fmt.Errorf("hub: parse %s: %w", FileHyperparams, err)
	}
	if hp.SampleRate != nil {
		if *hp.SampleRate <= 0 {
			return nil, fmt.Errorf("hub: %s: bad sample_rate %d", FileHyperparams, *hp.SampleRate)
		}
		md.SampleRate = *hp.SampleRate
	}
	if hp.NumMels != nil {
		if *hp.NumMels <= 0 {
			return nil, fmt.Errorf("hub: %s: bad n_mels %d", FileHyperparams, *hp.NumMels)
		}
		md.NumMels = *hp.NumMels
	}
	return md, nil
}

type speechBrainHyperparams struct {
	SampleRate *int `yaml:"sample_rate"`
	NumMels    *int `yaml:"n_mels"`
}

// orderLabels turns an index->label map into a slice, rejecting gaps and
// repeated labels.
func orderLabels(idx map[int]string) ([]string, error) {
	keys := make([]int, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	labels := make([]string, len(keys))
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		if k != i {
			return nil, fmt.Errorf("hub: label indices are not contiguous: missing %d", i)
		}
		l := idx[k]
		if l == "" {
			return nil, fmt.Errorf("hub: label %d is empty", k)
		}
		if seen[l] {
			return nil, fmt.Errorf("hub: label %q appears twice", l)
		}
		seen[l] = true
		labels[i] = l
	}
	return labels, nil
}
