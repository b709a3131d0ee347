package accent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/haivivi/accentid/pkg/audio/fbank"
	"github.com/haivivi/accentid/pkg/onnx"
)

// Features selects what an ONNX graph takes as input.
type Features string

const (
	// FeaturesAuto picks fbank when the graph's first input is named like
	// a feature matrix ("feats", "fbank", "mel..."), waveform otherwise.
	FeaturesAuto     Features = ""
	FeaturesWaveform Features = "waveform"
	FeaturesFbank    Features = "fbank"
)

// DefaultNumMels is the filterbank size used when the checkpoint does not
// name one.
const DefaultNumMels = 80

// ONNXModel implements [Model] with ONNX Runtime.
//
// The graph takes either the raw waveform as a [1, N] float32 tensor or
// mean-normalised log mel filterbanks as [1, T, M], and yields [1, L]
// scores. SpeechBrain exports with a second relative-length input
// ("wav_lens", [1]) get 1.0 for it.
//
// ONNXModel is safe for concurrent use; Session.Run locks internally.
type ONNXModel struct {
	mu     sync.RWMutex
	env    *onnx.Env
	sess   *onnx.Session
	labels int
	closed bool

	inputName  string
	lensName   string
	outputName string
	threads    int

	features   Features
	sampleRate int
	numMels    int
	fbank      *fbank.Extractor
}

// ONNXOption configures an ONNXModel.
type ONNXOption func(*ONNXModel)

// WithONNXNames sets the waveform input and score output names. By default
// the first graph input and output are used.
func WithONNXNames(input, output string) ONNXOption {
	return func(m *ONNXModel) {
		m.inputName = input
		m.outputName = output
	}
}

// WithONNXFeatures sets the input kind along with the sample rate and
// filterbank size used when it resolves to fbank.
func WithONNXFeatures(f Features, sampleRate, numMels int) ONNXOption {
	return func(m *ONNXModel) {
		m.features = f
		m.sampleRate = sampleRate
		m.numMels = numMels
	}
}

// WithONNXThreads limits intra-op threads.
func WithONNXThreads(n int) ONNXOption {
	return func(m *ONNXModel) {
		m.threads = n
	}
}

// NewONNXModel loads a graph scoring numLabels labels.
func NewONNXModel(weights []byte, numLabels int, opts ...ONNXOption) (*ONNXModel, error) {
	m := &ONNXModel{labels: numLabels}
	for _, opt := range opts {
		opt(m)
	}

	env, err := onnx.NewEnv("accentid")
	if err != nil {
		return nil, fmt.Errorf("accent: onnx env: %w", err)
	}
	sess, err := env.NewSession(weights, &onnx.SessionOptions{IntraOpThreads: m.threads})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("accent: onnx session: %w", err)
	}
	m.env, m.sess = env, sess

	inputs, outputs := sess.InputNames(), sess.OutputNames()
	if len(inputs) == 0 || len(outputs) == 0 {
		m.Close()
		return nil, fmt.Errorf("accent: onnx graph has %d inputs and %d outputs", len(inputs), len(outputs))
	}
	if m.inputName == "" {
		m.inputName = inputs[0]
	}
	if m.outputName == "" {
		m.outputName = outputs[0]
	}
	for _, in := range inputs {
		if in != m.inputName && strings.Contains(strings.ToLower(in), "len") {
			m.lensName = in
		}
	}
	if err := m.initFeatures(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *ONNXModel) initFeatures() error {
	switch m.features {
	case FeaturesAuto:
		name := strings.ToLower(m.inputName)
		if !strings.Contains(name, "feat") && !strings.Contains(name, "fbank") && !strings.Contains(name, "mel") {
			m.features = FeaturesWaveform
			return nil
		}
		m.features = FeaturesFbank
	case FeaturesWaveform:
		return nil
	case FeaturesFbank:
	default:
		return fmt.Errorf("accent: unknown input features %q", m.features)
	}
	if m.sampleRate <= 0 {
		m.sampleRate = 16000
	}
	if m.numMels <= 0 {
		m.numMels = DefaultNumMels
	}
	ext, err := fbank.New(fbank.DefaultConfig(m.sampleRate, m.numMels))
	if err != nil {
		return fmt.Errorf("accent: %w", err)
	}
	m.fbank = ext
	return nil
}

// Features reports the resolved input kind.
func (m *ONNXModel) Features() Features { return m.features }

func (m *ONNXModel) input(samples []float32) (*onnx.Tensor, error) {
	if m.fbank == nil {
		return onnx.NewTensor([]int64{1, int64(len(samples))}, samples)
	}
	f := m.fbank.Compute(samples)
	fbank.Normalize(f, false)
	return onnx.NewTensor(f.Shape(), f.Data)
}

// Scores runs the graph on samples.
func (m *ONNXModel) Scores(ctx context.Context, samples []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("accent: model closed")
	}

	input, err := m.input(samples)
	if err != nil {
		return nil, err
	}
	defer input.Close()
	names := []string{m.inputName}
	tensors := []*onnx.Tensor{input}
	if m.lensName != "" {
		lens, err := onnx.NewTensor([]int64{1}, []float32{1})
		if err != nil {
			return nil, err
		}
		defer lens.Close()
		names = append(names, m.lensName)
		tensors = append(tensors, lens)
	}

	outputs, err := m.sess.Run(names, tensors, []string{m.outputName})
	if err != nil {
		return nil, err
	}
	defer outputs[0].Close()
	data, err := outputs[0].FloatData()
	if err != nil {
		return nil, err
	}
	if len(data) < m.labels {
		return nil, fmt.Errorf("accent: output %q has %d values, want %d", m.outputName, len(data), m.labels)
	}
	// [1, L] or [1, 1, L]: the scores are the trailing L values.
	return data[len(data)-m.labels:], nil
}

// Close releases the session and environment.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.sess != nil {
		m.sess.Close()
	}
	if m.env != nil {
		m.env.Close()
	}
	return nil
}

var _ Model = (*ONNXModel)(nil)
