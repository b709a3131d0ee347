package accent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/audio/wav"
)

// DefaultRemoteTimeout bounds one remote inference call.
const DefaultRemoteTimeout = 60 * time.Second

// RemoteModel implements [Model] by posting WAV audio to an inference
// endpoint that answers with [{"label": ..., "score": ...}], the Hugging
// Face audio-classification contract. Scores are probabilities.
type RemoteModel struct {
	url        string
	token      string
	labels     []string
	sampleRate int
	client     *http.Client
}

// RemoteOption configures a RemoteModel.
type RemoteOption func(*RemoteModel)

// WithRemoteToken sets the bearer token.
func WithRemoteToken(token string) RemoteOption {
	return func(m *RemoteModel) {
		m.token = token
	}
}

// WithRemoteHTTPClient sets the HTTP client.
func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(m *RemoteModel) {
		m.client = c
	}
}

// NewRemoteModel returns a RemoteModel for the given label order and the
// sample rate the audio is encoded at.
func NewRemoteModel(url string, labels []string, sampleRate int, opts ...RemoteOption) *RemoteModel {
	m := &RemoteModel{
		url:        url,
		labels:     labels,
		sampleRate: sampleRate,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	return m
}

type remoteScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

func (m *RemoteModel) Scores(ctx context.Context, samples []float32) ([]float32, error) {
	var body bytes.Buffer
	if err := wav.Encode(&body, samples, m.sampleRate); err != nil {
		return nil, fmt.Errorf("accent: encode audio: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, &body)
	if err != nil {
		return nil, fmt.Errorf("accent: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	// Ask for every label, not the endpoint's default top 5.
	req.Header.Set("X-Top-K", strconv.Itoa(len(m.labels)))
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	q := req.URL.Query()
	q.Set("top_k", strconv.Itoa(len(m.labels)))
	req.URL.RawQuery = q.Encode()

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accent: remote: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("accent: remote: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, fmt.Errorf("accent: remote: HTTP %d: %s", resp.StatusCode, msg)
	}
	return m.decode(data)
}

// decode maps the endpoint's label/score list onto the label order.
// Labels may come back verbatim, in another case, or as LABEL_<i>.
// Labels the endpoint left out score 0.
func (m *RemoteModel) decode(data []byte) ([]float32, error) {
	var list []remoteScore
	if err := json.Unmarshal(data, &list); err != nil {
		var nested [][]remoteScore
		if err2 := json.Unmarshal(data, &nested); err2 != nil || len(nested) == 0 {
			return nil, fmt.Errorf("accent: remote: decode response: %w", err)
		}
		list = nested[0]
	}

	index := make(map[string]int, len(m.labels))
	for i, l := range m.labels {
		index[strings.ToLower(l)] = i
	}
	out := make([]float32, len(m.labels))
	matched := 0
	for _, s := range list {
		i, ok := index[strings.ToLower(s.Label)]
		if !ok {
			n, found := strings.CutPrefix(s.Label, "LABEL_")
			if !found {
				continue
			}
			idx, err := strconv.Atoi(n)
			if err != nil || idx < 0 || idx >= len(m.labels) {
				continue
			}
			i = idx
		}
		out[i] = s.Score
		matched++
	}
	if matched == 0 {
		return nil, fmt.Errorf("accent: remote: none of %d returned labels match the model labels", len(list))
	}
	return out, nil
}

func (m *RemoteModel) Close() error { return nil }

var _ Model = (*RemoteModel)(nil)
