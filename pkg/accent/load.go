package accent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/onnx"
)

// Backend names a Model implementation.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendRemote Backend = "remote"
)

// DefaultModelID is the CommonAccent XLSR checkpoint.
const DefaultModelID = "Jzuluaga/accent-id-commonaccent_xlsr-en-english"

// DefaultRemoteEndpoint is the Hugging Face serverless inference API;
// the model id is appended.
const DefaultRemoteEndpoint = "https://api-inference.huggingface.co/models/"

// Options configures Load.
type Options struct {
	// Hub resolves and caches the checkpoint. Required.
	Hub *hub.Client

	ModelID  string
	Revision string

	// Weights is the ONNX file within the repository. Defaults to
	// hub.DefaultWeightFile.
	Weights string

	Backend Backend

	// RemoteURL overrides DefaultRemoteEndpoint+ModelID.
	RemoteURL   string
	RemoteToken string
	HTTPClient  *http.Client

	// Features selects the ONNX graph input. The auto default decides
	// from the graph's input name.
	Features Features

	Threads      int
	DisplayNames map[string]string
	MinDuration  time.Duration
	SilenceRMS   *float64

	Logger *slog.Logger
}

// Load resolves the checkpoint and builds a Classifier. It is meant to run
// once at startup; every failure wraps ErrModelLoad.
func Load(ctx context.Context, opts Options) (*Classifier, error) {
	if opts.Hub == nil {
		return nil, fmt.Errorf("%w: no hub client", ErrModelLoad)
	}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.Backend == "" {
		opts.Backend = BackendRemote
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	var (
		model Model
		meta  *hub.Metadata
	)
	switch opts.Backend {
	case BackendONNX:
		if !onnx.Available() {
			return nil, fmt.Errorf("%w: %w; or set model.backend: remote", ErrModelLoad, onnx.ErrUnavailable)
		}
		m, err := opts.Hub.Resolve(ctx, opts.ModelID, opts.Revision, opts.Weights)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
		weights, err := opts.Hub.ReadFile(ctx, m.Metadata.ID, m.Metadata.Revision, m.Weights)
		if err != nil {
			return nil, fmt.Errorf("%w: read weights: %w", ErrModelLoad, err)
		}
		numMels := m.Metadata.NumMels
		if numMels == 0 {
			numMels = DefaultNumMels
		}
		om, err := NewONNXModel(weights, len(m.Metadata.Labels),
			WithONNXThreads(opts.Threads),
			WithONNXFeatures(opts.Features, m.Metadata.SampleRate, numMels))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
		model, meta = om, &m.Metadata

	case BackendRemote:
		md, err := opts.Hub.Metadata(ctx, opts.ModelID, opts.Revision)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
		url := opts.RemoteURL
		if url == "" {
			url = DefaultRemoteEndpoint + opts.ModelID
		}
		ropts := []RemoteOption{WithRemoteToken(opts.RemoteToken)}
		if opts.HTTPClient != nil {
			ropts = append(ropts, WithRemoteHTTPClient(opts.HTTPClient))
		}
		md.Output = hub.ScoreProbabilities
		model, meta = NewRemoteModel(url, md.Labels, md.SampleRate, ropts...), md

	default:
		return nil, fmt.Errorf("%w: unknown backend %q (want %s or %s)", ErrModelLoad, opts.Backend, BackendONNX, BackendRemote)
	}

	copts := []Option{WithLogger(logger)}
	if len(opts.DisplayNames) > 0 {
		copts = append(copts, WithDisplayNames(opts.DisplayNames))
	}
	if opts.MinDuration > 0 {
		copts = append(copts, WithMinDuration(opts.MinDuration))
	}
	if opts.SilenceRMS != nil {
		copts = append(copts, WithSilenceRMS(*opts.SilenceRMS))
	}
	c, err := New(model, *meta, copts...)
	if err != nil {
		model.Close()
		return nil, err
	}
	logger.Info("accent: model loaded",
		"model", meta.ID, "revision", meta.Revision, "backend", string(opts.Backend),
		"layout", meta.Layout, "labels", strings.Join(meta.Labels, ","), "sample_rate", meta.SampleRate,
		"took", time.Since(start).Round(time.Millisecond))
	return c, nil
}
