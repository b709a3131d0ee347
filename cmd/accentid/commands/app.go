package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haivivi/accentid/cmd/accentid/internal/config"
	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/kv"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
	"github.com/haivivi/accentid/pkg/storage"
	"github.com/haivivi/accentid/pkg/web"
)

// app is the assembled pipeline shared by serve and classify.
type app struct {
	settings   *config.Settings
	logger     *slog.Logger
	hub        *hub.Client
	manifests  kv.Store
	classifier *accent.Classifier
	acquirer   *media.Acquirer
	extractor  extract.Extractor
	ffmpeg     *extract.FFmpeg
	runner     *pipeline.Runner
}

// openHub opens the artifact store and manifest store named by the
// settings and returns a hub client over them. The caller closes the
// returned kv.Store.
func openHub(s *config.Settings, logger *slog.Logger) (*hub.Client, kv.Store, error) {
	var files storage.FileStore
	scheme, path, err := s.Cache.StoreLocation()
	if err != nil {
		return nil, nil, err
	}
	switch scheme {
	case "file":
		local, err := storage.NewLocal(path)
		if err != nil {
			return nil, nil, err
		}
		files = local
	case "s3":
		bucket, prefix, _ := strings.Cut(path, "/")
		cfg := s.Cache.S3
		cfg.Bucket = bucket
		if prefix != "" {
			cfg.Prefix = prefix
		}
		client, err := storage.NewS3Client(cfg)
		if err != nil {
			return nil, nil, err
		}
		files = storage.NewS3(client, cfg.Bucket, cfg.Prefix)
	}

	var manifests kv.Store
	scheme, dir, err := s.Cache.KVLocation()
	if err != nil {
		return nil, nil, err
	}
	switch scheme {
	case "memory":
		manifests = kv.NewMemory(nil)
	case "badger":
		b, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Options: &kv.Options{}, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		manifests = b
	}

	opts := []hub.Option{
		hub.WithToken(s.Model.Token),
		hub.WithOffline(s.Model.Offline),
		hub.WithLogger(logger),
	}
	if s.Model.Endpoint != "" {
		opts = append(opts, hub.WithEndpoint(s.Model.Endpoint))
	}
	return hub.NewClient(files, manifests, opts...), manifests, nil
}

// newExtractor builds the extractor for extract.mode.
func newExtractor(s *config.Settings, logger *slog.Logger) (extract.Extractor, *extract.FFmpeg) {
	ff := &extract.FFmpeg{Path: s.Extract.FFmpeg, MaxDuration: s.Extract.MaxDuration, Logger: logger}
	native := &extract.Native{MaxDuration: s.Extract.MaxDuration}
	switch s.Extract.Mode {
	case "ffmpeg":
		return ff, ff
	case "native":
		return native, nil
	}
	return &extract.Auto{Native: native, FFmpeg: ff}, ff
}

// openApp loads the model and wires the pipeline.
func openApp(ctx context.Context, s *config.Settings, logger *slog.Logger) (*app, error) {
	h, manifests, err := openHub(s, logger)
	if err != nil {
		return nil, err
	}
	classifier, err := accent.Load(ctx, accent.Options{
		Hub:          h,
		ModelID:      s.Model.ID,
		Revision:     s.Model.Revision,
		Weights:      s.Model.Weights,
		Backend:      accent.Backend(s.Model.Backend),
		RemoteURL:    s.Model.RemoteURL,
		RemoteToken:  s.Model.Token,
		Features:     accent.Features(s.Model.Features),
		Threads:      s.Model.Threads,
		DisplayNames: s.Labels,
		MinDuration:  s.Model.MinDuration,
		SilenceRMS:   s.Model.SilenceRMS,
		Logger:       logger,
	})
	if err != nil {
		manifests.Close()
		return nil, err
	}

	formats, err := media.NewFormats(s.Media.Extensions...)
	if err != nil {
		classifier.Close()
		manifests.Close()
		return nil, err
	}
	acqOpts := []media.Option{
		media.WithFormats(formats),
		media.WithMaxBytes(s.Media.MaxBytes),
		media.WithTimeout(s.Media.DownloadTimeout),
		media.WithLogger(logger),
	}
	if s.Media.TempDir != "" {
		acqOpts = append(acqOpts, media.WithTempDir(s.Media.TempDir))
	}
	acquirer := media.NewAcquirer(acqOpts...)

	extractor, ff := newExtractor(s, logger)
	if ff != nil && !ff.Available() {
		logger.Warn("ffmpeg not found; only WAV input can be decoded", "path", s.Extract.FFmpeg)
	}

	runner := pipeline.NewRunner(acquirer, extractor, classifier,
		pipeline.WithTimeout(s.Server.RequestTimeout),
		pipeline.WithLogger(logger),
	)
	return &app{
		settings:   s,
		logger:     logger,
		hub:        h,
		manifests:  manifests,
		classifier: classifier,
		acquirer:   acquirer,
		extractor:  extractor,
		ffmpeg:     ff,
		runner:     runner,
	}, nil
}

// info describes the app for /api/health.
func (a *app) info(ctx context.Context, version string) web.Info {
	meta := a.classifier.Metadata()
	info := web.Info{
		ModelID:    meta.ID,
		Revision:   meta.Revision,
		Backend:    a.settings.Model.Backend,
		Labels:     len(meta.Labels),
		SampleRate: meta.SampleRate,
		Formats:    a.acquirer.Formats().Extensions(),
		Version:    version,
	}
	if a.ffmpeg != nil && a.ffmpeg.Available() {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if v, err := a.ffmpeg.Version(vctx); err == nil {
			info.FFmpeg = v
		}
	}
	return info
}

func (a *app) Close() error {
	return errors.Join(a.classifier.Close(), a.manifests.Close())
}

// describeError renders a pipeline failure for the terminal.
func describeError(err error) string {
	kind := pipeline.KindOf(err)
	if kind == pipeline.KindInternal {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s (%v)", kind.Title(), kind.Message(), err)
}

// applyModelFlags overrides model settings from command flags.
func applyModelFlags(s *config.Settings, model, revision, backend string, offline bool) {
	if model != "" {
		s.Model.ID = model
	}
	if revision != "" {
		s.Model.Revision = revision
	}
	if backend != "" {
		s.Model.Backend = backend
	}
	if offline {
		s.Model.Offline = true
	}
}
