package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
	"github.com/haivivi/accentid/pkg/storage"
)

// Service is the name of the settings file within a context.
const Service = "accentid"

// EnvHFToken supplies the hub token when settings leave it empty.
const EnvHFToken = "HF_TOKEN"

// Settings is the accentid service configuration.
type Settings struct {
	Server  ServerSettings    `yaml:"server"`
	Media   MediaSettings     `yaml:"media"`
	Extract ExtractSettings   `yaml:"extract"`
	Model   ModelSettings     `yaml:"model"`
	Cache   CacheSettings     `yaml:"cache"`
	Log     LogSettings       `yaml:"log"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

type ServerSettings struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type MediaSettings struct {
	Extensions      []string      `yaml:"extensions"`
	MaxBytes        int64         `yaml:"max_bytes"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	TempDir         string        `yaml:"temp_dir,omitempty"`
}

type ExtractSettings struct {
	// Mode is auto, ffmpeg or native.
	Mode        string        `yaml:"mode"`
	FFmpeg      string        `yaml:"ffmpeg"`
	MaxDuration time.Duration `yaml:"max_duration,omitempty"`
}

type ModelSettings struct {
	ID          string        `yaml:"id"`
	Revision    string        `yaml:"revision"`
	Weights     string        `yaml:"weights,omitempty"`
	Backend     string        `yaml:"backend"`
	Endpoint    string        `yaml:"endpoint"`
	Token       string        `yaml:"token,omitempty"`
	RemoteURL   string        `yaml:"remote_url,omitempty"`
	// Features is the ONNX graph input: waveform, fbank, or empty to
	// decide from the graph.
	Features    string        `yaml:"features,omitempty"`
	Threads     int           `yaml:"threads,omitempty"`
	Offline     bool          `yaml:"offline,omitempty"`
	MinDuration time.Duration `yaml:"min_duration,omitempty"`
	SilenceRMS  *float64      `yaml:"silence_rms,omitempty"`
}

type CacheSettings struct {
	// Store is file:///dir or s3://bucket/prefix. Empty means files under
	// Dir.
	Store string `yaml:"store,omitempty"`
	// KV is badger:///dir or memory://. Empty means badger under Dir.
	KV  string           `yaml:"kv,omitempty"`
	Dir string           `yaml:"dir"`
	S3  storage.S3Config `yaml:"s3,omitempty"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	cacheDir := filepath.Join(os.TempDir(), appDir)
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, appDir)
	}
	return &Settings{
		Server: ServerSettings{
			Addr:           ":8501",
			RequestTimeout: pipeline.DefaultTimeout,
		},
		Media: MediaSettings{
			Extensions:      append([]string(nil), media.DefaultExtensions...),
			MaxBytes:        media.DefaultMaxBytes,
			DownloadTimeout: media.DefaultTimeout,
		},
		Extract: ExtractSettings{
			Mode:   "auto",
			FFmpeg: "ffmpeg",
		},
		Model: ModelSettings{
			ID:       accent.DefaultModelID,
			Revision: hub.DefaultRevision,
			Backend:  string(accent.BackendRemote),
			Endpoint: hub.DefaultEndpoint,
		},
		Cache: CacheSettings{
			Dir: cacheDir,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadSettings reads the settings of the named context (the current
// context when name is empty) over the defaults. A missing context or
// file yields the defaults.
func LoadSettings(cfg *Config, name string) (*Settings, error) {
	s := DefaultSettings()
	dir, err := cfg.ResolveContext(name)
	if err != nil {
		return nil, err
	}
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, Service+".yaml"))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("parse %s settings: %w", Service, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s settings: %w", Service, err)
		}
	}
	if s.Model.Token == "" {
		s.Model.Token = os.Getenv(EnvHFToken)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks values that would otherwise fail late.
func (s *Settings) Validate() error {
	var errs []error
	if _, err := media.NewFormats(s.Media.Extensions...); err != nil {
		errs = append(errs, err)
	}
	if s.Media.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("media.max_bytes must be positive"))
	}
	switch s.Extract.Mode {
	case "auto", "ffmpeg", "native":
	default:
		errs = append(errs, fmt.Errorf("extract.mode %q: want auto, ffmpeg or native", s.Extract.Mode))
	}
	switch accent.Backend(s.Model.Backend) {
	case accent.BackendONNX, accent.BackendRemote:
	default:
		errs = append(errs, fmt.Errorf("model.backend %q: want %s or %s", s.Model.Backend, accent.BackendONNX, accent.BackendRemote))
	}
	switch accent.Features(s.Model.Features) {
	case accent.FeaturesAuto, accent.FeaturesWaveform, accent.FeaturesFbank:
	default:
		errs = append(errs, fmt.Errorf("model.features %q: want %s or %s", s.Model.Features, accent.FeaturesWaveform, accent.FeaturesFbank))
	}
	if s.Model.ID == "" {
		errs = append(errs, fmt.Errorf("model.id is required"))
	}
	if _, _, err := s.Cache.StoreLocation(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := s.Cache.KVLocation(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

// StoreLocation parses Store into a scheme ("file" or "s3") and a path
// (a directory, or bucket/prefix).
func (c CacheSettings) StoreLocation() (scheme, path string, err error) {
	if c.Store == "" {
		return "file", filepath.Join(c.Dir, "models"), nil
	}
	u, err := url.Parse(c.Store)
	if err != nil {
		return "", "", fmt.Errorf("cache.store: %w", err)
	}
	switch u.Scheme {
	case "file":
		return "file", u.Path, nil
	case "s3":
		if u.Host == "" {
			return "", "", fmt.Errorf("cache.store %q: missing bucket", c.Store)
		}
		return "s3", u.Host + u.Path, nil
	}
	return "", "", fmt.Errorf("unsupported cache.store scheme: %s", c.Store)
}

// KVLocation parses KV into a scheme ("badger" or "memory") and a
// directory.
func (c CacheSettings) KVLocation() (scheme, dir string, err error) {
	switch {
	case c.KV == "":
		return "badger", filepath.Join(c.Dir, "manifests"), nil
	case c.KV == "memory://":
		return "memory", "", nil
	case strings.HasPrefix(c.KV, "badger://"):
		dir := strings.TrimPrefix(c.KV, "badger://")
		if dir == "" {
			return "", "", fmt.Errorf("cache.kv %q: missing directory", c.KV)
		}
		return "badger", dir, nil
	}
	return "", "", fmt.Errorf("unsupported cache.kv URL scheme: %s", c.KV)
}

// SetValue sets a dotted key such as "model.backend" in a settings map.
// The value is parsed as a YAML scalar, so numbers and booleans keep
// their type.
func SetValue(m map[string]any, key, value string) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	var v any = value
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err == nil {
		switch parsed.(type) {
		case bool, int, int64, uint64, float64:
			v = parsed
		}
	}
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
	return nil
}

// GetValue returns the value at a dotted key.
func GetValue(m map[string]any, key string) (any, bool) {
	var cur any = m
	for _, p := range strings.Split(key, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}
