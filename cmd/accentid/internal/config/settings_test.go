package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/accentid/pkg/accent"
)

func writeSettings(t *testing.T, cfg *Config, ctx, body string) {
	t.Helper()
	if err := cfg.AddContext(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.ServicePath(ctx, Service), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv(EnvHFToken, "hf_test")
	cfg, _ := LoadFrom(t.TempDir())
	s, err := LoadSettings(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Server.Addr != ":8501" || s.Model.ID != accent.DefaultModelID {
		t.Errorf("defaults = %+v", s)
	}
	if s.Model.Backend != string(accent.BackendRemote) {
		t.Errorf("backend = %q: the default checkpoint has no ONNX export", s.Model.Backend)
	}
	if s.Model.Token != "hf_test" {
		t.Errorf("token = %q", s.Model.Token)
	}
	if len(s.Media.Extensions) != 6 {
		t.Errorf("extensions = %v", s.Media.Extensions)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	cfg, _ := LoadFrom(t.TempDir())
	writeSettings(t, cfg, "dev", `
server:
  addr: 127.0.0.1:9000
  request_timeout: 2m
media:
  extensions: [".wav", ".webm"]
model:
  backend: remote
  token: hf_file
cache:
  store: s3://models/accentid
  kv: memory://
labels:
  us: United States
`)
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Server.Addr != "127.0.0.1:9000" || s.Server.RequestTimeout != 2*time.Minute {
		t.Errorf("server = %+v", s.Server)
	}
	if s.Model.Backend != "remote" || s.Model.Token != "hf_file" {
		t.Errorf("model = %+v", s.Model)
	}
	// Unset fields keep their defaults.
	if s.Model.ID != accent.DefaultModelID || s.Extract.Mode != "auto" {
		t.Errorf("defaults lost: %+v %+v", s.Model, s.Extract)
	}
	if s.Labels["us"] != "United States" {
		t.Errorf("labels = %v", s.Labels)
	}
	scheme, path, err := s.Cache.StoreLocation()
	if err != nil || scheme != "s3" || path != "models/accentid" {
		t.Errorf("StoreLocation() = %q %q %v", scheme, path, err)
	}
	if scheme, _, _ := s.Cache.KVLocation(); scheme != "memory" {
		t.Errorf("KVLocation() scheme = %q", scheme)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	cfg, _ := LoadFrom(t.TempDir())
	writeSettings(t, cfg, "bad", `
media:
  extensions: [".exe"]
extract:
  mode: magic
model:
  backend: tpu
  features: spectrogram
cache:
  kv: redis://localhost
`)
	_, err := LoadSettings(cfg, "bad")
	if err == nil {
		t.Fatal("LoadSettings should fail")
	}
	for _, want := range []string{"extract.mode", "model.backend", "model.features", "cache.kv"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	if _, err := LoadSettings(cfg, "missing"); err == nil {
		t.Error("unknown context should fail")
	}
}

func TestCacheLocations(t *testing.T) {
	c := CacheSettings{Dir: "/var/cache/accentid"}
	if scheme, path, _ := c.StoreLocation(); scheme != "file" || path != filepath.Join(c.Dir, "models") {
		t.Errorf("default store = %q %q", scheme, path)
	}
	if scheme, dir, _ := c.KVLocation(); scheme != "badger" || dir != filepath.Join(c.Dir, "manifests") {
		t.Errorf("default kv = %q %q", scheme, dir)
	}
	c.Store = "file:///srv/models"
	if _, path, _ := c.StoreLocation(); path != "/srv/models" {
		t.Errorf("file store path = %q", path)
	}
	c.Store = "s3://"
	if _, _, err := c.StoreLocation(); err == nil {
		t.Error("s3 store without bucket should fail")
	}
	c.KV = "badger://"
	if _, _, err := c.KVLocation(); err == nil {
		t.Error("badger kv without dir should fail")
	}
}

func TestSetValue(t *testing.T) {
	m := map[string]any{}
	SetValue(m, "model.backend", "remote")
	SetValue(m, "model.threads", "4")
	SetValue(m, "model.offline", "true")
	SetValue(m, "server.addr", ":9000")
	if err := SetValue(m, "model..id", "x"); err == nil {
		t.Error("empty key segment should fail")
	}

	if v, _ := GetValue(m, "model.backend"); v != "remote" {
		t.Errorf("model.backend = %v", v)
	}
	if v, _ := GetValue(m, "model.offline"); v != true {
		t.Errorf("model.offline = %#v", v)
	}
	if v, _ := GetValue(m, "server.addr"); v != ":9000" {
		t.Errorf("server.addr = %#v", v)
	}
	if _, ok := GetValue(m, "model.backend.extra"); ok {
		t.Error("GetValue through a scalar should fail")
	}
}
