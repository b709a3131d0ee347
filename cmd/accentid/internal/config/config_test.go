package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestContexts(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if names, err := cfg.ListContexts(); err != nil || len(names) != 0 {
		t.Fatalf("ListContexts() = %v, %v", names, err)
	}
	if err := cfg.AddContext("dev"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddContext("dev"); err == nil {
		t.Error("duplicate AddContext should fail")
	}
	if err := cfg.AddContext("../escape"); err == nil {
		t.Error("AddContext should reject path names")
	}
	if err := cfg.AddContext("prod"); err != nil {
		t.Fatal(err)
	}
	names, _ := cfg.ListContexts()
	slices.Sort(names)
	if !slices.Equal(names, []string{"dev", "prod"}) {
		t.Errorf("ListContexts() = %v", names)
	}

	if err := cfg.UseContext("missing"); err == nil {
		t.Error("UseContext of unknown context should fail")
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadFrom(cfg.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentContext != "dev" {
		t.Errorf("CurrentContext = %q", reloaded.CurrentContext)
	}

	if err := reloaded.DeleteContext("dev"); err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentContext != "" {
		t.Errorf("CurrentContext after delete = %q", reloaded.CurrentContext)
	}
	if _, err := os.Stat(reloaded.ContextDir("dev")); !os.IsNotExist(err) {
		t.Error("context dir not removed")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestServiceRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev")
	in := map[string]any{"model": map[string]any{"backend": "remote"}}
	if err := SaveService(dir, Service, &in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadService[map[string]any](dir, Service)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := GetValue(*out, "model.backend"); !ok || v != "remote" {
		t.Errorf("model.backend = %v, %v", v, ok)
	}
	services, _ := ListServices(dir)
	if !slices.Equal(services, []string{Service}) {
		t.Errorf("ListServices() = %v", services)
	}
	if fi, err := os.Stat(filepath.Join(dir, Service+".yaml")); err != nil || fi.Mode().Perm() != 0600 {
		t.Errorf("service file mode: %v %v", fi, err)
	}
	if _, err := LoadService[map[string]any](dir, "other"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("missing service: %v", err)
	}
}
