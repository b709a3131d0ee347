package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrServiceNotFound is returned by LoadService when a context has no
// file for the service.
var ErrServiceNotFound = errors.New("config: service file not found")

const serviceExt = ".yaml"

// ServicePath returns where the service's settings live in the named
// context, e.g. contexts/dev/accentid.yaml.
func (c *Config) ServicePath(context, service string) string {
	return filepath.Join(c.ContextDir(context), service+serviceExt)
}

// LoadService decodes the service file of a context directory into a T.
func LoadService[T any](contextDir, service string) (*T, error) {
	path := filepath.Join(contextDir, service+serviceExt)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := yaml.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return v, nil
}

// SaveService writes v as the service file of a context directory. The
// file may hold a hub token, so it is private to the user.
func SaveService[T any](contextDir, service string, v *T) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: encode %s: %w", service, err)
	}
	if err := os.MkdirAll(contextDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(contextDir, service+serviceExt), data, 0600)
}

// ListServices names the services with a file in a context directory,
// sorted. A missing directory has none.
func ListServices(contextDir string) ([]string, error) {
	entries, err := os.ReadDir(contextDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var services []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), serviceExt); ok && !e.IsDir() {
			services = append(services, name)
		}
	}
	slices.Sort(services)
	return services, nil
}
