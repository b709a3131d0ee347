package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haivivi/accentid/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// Manifest records the cached artifacts of one model revision.
type Manifest struct {
	ID        string         `msgpack:"id" json:"id" yaml:"id"`
	Revision  string         `msgpack:"revision" json:"revision" yaml:"revision"`
	Files     []ManifestFile `msgpack:"files" json:"files" yaml:"files"`
	FetchedAt time.Time      `msgpack:"fetched_at" json:"fetched_at" yaml:"fetched_at"`
}

// ManifestFile is one cached artifact.
type ManifestFile struct {
	Name   string `msgpack:"name" json:"name" yaml:"name"`
	Size   int64  `msgpack:"size" json:"size" yaml:"size"`
	SHA256 string `msgpack:"sha256" json:"sha256" yaml:"sha256"`
	ETag   string `msgpack:"etag,omitempty" json:"etag,omitempty" yaml:"etag,omitempty"`
}

// File looks up a cached file by name.
func (m *Manifest) File(name string) (ManifestFile, bool) {
	for _, f := range m.Files {
		if f.Name == name {
			return f, true
		}
	}
	return ManifestFile{}, false
}

// Size returns the total size of all cached files.
func (m *Manifest) Size() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

func (m *Manifest) put(f ManifestFile) {
	for i := range m.Files {
		if m.Files[i].Name == f.Name {
			m.Files[i] = f
			return
		}
	}
	m.Files = append(m.Files, f)
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Name < m.Files[j].Name })
}

func manifestKey(id, revision string) kv.Key {
	return kv.Key{"manifest", id, revision}
}

// Manifest returns the stored manifest for id@revision, or nil if the model
// was never fetched.
func (c *Client) Manifest(ctx context.Context, id, revision string) (*Manifest, error) {
	data, err := c.manifests.Get(ctx, manifestKey(id, revision))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hub: load manifest: %w", err)
	}
	var m Manifest
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("hub: decode manifest %s@%s: %w", id, revision, err)
	}
	return &m, nil
}

func (c *Client) saveManifest(ctx context.Context, m *Manifest) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("hub: encode manifest: %w", err)
	}
	if err := c.manifests.Set(ctx, manifestKey(m.ID, m.Revision), data); err != nil {
		return fmt.Errorf("hub: save manifest: %w", err)
	}
	return nil
}

// List returns the manifests of all cached models, ordered by id and
// revision.
func (c *Client) List(ctx context.Context) ([]Manifest, error) {
	var out []Manifest
	for entry, err := range c.manifests.List(ctx, kv.Key{"manifest"}) {
		if err != nil {
			return nil, fmt.Errorf("hub: list manifests: %w", err)
		}
		var m Manifest
		if err := msgpack.Unmarshal(entry.Value, &m); err != nil {
			c.logger.Warn("hub: skipping malformed manifest", "key", entry.Key.String(), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Remove deletes every cached artifact of id@revision and its manifest.
// Removing a model that is not cached is not an error.
func (c *Client) Remove(ctx context.Context, id, revision string) error {
	m, err := c.Manifest(ctx, id, revision)
	if err != nil || m == nil {
		return err
	}
	for _, f := range m.Files {
		if err := c.files.Delete(ctx, artifactPath(id, revision, f.Name)); err != nil {
			return fmt.Errorf("hub: delete %s: %w", f.Name, err)
		}
	}
	if err := c.manifests.Delete(ctx, manifestKey(id, revision)); err != nil {
		return fmt.Errorf("hub: delete manifest: %w", err)
	}
	return nil
}
