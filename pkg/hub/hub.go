package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haivivi/accentid/pkg/kv"
	"github.com/haivivi/accentid/pkg/storage"
)

const (
	// DefaultEndpoint is the public Hugging Face hub.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the branch fetched when none is given.
	DefaultRevision = "main"

	// DefaultTimeout bounds a single artifact download. Weights of
	// wav2vec2-sized models are a few hundred megabytes.
	DefaultTimeout = 30 * time.Minute
)

var (
	// ErrNotFound is returned when the hub has no such file.
	ErrNotFound = errors.New("hub: file not found")

	// ErrOffline is returned when a file is not cached and the client
	// is not allowed to use the network.
	ErrOffline = errors.New("hub: file not cached and client is offline")
)

// Error is a non-2xx response from the hub.
type Error struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hub: GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("hub: GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Message)
}

// Client downloads and caches model artifacts.
type Client struct {
	endpoint  string
	token     string
	offline   bool
	http      *http.Client
	files     storage.FileStore
	manifests kv.Store
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint sets the hub base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithOffline forbids network access; only cached artifacts are served.
func WithOffline(offline bool) Option {
	return func(c *Client) {
		c.offline = offline
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient returns a Client caching artifacts in files and manifests in
// manifests.
func NewClient(files storage.FileStore, manifests kv.Store, opts ...Option) *Client {
	c := &Client{
		endpoint:  DefaultEndpoint,
		files:     files,
		manifests: manifests,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// Endpoint returns the configured hub base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Files returns the artifact store.
func (c *Client) Files() storage.FileStore { return c.files }

// Fetch makes sure every named file of model id at revision is cached and
// returns the updated manifest. Files already listed in the manifest and
// present in the store are not downloaded again. A file missing on the hub
// yields an error wrapping ErrNotFound; files fetched before the failure
// stay recorded.
func (c *Client) Fetch(ctx context.Context, id, revision string, files ...string) (*Manifest, error) {
	if id == "" {
		return nil, errors.New("hub: model id is required")
	}
	if revision == "" {
		revision = DefaultRevision
	}
	m, err := c.Manifest(ctx, id, revision)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &Manifest{ID: id, Revision: revision}
	}

	var fetchErr error
	changed := false
	for _, name := range files {
		if f, ok := m.File(name); ok {
			exists, err := c.files.Exists(ctx, artifactPath(id, revision, f.Name))
			if err != nil {
				return nil, fmt.Errorf("hub: stat %s: %w", name, err)
			}
			if exists {
				continue
			}
		}
		if c.offline {
			fetchErr = fmt.Errorf("hub: %s/%s: %w", id, name, ErrOffline)
			break
		}
		f, err := c.download(ctx, id, revision, name)
		if err != nil {
			fetchErr = err
			break
		}
		m.put(f)
		changed = true
	}
	if changed {
		m.FetchedAt = c.now().UTC()
		if err := c.saveManifest(ctx, m); err != nil {
			return nil, err
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return m, nil
}

// Open opens a cached artifact.
func (c *Client) Open(ctx context.Context, id, revision, name string) (io.ReadCloser, error) {
	return c.files.Read(ctx, artifactPath(id, revision, name))
}

// ReadFile reads a cached artifact fully.
func (c *Client) ReadFile(ctx context.Context, id, revision, name string) ([]byte, error) {
	return storage.ReadAll(ctx, c.files, artifactPath(id, revision, name))
}

func (c *Client) download(ctx context.Context, id, revision, name string) (ManifestFile, error) {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", c.endpoint, id, url.PathEscape(revision), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("hub: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := c.now()
	c.logger.Info("hub: downloading", "model", id, "revision", revision, "file", name)
	resp, err := c.http.Do(req)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("hub: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ManifestFile{}, fmt.Errorf("hub: %s/%s@%s: %w", id, name, revision, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ManifestFile{}, &Error{StatusCode: resp.StatusCode, URL: u, Message: strings.TrimSpace(string(body))}
	}

	obj, err := storage.Put(ctx, c.files, artifactPath(id, revision, name), resp.Body)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("hub: store %s: %w", name, err)
	}
	c.logger.Info("hub: downloaded", "model", id, "file", name,
		"bytes", obj.Size, "took", c.now().Sub(start).Round(time.Millisecond))
	return ManifestFile{
		Name:   name,
		Size:   obj.Size,
		SHA256: obj.SHA256,
		ETag:   strings.Trim(resp.Header.Get("ETag"), `"`),
	}, nil
}

func artifactPath(id, revision, name string) string {
	return id + "/" + revision + "/" + name
}
