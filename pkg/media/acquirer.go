package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds connecting, waiting for response headers and
	// each gap between body reads of a download.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxBytes caps uploads and downloads.
	DefaultMaxBytes int64 = 500 << 20

	// FallbackExt is assumed for downloads served as generic binary data.
	FallbackExt = ".mp4"
)

var errIdle = errors.New("no data received within timeout")

// Acquirer materialises Inputs as local files.
type Acquirer struct {
	formats  *Formats
	dir      string
	maxBytes int64
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithFormats sets the accepted formats.
func WithFormats(f *Formats) Option {
	return func(a *Acquirer) {
		a.formats = f
	}
}

// WithTempDir sets the directory for request files. Defaults to
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Acquirer) {
		a.dir = dir
	}
}

// WithMaxBytes sets the size limit for uploads and downloads.
func WithMaxBytes(n int64) Option {
	return func(a *Acquirer) {
		a.maxBytes = n
	}
}

// WithTimeout sets the download idle timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Acquirer) {
		a.timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for downloads. Its transport
// timeouts are used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Acquirer) {
		a.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Acquirer) {
		a.logger = l
	}
}

// NewAcquirer returns an Acquirer.
func NewAcquirer(opts ...Option) *Acquirer {
	a := &Acquirer{
		formats:  DefaultFormats(),
		dir:      os.TempDir(),
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		dialer := &net.Dialer{Timeout: a.timeout}
		a.client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   a.timeout,
				ResponseHeaderTimeout: a.timeout,
				IdleConnTimeout:       90 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		}
	}
	return a
}

// Formats returns the accepted formats.
func (a *Acquirer) Formats() *Formats { return a.formats }

// MaxBytes returns the size limit.
func (a *Acquirer) MaxBytes() int64 { return a.maxBytes }

// Acquire dispatches on the input form.
func (a *Acquirer) Acquire(ctx context.Context, in Input) (*File, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.IsUpload() {
		return a.Save(ctx, in.Name, in.Body)
	}
	return a.Fetch(ctx, in.URL)
}

// Save copies an uploaded file to a new request file. The extension of
// name is checked before anything is written.
func (a *Acquirer) Save(ctx context.Context, name string, body io.Reader) (*File, error) {
	format, ok := a.formats.Lookup(filepath.Ext(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, name, a.formats.Accept())
	}
	f, err := a.write(ctx, format, body)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("media: save upload %q: %w", name, err)
	}
	f.Name = filepath.Base(name)
	f.Source = SourceUpload
	a.logger.Debug("media: saved upload", "name", f.Name, "path", f.Path, "bytes", f.Size)
	return f, nil
}

// Fetch downloads rawURL to a new request file.
func (a *Acquirer) Fetch(ctx context.Context, rawURL string) (*File, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrDownload, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: URL scheme %q (only http and https)", ErrUnsupportedFormat, u.Scheme)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set("User-Agent", "accentid/1.0")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrDownload, resp.StatusCode, u.Host)
	}
	if resp.ContentLength > a.maxBytes {
		return nil, fmt.Errorf("%w: %w: %d bytes (max %d)", ErrDownload, ErrTooLarge, resp.ContentLength, a.maxBytes)
	}

	format, err := a.resolveFormat(u, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body := newIdleReader(resp.Body, a.timeout, cancel)
	defer body.stop()
	f, err := a.write(ctx, format, body)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, ErrTooLarge) {
			err = cause
		}
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	f.Name = path.Base(u.Path)
	if f.Name == "/" || f.Name == "." {
		f.Name = u.Host
	}
	f.Source = SourceURL
	a.logger.Info("media: downloaded", "host", u.Host, "bytes", f.Size,
		"format", format.Ext, "took", time.Since(start).Round(time.Millisecond))
	return f, nil
}

// resolveFormat picks a format from the URL extension, then the
// Content-Type, falling back to FallbackExt for generic binary responses.
func (a *Acquirer) resolveFormat(u *url.URL, contentType string) (Format, error) {
	if f, ok := a.formats.Lookup(path.Ext(u.Path)); ok {
		return f, nil
	}
	if f, ok := a.formats.ByContentType(contentType); ok {
		return f, nil
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "", "application/octet-stream", "binary/octet-stream":
		if f, ok := a.formats.Lookup(FallbackExt); ok {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %s served %q", ErrUnsupportedFormat, u.Host, mt)
}

func (a *Acquirer) write(ctx context.Context, format Format, r io.Reader) (*File, error) {
	p := filepath.Join(a.dir, "accentid-"+uuid.NewString()+format.Ext)
	out, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(out, io.LimitReader(&ctxReader{ctx: ctx, r: r}, a.maxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > a.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, a.maxBytes)
	}
	if err != nil {
		os.Remove(p)
		return nil, err
	}
	return &File{Path: p, Format: format, Size: n}, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// idleReader cancels the request when no bytes arrive for timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	once    sync.Once
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelCauseFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() { cancel(errIdle) })
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.once.Do(func() { ir.timer.Stop() })
}
