package media

import (
	"fmt"
	"mime"
	"slices"
	"strings"
)

// Kind distinguishes audio-only containers from video containers.
type Kind int

const (
	Audio Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "audio"
}

// Format is an accepted container, identified by its file extension.
type Format struct {
	Ext  string
	Kind Kind
	MIME []string
}

var known = []Format{
	{".mp4", Video, []string{"video/mp4", "application/mp4"}},
	{".mp3", Audio, []string{"audio/mpeg", "audio/mp3"}},
	{".wav", Audio, []string{"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave"}},
	{".m4a", Audio, []string{"audio/mp4", "audio/x-m4a", "audio/m4a"}},
	{".mov", Video, []string{"video/quicktime"}},
	{".mkv", Video, []string{"video/x-matroska", "audio/x-matroska"}},
	{".webm", Video, []string{"video/webm", "audio/webm"}},
	{".ogg", Audio, []string{"audio/ogg", "video/ogg", "application/ogg"}},
	{".flac", Audio, []string{"audio/flac", "audio/x-flac"}},
	{".aac", Audio, []string{"audio/aac", "audio/x-aac"}},
	{".opus", Audio, []string{"audio/opus"}},
}

// DefaultExtensions is the upload whitelist used when none is configured.
var DefaultExtensions = []string{".mp4", ".mp3", ".wav", ".m4a", ".mov", ".mkv"}

// KnownExtensions lists every extension NewFormats accepts.
func KnownExtensions() []string {
	out := make([]string, len(known))
	for i, f := range known {
		out[i] = f.Ext
	}
	return out
}

// Formats is an immutable set of accepted formats.
type Formats struct {
	list []Format
}

// DefaultFormats returns the formats named by DefaultExtensions.
func DefaultFormats() *Formats {
	f, _ := NewFormats(DefaultExtensions...)
	return f
}

// NewFormats returns the set of known formats with the given extensions.
// Extensions are case-insensitive and the leading dot is optional.
func NewFormats(exts ...string) (*Formats, error) {
	if len(exts) == 0 {
		return nil, fmt.Errorf("media: no formats given")
	}
	f := &Formats{}
	for _, e := range exts {
		ext := normalizeExt(e)
		i := slices.IndexFunc(known, func(k Format) bool { return k.Ext == ext })
		if i < 0 {
			return nil, fmt.Errorf("media: unknown format %q (known: %s)", e, strings.Join(KnownExtensions(), " "))
		}
		if _, dup := f.Lookup(ext); !dup {
			f.list = append(f.list, known[i])
		}
	}
	return f, nil
}

// Lookup finds the format for a file extension.
func (f *Formats) Lookup(ext string) (Format, bool) {
	ext = normalizeExt(ext)
	for _, k := range f.list {
		if k.Ext == ext {
			return k, true
		}
	}
	return Format{}, false
}

// ByContentType finds the format for an HTTP Content-Type value.
func (f *Formats) ByContentType(contentType string) (Format, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Format{}, false
	}
	for _, k := range f.list {
		if slices.Contains(k.MIME, mt) {
			return k, true
		}
	}
	return Format{}, false
}

// Extensions returns the accepted extensions in configuration order.
func (f *Formats) Extensions() []string {
	out := make([]string, len(f.list))
	for i, k := range f.list {
		out[i] = k.Ext
	}
	return out
}

// Accept renders the set for an HTML file input's accept attribute.
func (f *Formats) Accept() string {
	return strings.Join(f.Extensions(), ",")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
