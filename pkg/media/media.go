package media

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrUnsupportedFormat is returned for inputs whose container format
	// is not accepted, and for URLs with a non-HTTP scheme.
	ErrUnsupportedFormat = errors.New("media: unsupported format")

	// ErrDownload is returned when a URL cannot be fetched.
	ErrDownload = errors.New("media: download failed")

	// ErrTooLarge is returned when input exceeds the size limit.
	ErrTooLarge = errors.New("media: file too large")

	// ErrInvalidInput is returned when an Input carries both or neither of
	// an upload and a URL.
	ErrInvalidInput = errors.New("media: exactly one of file or URL is required")
)

// Source records where a File came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceURL    Source = "url"
)

// Input is what the user submitted: an upload (Name and Body) or a URL.
type Input struct {
	Name string
	Body io.Reader
	URL  string
}

// Upload returns an upload Input.
func Upload(name string, body io.Reader) Input {
	return Input{Name: name, Body: body}
}

// Link returns a URL Input.
func Link(url string) Input {
	return Input{URL: url}
}

// IsUpload reports whether the input is a file upload.
func (in Input) IsUpload() bool { return in.Body != nil }

// Validate checks that exactly one form is present.
func (in Input) Validate() error {
	hasFile := in.Body != nil
	hasURL := in.URL != ""
	if hasFile == hasURL {
		return ErrInvalidInput
	}
	return nil
}

// String describes the input for logs.
func (in Input) String() string {
	if in.IsUpload() {
		return fmt.Sprintf("upload %q", in.Name)
	}
	return fmt.Sprintf("url %q", in.URL)
}

// File is a local copy of the input, owned by one request.
type File struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Format Format `json:"-"`
	Size   int64  `json:"size"`
	Source Source `json:"source"`
}

// Ext returns the file extension, including the dot.
func (f *File) Ext() string { return f.Format.Ext }

// Remove deletes the file. Removing an already removed file is not an error.
func (f *File) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
