package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/media"
)

// Kind classifies a failed request.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindInvalidInput      Kind = "invalid_input"
	KindTooLarge          Kind = "too_large"
	KindDownload          Kind = "download"
	KindExtraction        Kind = "extraction"
	KindInference         Kind = "inference"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Nil yields "". A deadline anywhere in the chain
// wins over the stage sentinel wrapping it, and an oversized download is
// too_large rather than download.
func KindOf(err error) Kind {
	var pe *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, media.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, media.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, media.ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, media.ErrDownload):
		return KindDownload
	case errors.Is(err, extract.ErrExtraction):
		return KindExtraction
	case errors.Is(err, accent.ErrInference):
		return KindInference
	}
	return KindInternal
}

// Title is a short heading for the failure.
func (k Kind) Title() string {
	switch k {
	case KindUnsupportedFormat:
		return "Unsupported format"
	case KindInvalidInput:
		return "Nothing to analyze"
	case KindTooLarge:
		return "File too large"
	case KindDownload:
		return "Download failed"
	case KindExtraction:
		return "Audio extraction failed"
	case KindInference:
		return "Accent detection failed"
	case KindTimeout:
		return "Timed out"
	}
	return "Internal error"
}

// Message explains the failure to the user.
func (k Kind) Message() string {
	switch k {
	case KindUnsupportedFormat:
		return "This file type is not supported. Upload an audio or video file in one of the accepted formats."
	case KindInvalidInput:
		return "Please upload a file or paste a video URL to analyze."
	case KindTooLarge:
		return "The file is larger than this server accepts."
	case KindDownload:
		return "The video could not be downloaded from the URL."
	case KindExtraction:
		return "No usable audio track could be extracted from the input."
	case KindInference:
		return "The audio could not be classified. It may be silent, too short or not speech."
	case KindTimeout:
		return "Processing took too long and was stopped."
	}
	return "Something went wrong on our side. Please try again."
}

// Tips are extra hints shown for URL failures.
func (k Kind) Tips() []string {
	switch k {
	case KindDownload, KindUnsupportedFormat, KindTimeout:
		return []string{
			"Ensure the URL is a direct link to a public video (e.g., MP4, MOV, MKV).",
			"The video should be accessible and not private or restricted.",
			"Try uploading a local file if the URL does not work.",
			"Large or long videos may take longer to process or may fail.",
			"Only English speech is supported for accent detection.",
		}
	}
	return nil
}

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindDownload:
		return http.StatusBadGateway
	case KindExtraction, KindInference:
		return http.StatusUnprocessableEntity
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Error is a classified request failure.
type Error struct {
	RequestID string
	Kind      Kind
	Err       error
}

func (e *Error) Error() string {
	return "pipeline: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
