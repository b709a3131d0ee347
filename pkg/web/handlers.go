package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory;
	// the rest spills to temporary files.
	multipartMemory = 8 << 20

	// formOverhead allows for multipart framing on top of the file itself.
	formOverhead = 1 << 20
)

// Analysis is the data of a successful /api/analyze reply.
type Analysis struct {
	RequestID     string              `json:"request_id"`
	Label         string              `json:"label"`
	DisplayLabel  string              `json:"display_label"`
	Confidence    float64             `json:"confidence"`
	Percent       string              `json:"percent"`
	Summary       string              `json:"summary"`
	Probabilities []accent.LabelScore `json:"probabilities"`
	AudioSeconds  float64             `json:"audio_seconds"`
	SampleRate    int                 `json:"sample_rate"`
	Samples       int                 `json:"samples"`
}

func newAnalysis(id string, res *accent.Result) Analysis {
	return Analysis{
		RequestID:     id,
		Label:         res.Label,
		DisplayLabel:  res.DisplayLabel,
		Confidence:    res.Confidence,
		Percent:       fmt.Sprintf("%.1f%%", res.Percent()),
		Summary:       res.Summary(),
		Probabilities: res.Probabilities,
		AudioSeconds:  res.AudioDuration.Seconds(),
		SampleRate:    res.SampleRate,
		Samples:       res.Samples,
	}
}

// failure is a request error prepared for display.
type failure struct {
	Kind    pipeline.Kind
	Title   string
	Message string
	Detail  string
	Tips    []string
}

func newFailure(err error, in media.Input) failure {
	kind := pipeline.KindOf(err)
	f := failure{
		Kind:    kind,
		Title:   kind.Title(),
		Message: kind.Message(),
	}
	cause := err
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		cause = pe.Err
	}
	if kind != pipeline.KindInternal && kind != pipeline.KindInvalidInput {
		if in.URL != "" {
			f.Detail = "Failed to process the video URL: " + cause.Error()
		} else {
			f.Detail = "Error processing file: " + cause.Error()
		}
	}
	if in.URL != "" {
		f.Tips = kind.Tips()
	}
	return f
}

func (f failure) body() ErrorBody {
	return ErrorBody{Code: string(f.Kind), Message: f.Message, Detail: f.Detail, Tips: f.Tips}
}

// readInput extracts the submitted file or URL. The returned function
// releases the upload.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (media.Input, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+formOverhead)

	if wantsJSON(r) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return media.Input{}, noop, bodyError(err)
		}
		return media.Link(strings.TrimSpace(req.URL)), noop, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return media.Input{}, noop, bodyError(err)
	}
	in := media.Input{URL: strings.TrimSpace(r.FormValue("url"))}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, noop, nil
	case err != nil:
		return media.Input{}, noop, bodyError(err)
	case header.Filename == "" && header.Size == 0:
		// Browsers send an empty part when no file was chosen.
		file.Close()
		return in, noop, nil
	}
	if header.Size > s.maxBytes {
		file.Close()
		return media.Input{}, noop, fmt.Errorf("%w: %d bytes (limit %d)", media.ErrTooLarge, header.Size, s.maxBytes)
	}
	in.Name, in.Body = header.Filename, file
	return in, func() { _ = file.Close() }, nil
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: request body over %d bytes", media.ErrTooLarge, mbe.Limit)
	}
	return fmt.Errorf("%w: %v", media.ErrInvalidInput, err)
}

// analyze reads the input and runs it. It returns the input so failures
// can be described in terms of what was submitted.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (string, media.Input, *accent.Result, error) {
	id := uuid.NewString()
	w.Header().Set("X-Request-ID", id)

	in, release, err := s.readInput(w, r)
	defer release()
	if err != nil {
		s.logger.Info("web: bad request", "request_id", id, "error", err)
		return id, in, nil, err
	}
	res, err := s.runner.Run(r.Context(), id, in)
	return id, in, res, err
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, in, res, err := s.analyze(w, r)
	if err != nil {
		f := newFailure(err, in)
		writeError(w, f.Kind.HTTPStatus(), f.body())
		return
	}
	writeJSON(w, http.StatusOK, newAnalysis(id, res))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state, id := s.runner.State()
	writeJSON(w, http.StatusOK, struct {
		Info
		State     pipeline.State `json:"state"`
		RequestID string         `json:"request_id,omitempty"`
	}{s.info, state, id})
}

// page is the data rendered by index.html.
type page struct {
	Accept    string
	Formats   []string
	MaxMB     int64
	URL       string
	FileName  string
	Submitted bool
	Result    *accent.Result
	Error     *failure
	States    []pipeline.State
}

func (s *Server) newPage() *page {
	return &page{
		Accept:  s.formats.Accept(),
		Formats: s.formats.Extensions(),
		MaxMB:   s.maxBytes >> 20,
		States:  []pipeline.State{pipeline.StateAcquiring, pipeline.StateExtracting, pipeline.StateClassifying},
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.newPage())
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	_, in, res, err := s.analyze(w, r)
	p := s.newPage()
	p.Submitted = true
	p.URL, p.FileName = in.URL, in.Name
	status := http.StatusOK
	if err != nil {
		f := newFailure(err, in)
		p.Error = &f
		status = f.Kind.HTTPStatus()
	} else {
		p.Result = res
	}
	s.render(w, status, p)
}

func (s *Server) render(w http.ResponseWriter, status int, p *page) {
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, "index.html", p); err != nil {
		s.logger.Error("web: render page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

