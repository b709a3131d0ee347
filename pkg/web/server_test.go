package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/audio/wav"
	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
)

type stubClassifier struct{}

func (stubClassifier) SampleRate() int { return 16000 }

func (stubClassifier) Classify(_ context.Context, w *extract.Waveform) (*accent.Result, error) {
	return &accent.Result{
		Label:        "us",
		DisplayLabel: "American",
		Confidence:   0.8123,
		Probabilities: []accent.LabelScore{
			{Label: "us", DisplayLabel: "American", Probability: 0.8123},
			{Label: "england", DisplayLabel: "British", Probability: 0.1877},
		},
		AudioDuration: w.Duration(),
		SampleRate:    w.SampleRate,
		Samples:       len(w.Samples),
	}, nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	acq := media.NewAcquirer(media.WithTempDir(t.TempDir()), media.WithTimeout(2*time.Second))
	runner := pipeline.NewRunner(acq, &extract.Native{}, stubClassifier{})
	s := NewServer(runner, append([]Option{WithInfo(Info{ModelID: "org/accent", Labels: 2, SampleRate: 16000})}, opts...)...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func wavFile(t *testing.T) []byte {
	t.Helper()
	s := make([]float32, 16000)
	for i := range s {
		s[i] = 0.25 * float32((i%32)-16) / 16
	}
	var buf bytes.Buffer
	if err := wav.Encode(&buf, s, 16000); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, name string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func deadURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr + "/talk.mp4"
}

func TestIndex(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"English Accent Detection from Video or Audio",
		`accept=".mp4,.mp3,.wav,.m4a,.mov,.mkv"`,
		"Please upload a file or paste a video URL to analyze.",
		"Extracting audio",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestAnalyzeUpload(t *testing.T) {
	_, ts := newTestServer(t)
	body, ct := multipartBody(t, "speech.wav", wavFile(t), nil)
	resp, err := http.Post(ts.URL+"/api/analyze", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	out := decode(t, resp)
	data, _ := json.Marshal(out.Data)
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatal(err)
	}
	if a.DisplayLabel != "American" || a.Percent != "81.2%" {
		t.Errorf("analysis = %+v", a)
	}
	if a.Summary != "Detected American accent with 81.2% confidence." {
		t.Errorf("summary = %q", a.Summary)
	}
	if len(a.Probabilities) != 2 {
		t.Errorf("probabilities = %v", a.Probabilities)
	}
	if a.SampleRate != 16000 || a.Samples != 16000 || a.AudioSeconds != 1 {
		t.Errorf("waveform = %d samples at %d Hz, %v s", a.Samples, a.SampleRate, a.AudioSeconds)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	_, ts := newTestServer(t, WithMaxBytes(4096))

	tests := []struct {
		name     string
		body     func() (io.Reader, string)
		status   int
		code     string
		wantTips bool
	}{
		{
			name: "unreachable url",
			body: func() (io.Reader, string) {
				return strings.NewReader(`{"url":"` + deadURL(t) + `"}`), "application/json"
			},
			status:   http.StatusBadGateway,
			code:     "download",
			wantTips: true,
		},
		{
			name: "unsupported extension",
			body: func() (io.Reader, string) {
				return multipartBody(t, "notes.txt", []byte("hi"), nil)
			},
			status: http.StatusUnsupportedMediaType,
			code:   "unsupported_format",
		},
		{
			name: "not media",
			body: func() (io.Reader, string) {
				return multipartBody(t, "clip.mp4", []byte("plain text"), nil)
			},
			status: http.StatusUnprocessableEntity,
			code:   "extraction",
		},
		{
			name: "nothing submitted",
			body: func() (io.Reader, string) {
				return multipartBody(t, "", nil, nil)
			},
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "both submitted",
			body: func() (io.Reader, string) {
				return multipartBody(t, "a.wav", []byte("x"), map[string]string{"url": "https://example.com/a.mp4"})
			},
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name: "too large",
			body: func() (io.Reader, string) {
				return multipartBody(t, "big.wav", make([]byte, 8192), nil)
			},
			status: http.StatusRequestEntityTooLarge,
			code:   "too_large",
		},
		{
			name: "bad json",
			body: func() (io.Reader, string) {
				return strings.NewReader(`{"url":`), "application/json"
			},
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tt.body()
			resp, err := http.Post(ts.URL+"/api/analyze", ct, body)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			out := decode(t, resp)
			if out.Status != "error" || out.Error == nil {
				t.Fatalf("response = %+v", out)
			}
			if out.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", out.Error.Code, tt.code)
			}
			if tt.wantTips != (len(out.Error.Tips) > 0) {
				t.Errorf("tips = %v", out.Error.Tips)
			}
		})
	}
}

func TestFormFallback(t *testing.T) {
	_, ts := newTestServer(t)
	body, ct := multipartBody(t, "clip.mp4", []byte("plain text"), nil)
	resp, err := http.Post(ts.URL+"/", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	page, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(page), "Error processing file:") {
		t.Error("page does not describe the failure")
	}

	form := url.Values{"url": {deadURL(t)}}
	resp, err = http.PostForm(ts.URL+"/", form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	page, _ = io.ReadAll(resp.Body)
	for _, want := range []string{"Failed to process the video URL:", "Troubleshooting tips", "Try uploading a local file if the URL does not work."} {
		if !strings.Contains(string(page), want) {
			t.Errorf("page missing %q", want)
		}
	}

	body, ct = multipartBody(t, "speech.wav", wavFile(t), nil)
	resp, err = http.Post(ts.URL+"/", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	page, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(page), "Detected American accent with 81.2% confidence.") {
		t.Error("page does not show the result")
	}
	if !strings.Contains(string(page), "Audio analyzed: 1.0 s at 16000 Hz (16000 samples)") {
		t.Error("page does not describe the analyzed audio")
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	m, ok := out.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", out.Data)
	}
	if m["model_id"] != "org/accent" || m["state"] != "idle" {
		t.Errorf("health = %v", m)
	}
	if f, ok := m["formats"].([]any); !ok || len(f) != 6 {
		t.Errorf("formats = %v", m["formats"])
	}
}

func TestEvents(t *testing.T) {
	_, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first pipeline.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.State != pipeline.StateIdle {
		t.Errorf("first state = %v", first.State)
	}

	body, ct := multipartBody(t, "speech.wav", wavFile(t), nil)
	resp, err := http.Post(ts.URL+"/api/analyze", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var seen []pipeline.State
	for {
		var ev pipeline.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen = append(seen, ev.State)
		if ev.State == pipeline.StateDone {
			if ev.Result == nil || ev.Result.Label != "us" {
				t.Errorf("done event result = %+v", ev.Result)
			}
			break
		}
	}
	if seen[0] != pipeline.StateAcquiring {
		t.Errorf("states = %v", seen)
	}
}

func TestRecoverer(t *testing.T) {
	s := NewServer(nil)
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}

	h = s.recoverer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		panic("after write")
	}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after write = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("error text appended to a started response: %q", rec.Body.String())
	}
}

func TestServeShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
