package accent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haivivi/accentid/pkg/audio/wav"
	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/kv"
	"github.com/haivivi/accentid/pkg/storage"
)

func TestRemoteModel(t *testing.T) {
	var gotAuth, gotType, gotTopK string
	var gotRate int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotTopK = r.URL.Query().Get("top_k")
		a, err := wav.Decode(r.Body)
		if err != nil {
			http.Error(w, `{"error":"bad audio"}`, http.StatusBadRequest)
			return
		}
		gotRate = a.SampleRate
		w.Write([]byte(`[{"label":"US","score":0.7},{"label":"LABEL_0","score":0.2},{"label":"klingon","score":0.1}]`))
	}))
	defer srv.Close()

	m := NewRemoteModel(srv.URL, []string{"england", "us", "indian"}, 16000, WithRemoteToken("tok"))
	scores, err := m.Scores(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0.2, 0.7, 0}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores = %v, want %v", scores, want)
			break
		}
	}
	if gotAuth != "Bearer tok" || gotType != "audio/wav" || gotTopK != "3" || gotRate != 16000 {
		t.Errorf("request: auth=%q type=%q top_k=%q rate=%d", gotAuth, gotType, gotTopK, gotRate)
	}
}

func TestRemoteModelNestedAndErrors(t *testing.T) {
	responses := map[string]struct {
		status int
		body   string
	}{
		"/nested":  {200, `[[{"label":"indian","score":1}]]`},
		"/loading": {503, `{"error":"Model is currently loading","estimated_time":20}`},
		"/nomatch": {200, `[{"label":"klingon","score":1}]`},
		"/garbage": {200, `<html>`},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		resp := responses[r.URL.Path]
		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}))
	defer srv.Close()
	labels := []string{"england", "us", "indian"}
	ctx := context.Background()

	scores, err := NewRemoteModel(srv.URL+"/nested", labels, 16000).Scores(ctx, []float32{0})
	if err != nil || scores[2] != 1 {
		t.Errorf("nested: %v, %v", scores, err)
	}
	for _, p := range []string{"/loading", "/nomatch", "/garbage"} {
		if _, err := NewRemoteModel(srv.URL+p, labels, 16000).Scores(ctx, []float32{0}); err == nil {
			t.Errorf("%s: expected error", p)
		}
	}
}

func newHub(t *testing.T, files map[string]string) *hub.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return hub.NewClient(store, kv.NewMemory(nil), hub.WithEndpoint(srv.URL))
}

func TestLoadRemote(t *testing.T) {
	h := newHub(t, map[string]string{
		"/org/accent/resolve/main/label_encoder.txt": "'us' => 0\n'england' => 1\n",
	})
	infer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`[{"label":"england","score":0.9},{"label":"us","score":0.1}]`))
	}))
	defer infer.Close()

	c, err := Load(context.Background(), Options{
		Hub:       h,
		ModelID:   "org/accent",
		Backend:   BackendRemote,
		RemoteURL: infer.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Metadata().Output != hub.ScoreProbabilities {
		t.Errorf("output = %q", c.Metadata().Output)
	}
	res, err := c.Classify(context.Background(), tone(1, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	if res.DisplayLabel != "English" || res.Confidence < 0.899 || res.Confidence > 0.901 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()
	if _, err := Load(ctx, Options{}); !errors.Is(err, ErrModelLoad) {
		t.Errorf("no hub: %v", err)
	}
	h := newHub(t, map[string]string{})
	if _, err := Load(ctx, Options{Hub: h, ModelID: "org/missing", Backend: BackendRemote}); !errors.Is(err, ErrModelLoad) || !errors.Is(err, hub.ErrNotFound) {
		t.Errorf("missing model: %v", err)
	}
	if _, err := Load(ctx, Options{Hub: h, Backend: "tflite"}); !errors.Is(err, ErrModelLoad) {
		t.Errorf("unknown backend: %v", err)
	}
}
