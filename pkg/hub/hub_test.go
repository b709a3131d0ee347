package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/haivivi/accentid/pkg/kv"
	"github.com/haivivi/accentid/pkg/storage"
)

type fakeHub struct {
	mu    sync.Mutex
	files map[string]string
	hits  map[string]int
	auth  []string
}

func newFakeHub(files map[string]string) (*fakeHub, *httptest.Server) {
	h := &fakeHub{files: files, hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.URL.Path]++
		h.auth = append(h.auth, r.Header.Get("Authorization"))
		body, ok := h.files[r.URL.Path]
		h.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte(body))
	}))
	return h, srv
}

func (h *fakeHub) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func newTestClient(t *testing.T, endpoint string, opts ...Option) *Client {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithEndpoint(endpoint)}, opts...)
	return NewClient(files, kv.NewMemory(nil), opts...)
}

const testID = "org/accent"

func TestFetchCachesArtifacts(t *testing.T) {
	h, srv := newFakeHub(map[string]string{
		"/org/accent/resolve/main/model.onnx": "weights",
	})
	defer srv.Close()
	c := newTestClient(t, srv.URL, WithToken("secret"))
	ctx := context.Background()

	m, err := c.Fetch(ctx, testID, "", "model.onnx")
	if err != nil {
		t.Fatal(err)
	}
	f, ok := m.File("model.onnx")
	if !ok {
		t.Fatal("model.onnx missing from manifest")
	}
	if f.Size != 7 || f.ETag != "abc123" || len(f.SHA256) != 64 {
		t.Errorf("manifest file = %+v", f)
	}
	if h.auth[0] != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth[0])
	}

	if _, err := c.Fetch(ctx, testID, "main", "model.onnx"); err != nil {
		t.Fatal(err)
	}
	if n := h.count("/org/accent/resolve/main/model.onnx"); n != 1 {
		t.Errorf("downloads = %d, want 1", n)
	}

	data, err := c.ReadFile(ctx, testID, "main", "model.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "weights" {
		t.Errorf("data = %q", data)
	}
}

func TestFetchRedownloadsMissingFile(t *testing.T) {
	h, srv := newFakeHub(map[string]string{
		"/org/accent/resolve/main/model.onnx": "weights",
	})
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.Fetch(ctx, testID, "main", "model.onnx"); err != nil {
		t.Fatal(err)
	}
	if err := c.Files().Delete(ctx, "org/accent/main/model.onnx"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(ctx, testID, "main", "model.onnx"); err != nil {
		t.Fatal(err)
	}
	if n := h.count("/org/accent/resolve/main/model.onnx"); n != 2 {
		t.Errorf("downloads = %d, want 2", n)
	}
}

func TestFetchNotFound(t *testing.T) {
	_, srv := newFakeHub(map[string]string{})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Fetch(context.Background(), testID, "main", "model.onnx")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gated repo", http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Fetch(context.Background(), testID, "main", "config.json")
	var he *Error
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if he.StatusCode != http.StatusUnauthorized || !strings.Contains(he.Message, "gated") {
		t.Errorf("Error = %+v", he)
	}
}

func TestFetchOffline(t *testing.T) {
	_, srv := newFakeHub(map[string]string{
		"/org/accent/resolve/main/model.onnx": "weights",
	})
	defer srv.Close()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	manifests := kv.NewMemory(nil)
	ctx := context.Background()

	online := NewClient(files, manifests, WithEndpoint(srv.URL))
	if _, err := online.Fetch(ctx, testID, "main", "model.onnx"); err != nil {
		t.Fatal(err)
	}

	offline := NewClient(files, manifests, WithEndpoint("http://127.0.0.1:1"), WithOffline(true))
	if _, err := offline.Fetch(ctx, testID, "main", "model.onnx"); err != nil {
		t.Fatalf("cached fetch offline: %v", err)
	}
	if _, err := offline.Fetch(ctx, testID, "main", "config.json"); !errors.Is(err, ErrOffline) {
		t.Fatalf("uncached fetch offline: err = %v", err)
	}
}

func TestResolveTransformers(t *testing.T) {
	_, srv := newFakeHub(map[string]string{
		"/org/accent/resolve/main/config.json":              `{"id2label":{"1":"england","0":"us","2":"indian"}}`,
		"/org/accent/resolve/main/preprocessor_config.json": `{"sampling_rate":16000,"do_normalize":true}`,
		"/org/accent/resolve/main/model.onnx":               "weights",
	})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	m, err := c.Resolve(context.Background(), testID, "main")
	if err != nil {
		t.Fatal(err)
	}
	md := m.Metadata
	if md.Layout != "transformers" || !md.Normalize || md.SampleRate != 16000 {
		t.Errorf("metadata = %+v", md)
	}
	if strings.Join(md.Labels, ",") != "us,england,indian" {
		t.Errorf("labels = %v", md.Labels)
	}
	if m.Weights != DefaultWeightFile || len(m.Manifest.Files) != 3 {
		t.Errorf("model = %+v", m.Manifest)
	}
}

func TestResolveSpeechBrainFallback(t *testing.T) {
	h, srv := newFakeHub(map[string]string{
		"/org/accent/resolve/main/label_encoder.txt": "'us' => 0\n'england' => 1\n================\n'starting_index' => 0\n",
		"/org/accent/resolve/main/hyperparams.yaml":  "# hparams\nsample_rate: 16000\nencoder: !new:speechbrain.Foo\n",
		"/org/accent/resolve/main/accent.onnx":       "weights",
	})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	m, err := c.Resolve(context.Background(), testID, "main", "accent.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if m.Metadata.Layout != "speechbrain" {
		t.Errorf("layout = %q", m.Metadata.Layout)
	}
	if strings.Join(m.Metadata.Labels, ",") != "us,england" {
		t.Errorf("labels = %v", m.Metadata.Labels)
	}
	if h.count("/org/accent/resolve/main/config.json") != 1 {
		t.Error("config.json was not tried first")
	}
}

func TestListAndRemove(t *testing.T) {
	_, srv := newFakeHub(map[string]string{
		"/org/a/resolve/main/model.onnx": "a",
		"/org/b/resolve/v1/model.onnx":   "bb",
	})
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.Fetch(ctx, "org/b", "v1", "model.onnx"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(ctx, "org/a", "main", "model.onnx"); err != nil {
		t.Fatal(err)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "org/a" || list[1].ID != "org/b" {
		t.Fatalf("List = %+v", list)
	}
	if list[1].Size() != 2 {
		t.Errorf("Size = %d", list[1].Size())
	}

	if err := c.Remove(ctx, "org/a", "main"); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(ctx, "org/a", "main"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if ok, _ := c.Files().Exists(ctx, "org/a/main/model.onnx"); ok {
		t.Error("artifact not deleted")
	}
	list, err = c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("List after remove = %+v", list)
	}
}
