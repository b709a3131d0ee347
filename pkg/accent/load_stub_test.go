//go:build !onnxruntime

package accent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/kv"
	"github.com/haivivi/accentid/pkg/onnx"
	"github.com/haivivi/accentid/pkg/storage"
)

func TestLoadONNXWithoutRuntime(t *testing.T) {
	var (
		mu        sync.Mutex
		requested []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/org/accent/resolve/main/config.json":
			w.Write([]byte(`{"id2label":{"0":"us","1":"england"}}`))
		case "/org/accent/resolve/main/model.onnx":
			w.Write([]byte("weights"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hub.NewClient(store, kv.NewMemory(nil), hub.WithEndpoint(srv.URL))

	_, err = Load(context.Background(), Options{Hub: h, ModelID: "org/accent", Backend: BackendONNX})
	if !errors.Is(err, ErrModelLoad) || !errors.Is(err, onnx.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requested) != 0 {
		t.Errorf("hub requests before the runtime check: %v", requested)
	}
}
