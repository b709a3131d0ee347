//go:build onnxruntime

package accent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/accentid/pkg/extract"
	"github.com/haivivi/accentid/pkg/hub"
)

// TestSampleAmerican runs the exported checkpoint in
// $ACCENTID_TEST_MODEL_DIR (model.onnx plus config.json or
// label_encoder.txt) on sample_american.wav from the same directory.
func TestSampleAmerican(t *testing.T) {
	dir := os.Getenv("ACCENTID_TEST_MODEL_DIR")
	if dir == "" {
		t.Skip("ACCENTID_TEST_MODEL_DIR not set")
	}
	sample := filepath.Join(dir, "sample_american.wav")
	if _, err := os.Stat(sample); err != nil {
		t.Skipf("no sample: %v", err)
	}

	meta, err := readLocalMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	weights, err := os.ReadFile(filepath.Join(dir, hub.DefaultWeightFile))
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewONNXModel(weights, len(meta.Labels))
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(m, *meta)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	w, err := (&extract.Native{}).Extract(context.Background(), sample, meta.SampleRate)
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Classify(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	t.Log(res.Summary())
	if res.DisplayLabel != "American" || res.Confidence <= 0.5 {
		t.Errorf("got %s at %.3f, want American above 0.5", res.DisplayLabel, res.Confidence)
	}
}

func readLocalMetadata(dir string) (*hub.Metadata, error) {
	if cfg, err := os.ReadFile(filepath.Join(dir, hub.FileConfig)); err == nil {
		pre, _ := os.ReadFile(filepath.Join(dir, hub.FilePreprocessor))
		return hub.ParseTransformers(cfg, pre)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	enc, err := os.ReadFile(filepath.Join(dir, hub.FileLabelEncoder))
	if err != nil {
		return nil, err
	}
	hp, _ := os.ReadFile(filepath.Join(dir, hub.FileHyperparams))
	return hub.ParseSpeechBrain(enc, hp)
}
