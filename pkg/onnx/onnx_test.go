//go:build onnxruntime

package onnx

import "testing"

func TestNewEnv(t *testing.T) {
	if !Available() {
		t.Fatal("Available = false with the onnxruntime tag")
	}
	env, err := NewEnv("test")
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	defer env.Close()
}

func TestNewTensor(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor, err := NewTensor([]int64{1, 6}, data)
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}
	defer tensor.Close()

	shape, err := tensor.Shape()
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if len(shape) != 2 || shape[0] != 1 || shape[1] != 6 {
		t.Errorf("shape = %v, want [1 6]", shape)
	}

	out, err := tensor.FloatData()
	if err != nil {
		t.Fatalf("FloatData: %v", err)
	}
	for i, v := range out {
		if v != data[i] {
			t.Errorf("out[%d] = %v, want %v", i, v, data[i])
		}
	}
}

func TestTensorEmptyData(t *testing.T) {
	if _, err := NewTensor([]int64{1, 0}, nil); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestTensorShortData(t *testing.T) {
	if _, err := NewTensor([]int64{2, 4}, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected error for short data")
	}
}

func TestEnvDoubleClose(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	env.Close()
	env.Close()
}

func TestNewSessionRejectsGarbage(t *testing.T) {
	env, err := NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	if _, err := env.NewSession(nil, nil); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := env.NewSession([]byte("not an onnx graph"), &SessionOptions{IntraOpThreads: 1}); err == nil {
		t.Error("expected error for invalid model")
	}
}
