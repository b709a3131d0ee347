//go:build !onnxruntime

// Package onnx provides Go bindings for the ONNX Runtime C API.
//
// This build does not include ONNX Runtime; compile with
// -tags onnxruntime to enable it. Every constructor returns
// [ErrUnavailable].
package onnx

// Available reports whether ONNX Runtime is compiled in.
func Available() bool { return false }

// Env is the ONNX Runtime environment.
type Env struct{}

// NewEnv always fails in this build.
func NewEnv(name string) (*Env, error) { return nil, ErrUnavailable }

// NewSession always fails in this build.
func (e *Env) NewSession(modelData []byte, opts *SessionOptions) (*Session, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (e *Env) Close() error { return nil }

// Session holds a loaded ONNX model.
type Session struct{}

func (s *Session) InputNames() []string  { return nil }
func (s *Session) OutputNames() []string { return nil }

// Run always fails in this build.
func (s *Session) Run(inputNames []string, inputs []*Tensor, outputNames []string) ([]*Tensor, error) {
	return nil, ErrUnavailable
}

func (s *Session) Close() error { return nil }

// Tensor is an N-dimensional tensor.
type Tensor struct{}

// NewTensor always fails in this build.
func NewTensor(shape []int64, data []float32) (*Tensor, error) { return nil, ErrUnavailable }

func (t *Tensor) FloatData() ([]float32, error) { return nil, ErrUnavailable }
func (t *Tensor) Shape() ([]int64, error)       { return nil, ErrUnavailable }
func (t *Tensor) Close() error                  { return nil }
