package onnx

import "errors"

// ErrUnavailable is returned by every constructor when the binary was built
// without the onnxruntime tag.
var ErrUnavailable = errors.New("onnx: built without ONNX Runtime (rebuild with -tags onnxruntime)")

// SessionOptions tunes a Session.
type SessionOptions struct {
	// IntraOpThreads limits the threads used inside one operator.
	// Zero lets ONNX Runtime decide.
	IntraOpThreads int
}
