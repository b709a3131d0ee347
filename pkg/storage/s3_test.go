package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey"}
	errNotFound  = &apiError{code: "NotFound"}
)

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3() *mockS3 { return &mockS3{objects: map[string][]byte{}} }

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[aws.ToString(in.Key)] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(in.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3PutReadDelete(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	s := NewS3(mock, "bucket", "cache")

	if _, err := Put(ctx, s, "demo/label_encoder.txt", strings.NewReader("'us' => 0\n")); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["cache/demo/label_encoder.txt"]; !ok {
		t.Fatalf("object key not prefixed: %v", mock.objects)
	}

	got, err := ReadAll(ctx, s, "demo/label_encoder.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "'us' => 0\n" {
		t.Errorf("content = %q", got)
	}

	ok, err := s.Exists(ctx, "demo/label_encoder.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "demo/label_encoder.txt"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "demo/label_encoder.txt")
	if err != nil || ok {
		t.Fatalf("Exists after delete = %v, %v", ok, err)
	}
	if _, err := s.Read(ctx, "demo/label_encoder.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing: %v", err)
	}
}

func TestS3AbortCreatesNothing(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	s := NewS3(mock, "bucket", "")
	if _, err := Put(ctx, s, "model.onnx", failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.objects) != 0 {
		t.Fatalf("objects = %v", mock.objects)
	}
}

func TestNewS3ClientRequiresBucket(t *testing.T) {
	if _, err := NewS3Client(S3Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	if _, err := NewS3Client(S3Config{Bucket: "b", Endpoint: "http://localhost:9000", PathStyle: true}); err != nil {
		t.Fatal(err)
	}
}

func TestIsS3NotFound(t *testing.T) {
	if !isS3NotFound(errNoSuchKey) || !isS3NotFound(errNotFound) {
		t.Error("expected not-found codes to match")
	}
	if isS3NotFound(&apiError{code: "AccessDenied"}) {
		t.Error("AccessDenied treated as not found")
	}
}
