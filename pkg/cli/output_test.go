package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Verify valid JSON
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"name":  "test",
		"value": 123,
	}

	err := Output(data, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "name: test") {
		t.Errorf("Output should contain 'name: test', got: %s", output)
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}

	// Empty format should default to YAML
	err := Output(data, OutputOptions{
		Format: "",
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "key: value") {
		t.Errorf("Default format should be YAML, got: %s", output)
	}
}

func TestOutput_Raw(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"bytes", []byte("raw binary data"), "raw binary data"},
		{"string", "American", "American\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(tt.data, OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
				t.Fatalf("Output error: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestOutput_Raw_Other(t *testing.T) {
	var buf bytes.Buffer

	// Non-string/bytes should fall back to YAML
	data := map[string]int{"count": 42}

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("Output should contain YAML, got: %s", buf.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer

	err := Output("data", OutputOptions{
		Format: "invalid",
		Writer: &buf,
	})
	if err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "output.json")

	data := map[string]string{"key": "value"}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		File:   filePath,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Read and verify file
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestOutput_JSONIndent(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Indent: "    ", // 4 spaces
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Should contain indentation
	if !strings.Contains(buf.String(), "    ") {
		t.Errorf("Output should be indented, got: %s", buf.String())
	}
}

func TestOutput_Query(t *testing.T) {
	q, err := ParseQuery(".probabilities[0].label")
	if err != nil {
		t.Fatal(err)
	}
	data := map[string]any{
		"label": "us",
		"probabilities": []map[string]any{
			{"label": "us", "probability": 0.8},
			{"label": "england", "probability": 0.2},
		},
	}

	var buf bytes.Buffer
	if err := Output(data, OutputOptions{Format: FormatRaw, Query: q, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if buf.String() != "us\n" {
		t.Errorf("Output = %q, want %q", buf.String(), "us\n")
	}
}

type fakeCarder struct{}

func (fakeCarder) Card() Card {
	return Card{
		Title: "Accent",
		Rows:  []Row{{Key: "Label", Value: "American"}},
		Bars:  []Bar{{Label: "American", Fraction: 0.75}},
	}
}

func TestOutput_Pretty(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(fakeCarder{}, OutputOptions{Format: FormatPretty, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	for _, want := range []string{"Accent", "American", "75.0%"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("pretty output missing %q:\n%s", want, buf.String())
		}
	}

	// Values without a card fall back to YAML.
	buf.Reset()
	if err := Output(map[string]int{"count": 1}, OutputOptions{Format: FormatPretty, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "count: 1") {
		t.Errorf("Output = %q", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"yaml", "json", "raw", "pretty"} {
		if f, err := ParseOutputFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", s, f, err)
		}
	}
	if f, err := ParseOutputFormat(""); err != nil || f != FormatYAML {
		t.Errorf("ParseOutputFormat(\"\") = %q, %v", f, err)
	}
	if _, err := ParseOutputFormat("table"); err == nil {
		t.Error("ParseOutputFormat(table) should fail")
	}
}
