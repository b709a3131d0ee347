package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a batch file into v. JSON batch files parse as
// YAML flow documents, so both formats go through one decoder.
func LoadRequest(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := decodeRequest(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadRequestFrom decodes a batch read from r, usually stdin.
func LoadRequestFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}
	return decodeRequest(data, v)
}

// decodeRequest rejects unknown keys so a misspelled "url" does not
// silently drop an input.
func decodeRequest(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty batch")
		}
		return err
	}
	return nil
}
