// Package cli provides output helpers for the accentid command line.
//
// This package includes:
//   - Output formatting (YAML, JSON, raw, pretty cards)
//   - jq filtering of structured output
//   - Request file loading (YAML/JSON)
//
// Example usage:
//
//	q, err := cli.ParseQuery(".probabilities[0].label")
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  q,
//	})
package cli
