package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/cli"
	"github.com/haivivi/accentid/pkg/jsontime"
	"github.com/haivivi/accentid/pkg/media"
	"github.com/haivivi/accentid/pkg/pipeline"
)

var classifyFlags struct {
	file     string
	output   string
	outFile  string
	query    string
	model    string
	revision string
	backend  string
	offline  bool
}

var classifyCmd = &cobra.Command{
	Use:   "classify [file|url]...",
	Short: "Classify the accent of files or URLs",
	Long: `Classify the English accent of local audio/video files or public video URLs.

Inputs run one at a time through the same pipeline as the web page.
Arguments starting with http:// or https:// are downloaded; anything else
is read as a local file. A batch file lists more inputs:

  inputs:
    - file: interview.mp4
    - url: https://example.com/talk.mp4

Examples:
  accentid classify sample.wav
  accentid classify -o pretty talk.mp4 https://example.com/clip.mov
  accentid classify -f batch.yaml -o json --query '.[] | .result.label'
  cat batch.json | accentid classify -f -`,
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVarP(&classifyFlags.file, "file", "f", "", "batch file (YAML or JSON), - for stdin")
	f.StringVarP(&classifyFlags.output, "output", "o", "yaml", "output format: yaml, json, raw, pretty")
	f.StringVar(&classifyFlags.outFile, "output-file", "", "write output to a file")
	f.StringVarP(&classifyFlags.query, "query", "q", "", "jq expression applied to the output")
	f.StringVar(&classifyFlags.model, "model", "", "model repository id")
	f.StringVar(&classifyFlags.revision, "revision", "", "model revision")
	f.StringVar(&classifyFlags.backend, "backend", "", "inference backend: onnx or remote")
	f.BoolVar(&classifyFlags.offline, "offline", false, "use only cached model artifacts")
	rootCmd.AddCommand(classifyCmd)
}

// classifyRequest is the batch file format.
type classifyRequest struct {
	Inputs []classifyInput `json:"inputs" yaml:"inputs"`
}

type classifyInput struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

func (in classifyInput) String() string {
	if in.URL != "" {
		return in.URL
	}
	return in.File
}

// Classification is the outcome for one input.
type Classification struct {
	Input     string         `json:"input" yaml:"input"`
	RequestID string         `json:"request_id" yaml:"request_id"`
	Summary   string         `json:"summary,omitempty" yaml:"summary,omitempty"`
	Result    *accent.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error     *FailureInfo   `json:"error,omitempty" yaml:"error,omitempty"`

	// Elapsed covers acquisition, extraction and classification.
	Elapsed jsontime.Duration `json:"elapsed" yaml:"elapsed"`
}

// FailureInfo describes a failed input.
type FailureInfo struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func (c Classification) String() string {
	if c.Error != nil {
		return fmt.Sprintf("%s: error: %s", c.Input, c.Error.Message)
	}
	return fmt.Sprintf("%s: %s", c.Input, c.Summary)
}

// Card renders the classification for pretty output.
func (c Classification) Card() cli.Card {
	if c.Error != nil {
		card := cli.Card{
			Title:  c.Input,
			Failed: true,
			Rows: []cli.Row{
				{Key: "Error", Value: pipeline.Kind(c.Error.Code).Title()},
				{Key: "Message", Value: c.Error.Message},
			},
		}
		if c.Error.Detail != "" {
			card.Footer = c.Error.Detail
		}
		return card
	}
	r := c.Result
	card := cli.Card{
		Title: c.Input,
		Rows: []cli.Row{
			{Key: "Accent", Value: r.DisplayLabel},
			{Key: "Confidence", Value: cli.FormatPercent(r.Confidence)},
			{Key: "Audio", Value: cli.FormatDuration(r.AudioDuration)},
			{Key: "Took", Value: cli.FormatDuration(c.Elapsed.Duration())},
		},
		Footer: c.Summary,
	}
	for i, p := range r.Probabilities {
		if i == 5 {
			break
		}
		card.Bars = append(card.Bars, cli.Bar{Label: p.DisplayLabel, Fraction: p.Probability})
	}
	return card
}

// Classifications is the output for several inputs.
type Classifications []Classification

func (cs Classifications) String() string {
	lines := make([]string, len(cs))
	for i, c := range cs {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// Cards renders every classification.
func (cs Classifications) Cards() []cli.Card {
	cards := make([]cli.Card, len(cs))
	for i, c := range cs {
		cards[i] = c.Card()
	}
	return cards
}

func (cs Classifications) failed() int {
	n := 0
	for _, c := range cs {
		if c.Error != nil {
			n++
		}
	}
	return n
}

func collectInputs(args []string) ([]classifyInput, error) {
	var inputs []classifyInput
	for _, a := range args {
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			inputs = append(inputs, classifyInput{URL: a})
		} else {
			inputs = append(inputs, classifyInput{File: a})
		}
	}
	if classifyFlags.file != "" {
		var req classifyRequest
		var err error
		if classifyFlags.file == "-" {
			err = cli.LoadRequestFrom(os.Stdin, &req)
		} else {
			err = cli.LoadRequest(classifyFlags.file, &req)
		}
		if err != nil {
			return nil, fmt.Errorf("load batch file: %w", err)
		}
		for i, in := range req.Inputs {
			if (in.File == "") == (in.URL == "") {
				return nil, fmt.Errorf("batch input %d: exactly one of file or url is required", i)
			}
		}
		inputs = append(inputs, req.Inputs...)
	}
	if len(inputs) == 0 {
		return nil, errors.New("no inputs: pass files or URLs, or use -f")
	}
	return inputs, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(classifyFlags.output)
	if err != nil {
		return err
	}
	query, err := cli.ParseQuery(classifyFlags.query)
	if err != nil {
		return err
	}
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}

	s, err := LoadSettings()
	if err != nil {
		return err
	}
	applyModelFlags(s, classifyFlags.model, classifyFlags.revision, classifyFlags.backend, classifyFlags.offline)
	if err := s.Validate(); err != nil {
		return err
	}
	if !verbose && logLevel == "" {
		s.Log.Level = "warn"
	}
	logger, err := stderrLogger(s)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, s, logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer a.Close()

	results := make(Classifications, 0, len(inputs))
	for _, in := range inputs {
		results = append(results, classifyOne(cmd, a, in))
	}

	var out any = results
	if len(results) == 1 {
		out = results[0]
	}
	if err := cli.Output(out, cli.OutputOptions{
		Format: format,
		File:   classifyFlags.outFile,
		Query:  query,
		Writer: outputWriter(cmd, classifyFlags.outFile),
	}); err != nil {
		return err
	}
	if n := results.failed(); n > 0 {
		return fmt.Errorf("%d of %d inputs failed", n, len(results))
	}
	return nil
}

func classifyOne(cmd *cobra.Command, a *app, in classifyInput) Classification {
	c := Classification{Input: in.String(), RequestID: uuid.NewString()}

	var mi media.Input
	if in.URL != "" {
		mi = media.Link(in.URL)
	} else {
		f, err := os.Open(in.File)
		if err != nil {
			c.Error = &FailureInfo{Code: string(pipeline.KindInvalidInput), Message: "The file could not be opened.", Detail: err.Error()}
			return c
		}
		defer f.Close()
		mi = media.Upload(filepath.Base(in.File), f)
	}

	start := time.Now()
	res, err := a.runner.Run(cmd.Context(), c.RequestID, mi)
	c.Elapsed = jsontime.Duration(time.Since(start).Round(time.Millisecond))
	if err != nil {
		kind := pipeline.KindOf(err)
		c.Error = &FailureInfo{Code: string(kind), Message: kind.Message(), Detail: err.Error()}
		cli.PrintVerbose(verbose, "%s: %s", c.Input, describeError(err))
		return c
	}
	c.Result = res
	c.Summary = res.Summary()
	return c
}
