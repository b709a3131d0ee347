package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/accentid/cmd/accentid/internal/config"
	"github.com/haivivi/accentid/pkg/accent"
	"github.com/haivivi/accentid/pkg/cli"
	"github.com/haivivi/accentid/pkg/hub"
	"github.com/haivivi/accentid/pkg/kv"
)

var modelFlags struct {
	revision     string
	weights      string
	metadataOnly bool
	listOutput   string
	infoOutput   string
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the cached model",
	Long: `Manage cached model checkpoints.

Artifacts are cached in the store named by cache.store (a local directory
by default, or an S3 bucket), and each revision's manifest in cache.kv.
Once pulled, a model loads without network access (model.offline: true).

Examples:
  accentid model pull
  accentid model pull org/other-model --revision v2
  accentid model list
  accentid model info
  accentid model rm org/other-model`,
}

var modelPullCmd = &cobra.Command{
	Use:   "pull [model-id]",
	Short: "Download a model into the cache",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(s *config.Settings, h *hub.Client) error {
			id, rev := modelRef(s, args)
			start := time.Now()
			var m *hub.Manifest
			remote := accent.Backend(s.Model.Backend) == accent.BackendRemote && modelFlags.weights == ""
			if modelFlags.metadataOnly || remote {
				if _, err := h.Metadata(cmd.Context(), id, rev); err != nil {
					return err
				}
				mm, err := h.Manifest(cmd.Context(), id, rev)
				if err != nil {
					return err
				}
				m = mm
				if m == nil {
					m = &hub.Manifest{ID: id, Revision: rev}
				}
			} else {
				weights := modelFlags.weights
				if weights == "" {
					weights = s.Model.Weights
				}
				resolved, err := h.Resolve(cmd.Context(), id, rev, weights)
				if err != nil {
					return err
				}
				m = resolved.Manifest
			}
			cli.PrintSuccess("Pulled %s@%s: %d files, %s in %s", id, rev, len(m.Files), cli.FormatBytes(m.Size()), cli.FormatDuration(time.Since(start)))
			return nil
		})
	},
}

var modelListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cached models",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(s *config.Settings, h *hub.Client) error {
			models, err := h.List(cmd.Context())
			if err != nil {
				return err
			}
			if modelFlags.listOutput != "" {
				format, err := cli.ParseOutputFormat(modelFlags.listOutput)
				if err != nil {
					return err
				}
				return cli.Output(models, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached models. Fetch one with: accentid model pull")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tREVISION\tFILES\tSIZE\tFETCHED")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", m.ID, m.Revision, len(m.Files), cli.FormatBytes(m.Size()), m.FetchedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

// ModelInfo is the output of model info.
type ModelInfo struct {
	Metadata *hub.Metadata `json:"metadata" yaml:"metadata"`
	Manifest *hub.Manifest `json:"manifest,omitempty" yaml:"manifest,omitempty"`
}

var modelInfoCmd = &cobra.Command{
	Use:   "info [model-id]",
	Short: "Show a model's labels, sample rate and cached files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(modelFlags.infoOutput)
		if err != nil {
			return err
		}
		return withHub(cmd, func(s *config.Settings, h *hub.Client) error {
			id, rev := modelRef(s, args)
			md, err := h.Metadata(cmd.Context(), id, rev)
			if err != nil {
				return err
			}
			m, err := h.Manifest(cmd.Context(), id, rev)
			if err != nil {
				return err
			}
			return cli.Output(ModelInfo{Metadata: md, Manifest: m}, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
		})
	},
}

var modelRmCmd = &cobra.Command{
	Use:     "rm <model-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a model from the cache",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(s *config.Settings, h *hub.Client) error {
			id, rev := modelRef(s, args)
			m, err := h.Manifest(cmd.Context(), id, rev)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("model %s@%s is not cached", id, rev)
			}
			if err := h.Remove(cmd.Context(), id, rev); err != nil {
				return err
			}
			cli.PrintSuccess("Removed %s@%s (%s)", id, rev, cli.FormatBytes(m.Size()))
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{modelPullCmd, modelInfoCmd, modelRmCmd} {
		c.Flags().StringVar(&modelFlags.revision, "revision", "", "model revision (default from settings)")
	}
	modelPullCmd.Flags().StringVar(&modelFlags.weights, "weights", "", "ONNX file within the repository")
	modelPullCmd.Flags().BoolVar(&modelFlags.metadataOnly, "metadata-only", false, "fetch labels and preprocessing only (implied by model.backend: remote)")
	modelListCmd.Flags().StringVarP(&modelFlags.listOutput, "output", "o", "", "output format: yaml, json (default: table)")
	modelInfoCmd.Flags().StringVarP(&modelFlags.infoOutput, "output", "o", "yaml", "output format: yaml, json")

	modelCmd.AddCommand(modelPullCmd)
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelRmCmd)
	rootCmd.AddCommand(modelCmd)
}

// modelRef returns the model id from args or settings, and the revision
// from --revision or settings.
func modelRef(s *config.Settings, args []string) (string, string) {
	id := s.Model.ID
	if len(args) > 0 {
		id = args[0]
	}
	rev := s.Model.Revision
	if modelFlags.revision != "" {
		rev = modelFlags.revision
	}
	if rev == "" {
		rev = hub.DefaultRevision
	}
	return id, rev
}

// withHub opens the model cache for the duration of fn.
func withHub(cmd *cobra.Command, fn func(*config.Settings, *hub.Client) error) error {
	s, err := LoadSettings()
	if err != nil {
		return err
	}
	logger, err := stderrLogger(s)
	if err != nil {
		return err
	}
	h, manifests, err := openHub(s, logger)
	if err != nil {
		return err
	}
	defer func(store kv.Store) {
		if err := store.Close(); err != nil {
			logger.Warn("close manifest store", "error", err)
		}
	}(manifests)
	return fn(s, h)
}
