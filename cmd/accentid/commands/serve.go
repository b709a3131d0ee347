package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/accentid/cmd/accentid/internal/build"
	"github.com/haivivi/accentid/pkg/web"
)

var serveFlags struct {
	addr     string
	model    string
	revision string
	backend  string
	offline  bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the accent detection web page and API",
	Long: `Serve the accent detection web page and JSON API.

The model is loaded once at startup; a model that cannot be loaded is a
fatal error. Requests are processed one at a time.

The default backend is remote: audio is posted to the Hugging Face
inference API for model.id, and only the label set is fetched locally.
To run inference in-process, export the checkpoint to ONNX (model.onnx
taking a [1, N] waveform or [1, T, n_mels] filterbank input), publish it
next to its label_encoder.txt or config.json, point model.id (and
model.weights if the file has another name) at that repository, build
with -tags onnxruntime and set model.backend: onnx.

Routes:
  GET  /             the page
  POST /api/analyze  multipart "file" or "url"
  GET  /api/events   WebSocket progress stream
  GET  /api/health   model and transcoder information

Examples:
  accentid serve
  accentid serve --addr 127.0.0.1:9000 --backend remote`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "listen address (default from settings, :8501)")
	f.StringVar(&serveFlags.model, "model", "", "model repository id")
	f.StringVar(&serveFlags.revision, "revision", "", "model revision")
	f.StringVar(&serveFlags.backend, "backend", "", "inference backend: onnx or remote")
	f.BoolVar(&serveFlags.offline, "offline", false, "use only cached model artifacts")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := LoadSettings()
	if err != nil {
		return err
	}
	applyModelFlags(s, serveFlags.model, serveFlags.revision, serveFlags.backend, serveFlags.offline)
	if serveFlags.addr != "" {
		s.Server.Addr = serveFlags.addr
	}
	if err := s.Validate(); err != nil {
		return err
	}
	logger, err := stderrLogger(s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, s, logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer a.Close()

	srv := web.NewServer(a.runner,
		web.WithFormats(a.acquirer.Formats()),
		web.WithMaxBytes(s.Media.MaxBytes),
		web.WithInfo(a.info(ctx, build.Version)),
		web.WithLogger(logger),
	)
	return srv.ListenAndServe(ctx, s.Server.Addr)
}
