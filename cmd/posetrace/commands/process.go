package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/logger"
	"github.com/ayusman/posetrace/internal/pipeline"
	"github.com/ayusman/posetrace/internal/render"
	"github.com/ayusman/posetrace/internal/server"
	"github.com/ayusman/posetrace/internal/store"
	"github.com/ayusman/posetrace/internal/video"
	"github.com/spf13/cobra"
)

func runProcess(cmd *cobra.Command, opts *options) error {
	if !opts.batch && opts.input == "" {
		return fmt.Errorf("%w: either --input or --batch is required", ErrUsage)
	}

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")

	output := opts.output
	if !opts.batch && output == "" {
		output = pipeline.OutputPath(opts.input, cfg.Paths.OutputDir)
		if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	style, err := render.StyleFromConfig(cfg.Visualization)
	if err != nil {
		return fmt.Errorf("visualization: %w", err)
	}

	st, err := openHistory(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("run history disabled")
	}
	if st != nil {
		defer st.Close()
	}

	det, err := newDetector(detector.ConfigFrom(cfg.Detector))
	if err != nil {
		return fmt.Errorf("pose detector: %w", err)
	}
	defer det.Close()

	proc := &pipeline.Processor{
		Detector: det,
		Renderer: render.New(style),
		Opener:   video.FileOpener{},
		Config:   pipeline.ConfigFrom(cfg.Video),
	}
	if st != nil {
		proc.Recorder = st.Runs()
	}

	ctx := cmd.Context()
	if cfg.Preview.Addr != "" {
		hub := server.NewHub(server.DefaultPreviewFPS)
		proc.Tap = hub

		previewCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv := server.New(server.Config{Store: st, Hub: hub})
			if err := srv.ListenAndServe(previewCtx, cfg.Preview.Addr); err != nil {
				log.Error().Err(err).Str("addr", cfg.Preview.Addr).Msg("preview server failed")
			}
		}()
		defer func() {
			stop()
			<-done
		}()
	}

	out := cmd.OutOrStdout()
	if opts.batch {
		return runBatch(ctx, out, proc, cfg)
	}
	return runSingle(ctx, out, proc, opts.input, output)
}

// openHistory opens the run history store, or returns nil when history is
// disabled.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if cfg.Paths.History == "" {
		return nil, nil
	}
	return store.New(cfg.Paths.History)
}

func runSingle(ctx context.Context, out io.Writer, proc *pipeline.Processor, input, output string) error {
	report, err := proc.ProcessVideo(ctx, input, output)
	if report != nil && report.Interrupted {
		fmt.Fprintf(out, "Interrupted after %d frames; partial output saved to %s\n", report.Total, output)
		return nil
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

func runBatch(ctx context.Context, out io.Writer, proc *pipeline.Processor, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Paths.InputDir, 0o755); err != nil {
		return fmt.Errorf("create input directory: %w", err)
	}

	batch, err := proc.ProcessBatch(ctx, cfg.Paths.InputDir, cfg.Paths.OutputDir)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if batch.Total == 0 {
		fmt.Fprintf(out, "No videos found in %s\n", cfg.Paths.InputDir)
		return nil
	}

	for _, report := range batch.Reports {
		printReport(out, report)
	}
	fmt.Fprintf(out, "Batch: %d/%d videos processed successfully\n", batch.Succeeded, batch.Total)
	if batch.Interrupted {
		fmt.Fprintln(out, "Batch interrupted")
	}
	return nil
}

func printReport(out io.Writer, r *pipeline.Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(out, "%s -> %s: %d frames, %d annotated, %d failed (%s)\n",
		r.Input, r.Output, r.Total, r.Success, r.Failed, r.Elapsed.Round(time.Millisecond))
}
