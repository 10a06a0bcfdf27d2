package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrUsage marks a command line that names no work to do.
var ErrUsage = errors.New("usage")

// newDetector is replaced in tests so commands run without Python.
var newDetector = func(cfg detector.Config) (detector.Detector, error) {
	return detector.NewMediaPipeDetector(cfg)
}

// options is the state shared by the command tree.
type options struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config

	input  string
	output string
	batch  bool
}

// load reads the configuration once and configures logging from it.
func (o *options) load() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}

	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	o.cfg = cfg
	return cfg, nil
}

// NewRootCmd builds the posetrace command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "posetrace",
		Short: "posetrace - annotate videos with body pose skeletons and joint angles",
		Long: `posetrace reads a video, detects the body pose on every frame and writes
an annotated copy with the skeleton, joint angles and a progress panel drawn
on top.

Frames where detection or drawing fails are written unannotated, so the
output always has the same length as the input.`,
		Example: `  # Annotate one video
  posetrace -i dance.mp4 -o dance_pose.mp4

  # Same, writing output/dance_pose.mp4
  posetrace -i dance.mp4

  # Annotate every video in input/ into output/
  posetrace --batch

  # Faster model, live preview on :8080
  posetrace -i dance.mp4 -o out.mp4 --complexity 0 --preview :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, opts)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.config/posetrace/config.yaml)")
	persistent.String("log-level", "", "log level (debug, info, warn, error)")
	persistent.Bool("log-pretty", false, "human-readable log output")
	persistent.String("history", "", "run history database (default is $HOME/.posetrace/history.db)")

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "input video file")
	flags.StringVarP(&opts.output, "output", "o", "", "output video file (default is <output-dir>/<name>_pose<ext>)")
	flags.BoolVar(&opts.batch, "batch", false, "process every video in the input directory")
	flags.String("input-dir", "", "batch input directory (default is input)")
	flags.String("output-dir", "", "batch output directory (default is output)")
	flags.Int("complexity", 2, "model complexity (0, 1 or 2)")
	flags.Float64("confidence", 0.5, "minimum detection and tracking confidence")
	flags.Float64("fps", 0, "output frame rate (0 keeps the source rate)")
	flags.String("codec", "", "output fourcc (default is mp4v)")
	flags.String("preview", "", "serve a live preview on this address, e.g. :8080")

	bind(opts.v, persistent, map[string]string{
		"log_level":     "log-level",
		"log_pretty":    "log-pretty",
		"paths.history": "history",
	})
	bind(opts.v, flags, map[string]string{
		"paths.input_dir":                   "input-dir",
		"paths.output_dir":                  "output-dir",
		"detector.model_complexity":         "complexity",
		"detector.min_detection_confidence": "confidence",
		"detector.min_tracking_confidence":  "confidence",
		"video.output_fps":                  "fps",
		"video.codec":                       "codec",
		"preview.addr":                      "preview",
	})

	cmd.AddCommand(
		newInfoCmd(),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

// bind maps config keys to flags. Unchanged flags fall through to the
// config file, environment and defaults.
func bind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Run executes the command tree with args and returns the process exit
// code. Errors are printed to stderr. A nil args means no arguments, not
// os.Args.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, ErrUsage) {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
		return 1
	}
	return 0
}

// Execute runs the root command against os.Args.
func Execute(ctx context.Context) int {
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
