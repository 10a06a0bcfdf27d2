package commands

import (
	"fmt"

	"github.com/ayusman/posetrace/internal/video"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show video properties",
		Long:  `Display resolution, frame rate, frame count, duration and codec of a video file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := video.Probe(video.FileOpener{}, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:       %s\n", args[0])
			fmt.Fprintf(out, "Resolution: %dx%d\n", info.Width, info.Height)
			fmt.Fprintf(out, "FPS:        %.2f\n", info.FPS)
			fmt.Fprintf(out, "Frames:     %d\n", info.FrameCount)
			fmt.Fprintf(out, "Duration:   %.2fs\n", info.Duration())
			if info.Codec != "" {
				fmt.Fprintf(out, "Codec:      %s\n", info.Codec)
			}
			return nil
		},
	}
}
