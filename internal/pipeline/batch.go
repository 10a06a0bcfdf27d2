package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ayusman/posetrace/internal/logger"
)

// OutputSuffix is appended to the input base name in batch mode.
const OutputSuffix = "_pose"

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"}

// VideoExtensions returns the extensions batch mode picks up, lower case.
func VideoExtensions() []string {
	return slices.Clone(videoExtensions)
}

// IsVideoFile reports whether path has a supported extension, ignoring case.
func IsVideoFile(path string) bool {
	return slices.Contains(videoExtensions, strings.ToLower(filepath.Ext(path)))
}

// DiscoverVideos lists the supported video files directly inside dir,
// sorted by name. Subdirectories are not searched.
func DiscoverVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(videos)
	return videos, nil
}

// OutputPath maps dir/name.ext to outDir/name_pose.ext, keeping the
// extension's case.
func OutputPath(input, outDir string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(outDir, name+OutputSuffix+ext)
}

// BatchReport summarizes a ProcessBatch call.
type BatchReport struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Reports   []*Report `json:"reports"`
	// Interrupted is set when cancellation stopped the batch early.
	Interrupted bool `json:"interrupted"`
}

// ProcessBatch annotates every video in inDir into outDir, one at a time.
// A failed video is counted and the batch continues; cancellation stops it
// after the current video is finalized.
func (p *Processor) ProcessBatch(ctx context.Context, inDir, outDir string) (*BatchReport, error) {
	log := logger.WithComponent("batch")

	videos, err := DiscoverVideos(inDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	batch := &BatchReport{Total: len(videos)}
	if len(videos) == 0 {
		log.Warn().Str("dir", inDir).Strs("extensions", videoExtensions).Msg("no videos found")
		return batch, nil
	}

	log.Info().Int("videos", len(videos)).Str("input_dir", inDir).Str("output_dir", outDir).Msg("batch started")

	for i, input := range videos {
		if ctx.Err() != nil {
			batch.Interrupted = true
			break
		}

		output := OutputPath(input, outDir)
		log.Info().Int("index", i+1).Int("of", len(videos)).Str("input", input).Msg("processing")

		report, err := p.ProcessVideo(ctx, input, output)
		batch.Reports = append(batch.Reports, report)

		switch {
		case err == nil:
			batch.Succeeded++
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			batch.Failed++
			batch.Interrupted = true
		default:
			batch.Failed++
			log.Error().Err(err).Str("input", input).Msg("video failed")
		}

		if batch.Interrupted {
			break
		}
	}

	log.Info().
		Int("succeeded", batch.Succeeded).
		Int("total", batch.Total).
		Bool("interrupted", batch.Interrupted).
		Msg("batch finished")

	if batch.Interrupted {
		return batch, ctx.Err()
	}
	return batch, nil
}
