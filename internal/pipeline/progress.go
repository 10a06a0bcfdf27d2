package pipeline

import (
	"os"
	"path/filepath"

	"github.com/ayusman/posetrace/internal/logger"
	"github.com/ayusman/posetrace/internal/render"
	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const barTemplate = `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}} {{rtime . "%s remain" "%s total" "???"}}`

// unknownLengthEvery is the log interval, in frames, for streams that do
// not report a frame count.
const unknownLengthEvery = 100

// meter reports frame progress. With a known length and a writer it drives
// a progress bar; otherwise it logs every 10% (or every unknownLengthEvery
// frames when the length is unknown).
type meter struct {
	bar        *pb.ProgressBar
	log        *zerolog.Logger
	total      int
	nextReport float64
}

// newMeter returns nil when progress reporting is off.
func (p *Processor) newMeter(input string, total int) *meter {
	if !p.Config.ShowProgress {
		return nil
	}

	m := &meter{
		log:        logger.WithComponent("pipeline"),
		total:      total,
		nextReport: 10,
	}
	if total <= 0 {
		return m
	}

	w := p.Config.ProgressWriter
	if w == nil && isatty.IsTerminal(os.Stderr.Fd()) {
		w = os.Stderr
	}
	if w != nil {
		m.bar = pb.ProgressBarTemplate(barTemplate).New(total)
		m.bar.SetWriter(w)
		m.bar.Set("prefix", filepath.Base(input))
		m.bar.Start()
	}
	return m
}

// frame records that frame n (1-based) has been written.
func (m *meter) frame(n int) {
	if m == nil {
		return
	}
	if m.bar != nil {
		m.bar.Increment()
		return
	}

	if m.total <= 0 {
		if n%unknownLengthEvery == 0 {
			m.log.Info().Int("frame", n).Msg("progress")
		}
		return
	}

	if pct := render.ProgressPercent(n, m.total); pct >= m.nextReport {
		m.log.Info().
			Int("frame", n).
			Int("total", m.total).
			Float64("percent", pct).
			Msg("progress")
		for m.nextReport <= pct {
			m.nextReport += 10
		}
	}
}

// finish stops the bar, leaving its last state on screen.
func (m *meter) finish() {
	if m != nil && m.bar != nil {
		m.bar.Finish()
	}
}

// count is the number of frames the bar has seen.
func (m *meter) count() int64 {
	if m == nil || m.bar == nil {
		return 0
	}
	return m.bar.Current()
}
