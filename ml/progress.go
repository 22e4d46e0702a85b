package ml

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Progress is one periodic training report.
type Progress struct {
	Iteration int
	Total     int
	Loss      float64 // average per-token loss since the last report
	Train     ValidationReport
	Dev       ValidationReport
	Elapsed   time.Duration
	Samples   []Outcome
}

// Remaining estimates the time left from the fraction of iterations done.
func (p Progress) Remaining() time.Duration {
	if p.Iteration == 0 || p.Total == 0 {
		return 0
	}
	estimated := float64(p.Elapsed) * float64(p.Total) / float64(p.Iteration)
	return time.Duration(estimated) - p.Elapsed
}

// ProgressSink receives training reports. Implementations must not block
// and cannot fail the training loop.
type ProgressSink interface {
	Report(p Progress)
	Checkpoint(iteration int, err error)
}

// ConsoleProgress prints reports as plain lines.
type ConsoleProgress struct {
	W io.Writer
}

func (c ConsoleProgress) Report(p Progress) {
	fmt.Fprintf(c.W, "train accuracy: %.4f (skipped %d)\n", p.Train.Accuracy(), p.Train.Skipped)
	fmt.Fprintf(c.W, "dev accuracy: %.4f (skipped %d)\n", p.Dev.Accuracy(), p.Dev.Skipped)
	for _, s := range p.Samples {
		fmt.Fprintln(c.W, ">", s.Pair.InputString())
		fmt.Fprintln(c.W, "=", s.Pair.TargetString())
		if s.Err != nil {
			fmt.Fprintln(c.W, "<", "error:", s.Err)
		} else {
			fmt.Fprintln(c.W, "<", strings.Join(stripEnd(s.Predicted), " "))
		}
		fmt.Fprintln(c.W)
	}
	pct := 0.0
	if p.Total > 0 {
		pct = 100 * float64(p.Iteration) / float64(p.Total)
	}
	fmt.Fprintf(c.W, "Iter %d (%d%%) | Loss: %.4f | Time: %v (- %v)\n",
		p.Iteration, int(math.Floor(pct)), p.Loss,
		p.Elapsed.Round(time.Second), p.Remaining().Round(time.Second))
}

func (c ConsoleProgress) Checkpoint(iteration int, err error) {
	if err != nil {
		fmt.Fprintf(c.W, "⚠️ checkpoint at iteration %d failed: %v\n", iteration, err)
		return
	}
	fmt.Fprintf(c.W, "Saved checkpoint at iteration %d\n", iteration)
}

type discardProgress struct{}

func (discardProgress) Report(Progress)        {}
func (discardProgress) Checkpoint(int, error) {}
