package ml

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	sink := ConsoleProgress{W: &buf}
	sink.Report(Progress{
		Iteration: 500,
		Total:     1000,
		Loss:      0.25,
		Train:     ValidationReport{Attempted: 4, Correct: 3},
		Dev:       ValidationReport{Attempted: 4, Correct: 1, Skipped: 1},
		Elapsed:   10 * time.Second,
		Samples: []Outcome{
			{Pair: Pair{Input: []string{"a", "b"}, Target: []string{"X", "O"}}, Predicted: []string{"X", "O", EndSymbol}, Correct: true},
			{Pair: Pair{Input: []string{"zzz"}}, Err: ErrLookup},
		},
	})
	out := buf.String()
	for _, want := range []string{
		"train accuracy: 0.7500",
		"dev accuracy: 0.2500 (skipped 1)",
		"> a b\n= X O\n< X O\n",
		"< error: lookup failed",
		"Iter 500 (50%) | Loss: 0.2500 | Time: 10s (- 10s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	sink.Checkpoint(10, errors.New("disk full"))
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("checkpoint failure not reported: %q", buf.String())
	}
}
