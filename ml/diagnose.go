package ml

import (
	"gonum.org/v1/gonum/floats"
)

// Diagnosis is the per-step gold probability trace of one pair.
type Diagnosis struct {
	Pair  Pair
	Probs []float64
}

func (d Diagnosis) MinProb() float64 {
	return floats.Min(d.Probs)
}

// DiagnosisReport buckets pairs by the lowest gold-step probability:
// correct (>= 0.5), not that wrong (> Threshold) and pretty wrong.
// Pairs whose probabilities are undefined are counted in Skipped only.
type DiagnosisReport struct {
	Threshold    float64
	Correct      int
	NotThatWrong int
	PrettyWrong  int
	Skipped      int

	// Flagged lists every pair that is not correct, for rendering.
	Flagged []Diagnosis
}

func (r DiagnosisReport) Scored() int {
	return r.Correct + r.NotThatWrong + r.PrettyWrong
}

func (r DiagnosisReport) percent(n int) float64 {
	if r.Scored() == 0 {
		return 0
	}
	return 100 * float64(n) / float64(r.Scored())
}

func (r DiagnosisReport) CorrectPercent() float64      { return r.percent(r.Correct) }
func (r DiagnosisReport) NotThatWrongPercent() float64 { return r.percent(r.NotThatWrong) }
func (r DiagnosisReport) PrettyWrongPercent() float64  { return r.percent(r.PrettyWrong) }

// Diagnose inspects the first n pairs with gold-forced decoding.
func Diagnose(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength int, threshold float64, n int) (DiagnosisReport, error) {
	report := DiagnosisReport{Threshold: threshold}
	if n > len(pairs) {
		n = len(pairs)
	}
	for _, pair := range pairs[:n] {
		probs, err := ComputeStepProbabilities(enc, dec, vocab, pair.Input, pair.Target, maxLength)
		if err != nil {
			if IsLookup(err) {
				report.Skipped++
				continue
			}
			return report, err
		}
		d := Diagnosis{Pair: pair, Probs: probs}
		lowest := d.MinProb()
		switch {
		case lowest >= 0.5:
			report.Correct++
		case lowest > threshold:
			report.NotThatWrong++
		default:
			report.PrettyWrong++
		}
		if lowest < 0.5 {
			report.Flagged = append(report.Flagged, d)
		}
	}
	return report, nil
}
