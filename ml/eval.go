package ml

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
)

// Evaluate greedily decodes sentence. Decoding stops when the end symbol is
// predicted (EndSymbol is appended) or after maxLength steps. The attention
// matrix has one row per executed step.
func Evaluate(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, sentence []string, maxLength int) ([]string, *Matrix, error) {
	pass, err := enc.Encode(sentence, maxLength)
	if err != nil {
		return nil, nil, err
	}

	hidden := pass.Hidden
	input := StartID
	var (
		decoded []string
		rows    []float64
		steps   int
	)
	for steps < maxLength {
		logProbs, h, attn, err := dec.Step(input, hidden, pass.Outputs, false)
		if err != nil {
			return nil, nil, err
		}
		hidden = h
		rows = append(rows, attn...)
		steps++

		next := argmax(logProbs)
		if next == EndID {
			decoded = append(decoded, EndSymbol)
			break
		}
		symbol, err := vocab.IDToSymbol(next)
		if err != nil {
			return nil, nil, err
		}
		decoded = append(decoded, symbol)
		input = next
	}
	return decoded, NewMatrixFromSlice(steps, len(rows)/steps, rows), nil
}

// ComputeStepProbabilities runs the decoder on the gold labels (plus the end
// symbol) and reports the probability assigned to the gold symbol at every
// step. The probability is only defined when the gold symbol is among the
// step's top 5 candidates; otherwise ErrLookup is returned.
func ComputeStepProbabilities(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, sentence, gold []string, maxLength int) ([]float64, error) {
	desired, err := vocab.Encode(gold)
	if err != nil {
		return nil, err
	}
	if len(desired) > maxLength {
		return nil, errors.Wrapf(ErrShapeMismatch, "gold length %d exceeds max length %d", len(desired), maxLength)
	}
	pass, err := enc.Encode(sentence, maxLength)
	if err != nil {
		return nil, err
	}

	hidden := pass.Hidden
	input := StartID
	probs := make([]float64, 0, len(desired))
	for di, want := range desired {
		logProbs, h, _, err := dec.Step(input, hidden, pass.Outputs, false)
		if err != nil {
			return nil, err
		}
		hidden = h

		found := false
		for _, id := range topK(logProbs, 5) {
			if id == want {
				probs = append(probs, math.Exp(logProbs[id]))
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Wrapf(ErrLookup, "gold id %d not in top 5 at step %d", want, di)
		}
		input = want
	}
	return probs, nil
}

// Outcome is the result for one validation pair: either scored (Err == nil)
// or skipped because of a lookup failure.
type Outcome struct {
	Pair      Pair
	Predicted []string
	Correct   bool
	Err       error
}

func (o Outcome) Skipped() bool {
	return o.Err != nil
}

// ValidationReport aggregates outcomes. Skipped pairs stay in the denominator
// of Accuracy; ScoredAccuracy leaves them out.
type ValidationReport struct {
	Attempted int
	Correct   int
	Skipped   int
}

func (r ValidationReport) Accuracy() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Attempted)
}

func (r ValidationReport) ScoredAccuracy() float64 {
	scored := r.Attempted - r.Skipped
	if scored == 0 {
		return 0
	}
	return float64(r.Correct) / float64(scored)
}

func (r *ValidationReport) add(o Outcome) {
	r.Attempted++
	switch {
	case o.Skipped():
		r.Skipped++
	case o.Correct:
		r.Correct++
	}
}

// stripEnd drops the trailing end marker, if any.
func stripEnd(symbols []string) []string {
	if n := len(symbols); n > 0 && symbols[n-1] == EndSymbol {
		return symbols[:n-1]
	}
	return symbols
}

// Score decodes pair and compares the prediction to the gold labels.
// Lookup failures produce a skipped outcome; any other error is returned.
func Score(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pair Pair, maxLength int) (Outcome, error) {
	out := Outcome{Pair: pair}
	predicted, _, err := Evaluate(enc, dec, vocab, pair.Input, maxLength)
	if err != nil {
		if IsLookup(err) {
			out.Err = err
			return out, nil
		}
		return out, err
	}
	out.Predicted = predicted
	out.Correct = strings.Join(stripEnd(predicted), " ") == pair.TargetString()
	return out, nil
}

// Validate scores the first n pairs of a shuffled copy of pairs.
func Validate(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength, n int, rng *rand.Rand) (ValidationReport, error) {
	shuffled := append([]Pair(nil), pairs...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return validatePairs(enc, dec, vocab, shuffled[:n], maxLength)
}

// ValidateRandomSubset scores n pairs drawn with replacement.
func ValidateRandomSubset(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength, n int, rng *rand.Rand) (ValidationReport, error) {
	if len(pairs) == 0 || n <= 0 {
		return ValidationReport{}, nil
	}
	sample := make([]Pair, n)
	for i := range sample {
		sample[i] = pairs[rng.IntN(len(pairs))]
	}
	return validatePairs(enc, dec, vocab, sample, maxLength)
}

// ValidateSentences scores the first n pairs in order, grouped into
// sentences: consecutive pairs for which sameSentence holds share a group.
// The report counts groups; a group is correct only when every pair in it
// is, and skipped when any pair in it was skipped.
func ValidateSentences(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength, n int, sameSentence func(prev, next Pair) bool) (ValidationReport, error) {
	if n > len(pairs) {
		n = len(pairs)
	}
	var report ValidationReport
	group := Outcome{Correct: true}
	for i := 0; i < n; i++ {
		if i > 0 && !sameSentence(pairs[i-1], pairs[i]) {
			report.add(group)
			group = Outcome{Correct: true}
		}
		o, err := Score(enc, dec, vocab, pairs[i], maxLength)
		if err != nil {
			return report, err
		}
		if group.Err == nil {
			group.Err = o.Err
		}
		group.Correct = group.Correct && o.Correct
	}
	if n > 0 {
		report.add(group)
	}
	return report, nil
}

func validatePairs(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength int) (ValidationReport, error) {
	var report ValidationReport
	for _, pair := range pairs {
		o, err := Score(enc, dec, vocab, pair, maxLength)
		if err != nil {
			return report, err
		}
		report.add(o)
	}
	return report, nil
}

// SampleRandomly decodes n random pairs for display. Failed pairs are
// returned with their error set.
func SampleRandomly(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, pairs []Pair, maxLength, n int, rng *rand.Rand) []Outcome {
	if len(pairs) == 0 || n <= 0 {
		return nil
	}
	samples := make([]Outcome, 0, n)
	for i := 0; i < n; i++ {
		pair := pairs[rng.IntN(len(pairs))]
		o, err := Score(enc, dec, vocab, pair, maxLength)
		if err != nil {
			o.Err = err
		}
		samples = append(samples, o)
	}
	return samples
}
