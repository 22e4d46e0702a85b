package ml

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Embedder supplies a fixed-width vector for the token at a position of a
// sentence. Contextual providers may use the whole sentence; static ones only
// look at sentence[position]. Unknown tokens must fail with ErrLookup.
type Embedder interface {
	Dim() int
	VectorFor(sentence []string, position int) ([]float64, error)
}

// Encoder runs a GRU over the embedded input tokens. The embedding source is
// injected and frozen: only the recurrent cell is trained.
type Encoder struct {
	HiddenSize int
	Cell       *GRU

	embedder Embedder
}

// EncoderPass is the result of running the encoder over one sentence.
type EncoderPass struct {
	// Outputs has one row per position up to the max length; rows past the
	// input length stay zero.
	Outputs *Matrix
	// Hidden is the final hidden state, handed to the decoder.
	Hidden []float64

	steps []*gruCache
}

func NewEncoder(hiddenSize int, embedder Embedder, rng *rand.Rand) *Encoder {
	return &Encoder{
		HiddenSize: hiddenSize,
		Cell:       NewGRU("encoder.gru", embedder.Dim(), hiddenSize, rng),
		embedder:   embedder,
	}
}

func (e *Encoder) Params() []*Param {
	return e.Cell.Params()
}

func (e *Encoder) InitHidden() []float64 {
	return make([]float64, e.HiddenSize)
}

// Step embeds sentence[position] and feeds it through one cell update. The
// output and the new hidden state are the same vector for a single-layer GRU.
func (e *Encoder) Step(sentence []string, position int, hidden []float64) (output, newHidden []float64, err error) {
	out, _, err := e.step(sentence, position, hidden)
	if err != nil {
		return nil, nil, err
	}
	return out, out, nil
}

func (e *Encoder) step(sentence []string, position int, hidden []float64) ([]float64, *gruCache, error) {
	if len(hidden) != e.HiddenSize {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "encoder hidden width %d, want %d", len(hidden), e.HiddenSize)
	}
	x, err := e.embedder.VectorFor(sentence, position)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "embed position %d", position)
	}
	if len(x) != e.Cell.InputSize {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "embedding width %d, want %d", len(x), e.Cell.InputSize)
	}
	out, cache := e.Cell.Forward(x, hidden)
	return out, cache, nil
}

// Encode runs every input position in order. Each step output is added into
// its slot of a zero buffer; every slot is written at most once per pass, so
// the sum equals the output.
func (e *Encoder) Encode(sentence []string, maxLength int) (*EncoderPass, error) {
	if maxLength < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "max length %d", maxLength)
	}
	if len(sentence) > maxLength {
		return nil, errors.Wrapf(ErrShapeMismatch, "input length %d exceeds max length %d", len(sentence), maxLength)
	}
	pass := &EncoderPass{
		Outputs: NewMatrix(maxLength, e.HiddenSize),
		Hidden:  e.InitHidden(),
		steps:   make([]*gruCache, 0, len(sentence)),
	}
	for i := range sentence {
		out, cache, err := e.step(sentence, i, pass.Hidden)
		if err != nil {
			return nil, err
		}
		floats.Add(pass.Outputs.Row(i), out)
		pass.Hidden = out
		pass.steps = append(pass.steps, cache)
	}
	return pass, nil
}

// backward runs backprop through time. dOutputs holds the gradient for every
// output slot and dHidden the gradient for the final hidden state.
func (e *Encoder) backward(pass *EncoderPass, dOutputs *Matrix, dHidden []float64) {
	dh := append([]float64(nil), dHidden...)
	for i := len(pass.steps) - 1; i >= 0; i-- {
		floats.Add(dh, dOutputs.Row(i))
		_, dh = e.Cell.Backward(pass.steps[i], dh)
	}
}
