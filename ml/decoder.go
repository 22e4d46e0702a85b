package ml

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// AttnDecoder emits one output distribution per step while attending over
// all encoder output slots.
type AttnDecoder struct {
	HiddenSize int
	OutputSize int
	MaxLength  int
	DropoutP   float64

	Embedding   *Param // [V, H]
	Attn        *Param // [L, 2H]
	AttnBias    *Param // [1, L]
	Combine     *Param // [H, 2H]
	CombineBias *Param // [1, H]
	Cell        *GRU
	Out         *Param // [V, H]
	OutBias     *Param // [1, V]

	rng *rand.Rand
}

// decoderStep holds the activations of one step for backprop.
type decoderStep struct {
	input    int
	mask     []float64 // dropout mask, nil in eval mode
	embedded []float64 // after dropout
	attnIn   []float64 // [embedded; hidden]
	attn     []float64
	comboIn  []float64 // [embedded; context]
	combined []float64 // before relu
	cell     *gruCache
	hidden   []float64 // new hidden state
	logProbs []float64
}

func NewAttnDecoder(hiddenSize, outputSize, maxLength int, dropoutP float64, rng *rand.Rand) *AttnDecoder {
	H, V, L := hiddenSize, outputSize, maxLength
	d := &AttnDecoder{
		HiddenSize:  H,
		OutputSize:  V,
		MaxLength:   L,
		DropoutP:    dropoutP,
		Embedding:   newParam("decoder.embedding", V, H),
		Attn:        newParam("decoder.attn.weight", L, 2*H),
		AttnBias:    newParam("decoder.attn.bias", 1, L),
		Combine:     newParam("decoder.attn_combine.weight", H, 2*H),
		CombineBias: newParam("decoder.attn_combine.bias", 1, H),
		Cell:        NewGRU("decoder.gru", H, H, rng),
		Out:         newParam("decoder.out.weight", V, H),
		OutBias:     newParam("decoder.out.bias", 1, V),
		rng:         rng,
	}

	d.Embedding.Value.RandomizeNormal(rng, 1)
	// Linear layers: U(-1/sqrt(fan_in), 1/sqrt(fan_in))
	twoH := 1 / math.Sqrt(float64(2*H))
	d.Attn.Value.RandomizeUniform(rng, twoH)
	d.AttnBias.Value.RandomizeUniform(rng, twoH)
	d.Combine.Value.RandomizeUniform(rng, twoH)
	d.CombineBias.Value.RandomizeUniform(rng, twoH)
	oneH := 1 / math.Sqrt(float64(H))
	d.Out.Value.RandomizeUniform(rng, oneH)
	d.OutBias.Value.RandomizeUniform(rng, oneH)
	return d
}

func (d *AttnDecoder) Params() []*Param {
	params := []*Param{d.Embedding, d.Attn, d.AttnBias, d.Combine, d.CombineBias}
	params = append(params, d.Cell.Params()...)
	return append(params, d.Out, d.OutBias)
}

func (d *AttnDecoder) InitHidden() []float64 {
	return make([]float64, d.HiddenSize)
}

// Step decodes one symbol. Dropout is applied only when train is set.
// Attention covers every slot of encoderOutputs; unpopulated zero slots are
// not masked.
func (d *AttnDecoder) Step(input int, hidden []float64, encoderOutputs *Matrix, train bool) (logProbs, newHidden, attnWeights []float64, err error) {
	s, err := d.step(input, hidden, encoderOutputs, train)
	if err != nil {
		return nil, nil, nil, err
	}
	return s.logProbs, s.hidden, s.attn, nil
}

func (d *AttnDecoder) step(input int, hidden []float64, enc *Matrix, train bool) (*decoderStep, error) {
	H := d.HiddenSize
	if input < 0 || input >= d.OutputSize {
		return nil, errors.Wrapf(ErrShapeMismatch, "decoder input id %d outside [0, %d)", input, d.OutputSize)
	}
	if len(hidden) != H {
		return nil, errors.Wrapf(ErrShapeMismatch, "decoder hidden width %d, want %d", len(hidden), H)
	}
	if enc.rows != d.MaxLength || enc.cols != H {
		return nil, errors.Wrapf(ErrShapeMismatch, "encoder outputs [%d, %d], want [%d, %d]", enc.rows, enc.cols, d.MaxLength, H)
	}

	s := &decoderStep{input: input}

	// 1. Embed + dropout
	s.embedded = append([]float64(nil), d.Embedding.Value.Row(input)...)
	if train && d.DropoutP > 0 {
		s.mask = make([]float64, H)
		keep := 1 / (1 - d.DropoutP)
		for i := range s.mask {
			if d.rng.Float64() >= d.DropoutP {
				s.mask[i] = keep
			}
		}
		floats.Mul(s.embedded, s.mask)
	}

	// 2. Attention weights over all max-length slots
	s.attnIn = concat(s.embedded, hidden)
	s.attn = make([]float64, d.MaxLength)
	d.Attn.Value.MulVec(s.attnIn, s.attn)
	floats.Add(s.attn, d.AttnBias.Value.data)
	Softmax(s.attn, s.attn)

	// 3. Weighted context, combine, relu, recurrent update
	context := make([]float64, H)
	enc.MulTransVecAdd(s.attn, context)
	s.comboIn = concat(s.embedded, context)
	s.combined = make([]float64, H)
	d.Combine.Value.MulVec(s.comboIn, s.combined)
	floats.Add(s.combined, d.CombineBias.Value.data)

	cellIn := make([]float64, H)
	for i, v := range s.combined {
		cellIn[i] = Relu(v)
	}
	s.hidden, s.cell = d.Cell.Forward(cellIn, hidden)

	// 4. Output distribution
	s.logProbs = make([]float64, d.OutputSize)
	d.Out.Value.MulVec(s.hidden, s.logProbs)
	floats.Add(s.logProbs, d.OutBias.Value.data)
	LogSoftmax(s.logProbs, s.logProbs)
	return s, nil
}

// backward accumulates gradients for one step. dHidden is the gradient flowing
// into the step's new hidden state from later steps; gradients w.r.t. the
// encoder outputs are added into dEnc. Returns the gradient w.r.t. the
// incoming hidden state.
func (d *AttnDecoder) backward(s *decoderStep, dLogProbs, dHidden []float64, enc, dEnc *Matrix) []float64 {
	H := d.HiddenSize

	// 4. Output projection
	dLogits := logSoftmaxBackward(s.logProbs, dLogProbs)
	d.Out.Grad.AddOuter(dLogits, s.hidden)
	floats.Add(d.OutBias.Grad.data, dLogits)
	dNew := append([]float64(nil), dHidden...)
	d.Out.Value.MulTransVecAdd(dLogits, dNew)

	// 3. Recurrent update, relu, combine
	dCellIn, dPrev := d.Cell.Backward(s.cell, dNew)
	dCombined := make([]float64, H)
	for i, v := range s.combined {
		if v > 0 {
			dCombined[i] = dCellIn[i]
		}
	}
	d.Combine.Grad.AddOuter(dCombined, s.comboIn)
	floats.Add(d.CombineBias.Grad.data, dCombined)
	dComboIn := make([]float64, 2*H)
	d.Combine.Value.MulTransVecAdd(dCombined, dComboIn)

	dEmbedded := append([]float64(nil), dComboIn[:H]...)
	dContext := dComboIn[H:]

	// context = enc^T attn
	dAttn := make([]float64, d.MaxLength)
	enc.MulVec(dContext, dAttn)
	dEnc.AddOuter(s.attn, dContext)

	// 2. Attention scores
	dScores := softmaxBackward(s.attn, dAttn)
	d.Attn.Grad.AddOuter(dScores, s.attnIn)
	floats.Add(d.AttnBias.Grad.data, dScores)
	dAttnIn := make([]float64, 2*H)
	d.Attn.Value.MulTransVecAdd(dScores, dAttnIn)
	floats.Add(dEmbedded, dAttnIn[:H])
	floats.Add(dPrev, dAttnIn[H:])

	// 1. Dropout + embedding row
	if s.mask != nil {
		floats.Mul(dEmbedded, s.mask)
	}
	floats.Add(d.Embedding.Grad.Row(s.input), dEmbedded)
	return dPrev
}
