package ml

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// GRU is a single gated recurrent cell. Gate weights are stacked in the
// order reset, update, new:
//
//	r  = sigmoid(Wi_r x + bi_r + Wh_r h + bh_r)
//	z  = sigmoid(Wi_z x + bi_z + Wh_z h + bh_z)
//	n  = tanh(Wi_n x + bi_n + r * (Wh_n h + bh_n))
//	h' = (1 - z) * n + z * h
type GRU struct {
	InputSize  int
	HiddenSize int

	Wi *Param // [3H, I]
	Wh *Param // [3H, H]
	Bi *Param // [1, 3H]
	Bh *Param // [1, 3H]
}

// gruCache holds what one forward step needs for its backward step.
type gruCache struct {
	x, h    []float64
	r, z, n []float64
	ghn     []float64 // Wh_n h + bh_n
}

func NewGRU(name string, inputSize, hiddenSize int, rng *rand.Rand) *GRU {
	g := &GRU{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wi:         newParam(name+".weight_ih", 3*hiddenSize, inputSize),
		Wh:         newParam(name+".weight_hh", 3*hiddenSize, hiddenSize),
		Bi:         newParam(name+".bias_ih", 1, 3*hiddenSize),
		Bh:         newParam(name+".bias_hh", 1, 3*hiddenSize),
	}
	limit := 1 / math.Sqrt(float64(hiddenSize))
	for _, p := range g.Params() {
		p.Value.RandomizeUniform(rng, limit)
	}
	return g
}

func (g *GRU) Params() []*Param {
	return []*Param{g.Wi, g.Wh, g.Bi, g.Bh}
}

// Forward runs one cell update and returns the new hidden state.
func (g *GRU) Forward(x, h []float64) ([]float64, *gruCache) {
	H := g.HiddenSize

	gi := make([]float64, 3*H)
	g.Wi.Value.MulVec(x, gi)
	floats.Add(gi, g.Bi.Value.data)

	gh := make([]float64, 3*H)
	g.Wh.Value.MulVec(h, gh)
	floats.Add(gh, g.Bh.Value.data)

	c := &gruCache{
		x:   x,
		h:   h,
		r:   make([]float64, H),
		z:   make([]float64, H),
		n:   make([]float64, H),
		ghn: gh[2*H:],
	}
	out := make([]float64, H)
	for k := 0; k < H; k++ {
		r := Sigmoid(gi[k] + gh[k])
		z := Sigmoid(gi[H+k] + gh[H+k])
		n := math.Tanh(gi[2*H+k] + r*gh[2*H+k])
		c.r[k], c.z[k], c.n[k] = r, z, n
		out[k] = (1-z)*n + z*h[k]
	}
	return out, c
}

// Backward accumulates parameter gradients for one step and returns the
// gradients w.r.t. the step input and the previous hidden state.
func (g *GRU) Backward(c *gruCache, dOut []float64) (dx, dh []float64) {
	H := g.HiddenSize

	dgi := make([]float64, 3*H)
	dgh := make([]float64, 3*H)
	dh = make([]float64, H)

	for k := 0; k < H; k++ {
		r, z, n := c.r[k], c.z[k], c.n[k]

		dn := dOut[k] * (1 - z)
		dz := dOut[k] * (c.h[k] - n)
		dh[k] = dOut[k] * z

		dnPre := dn * (1 - n*n)
		drPre := dnPre * c.ghn[k] * r * (1 - r)
		dzPre := dz * z * (1 - z)

		dgi[k], dgi[H+k], dgi[2*H+k] = drPre, dzPre, dnPre
		dgh[k], dgh[H+k], dgh[2*H+k] = drPre, dzPre, dnPre*r
	}

	g.Wi.Grad.AddOuter(dgi, c.x)
	floats.Add(g.Bi.Grad.data, dgi)
	g.Wh.Grad.AddOuter(dgh, c.h)
	floats.Add(g.Bh.Grad.data, dgh)

	dx = make([]float64, g.InputSize)
	g.Wi.Value.MulTransVecAdd(dgi, dx)
	g.Wh.Value.MulTransVecAdd(dgh, dh)
	return dx, dh
}
