package ml

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
)

type mapEmbedder struct {
	dim     int
	vectors map[string][]float64
}

func newMapEmbedder(rng *rand.Rand, dim int, tokens ...string) *mapEmbedder {
	e := &mapEmbedder{dim: dim, vectors: make(map[string][]float64)}
	for _, tok := range tokens {
		v := make([]float64, dim)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		e.vectors[tok] = v
	}
	return e
}

func (e *mapEmbedder) Dim() int { return e.dim }

func (e *mapEmbedder) VectorFor(sentence []string, position int) ([]float64, error) {
	v, ok := e.vectors[sentence[position]]
	if !ok {
		return nil, errors.Wrapf(ErrLookup, "token %q", sentence[position])
	}
	return v, nil
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

var testTokens = []string{"a", "b", "c", "d", "e"}

type testModel struct {
	enc   *Encoder
	dec   *AttnDecoder
	vocab *Vocabulary
	rng   *rand.Rand
}

// newTestModel builds a small model over testTokens with the given label symbols.
func newTestModel(hidden, maxLength int, dropout float64, symbols ...string) testModel {
	rng := testRand(7)
	vocab := NewVocabulary()
	for _, s := range symbols {
		vocab.Add(s)
	}
	emb := newMapEmbedder(rng, 6, testTokens...)
	return testModel{
		enc:   NewEncoder(hidden, emb, rng),
		dec:   NewAttnDecoder(hidden, vocab.Size(), maxLength, dropout, rng),
		vocab: vocab,
		rng:   rng,
	}
}

// forceOutputs makes the decoder output depend on the bias only.
func (m testModel) forceOutputs(bias map[string]float64) {
	m.dec.Out.Value.Reset()
	m.dec.OutBias.Value.Reset()
	for sym, b := range bias {
		id, err := m.vocab.SymbolToID(sym)
		if err != nil {
			panic(err)
		}
		m.dec.OutBias.Value.data[id] = b
	}
}

func gradSnapshot(params []*Param) map[string][]float64 {
	out := make(map[string][]float64, len(params))
	for _, p := range params {
		out[p.Name] = append([]float64(nil), p.Grad.data...)
	}
	return out
}

// checkGradients compares analytic gradients against central differences of
// loss on a spread of entries of every parameter.
func checkGradients(t *testing.T, params []*Param, analytic map[string][]float64, loss func() float64) {
	t.Helper()
	const eps = 1e-5
	for _, p := range params {
		data := p.Value.data
		stride := max(1, len(data)/7)
		for i := 0; i < len(data); i += stride {
			orig := data[i]
			data[i] = orig + eps
			plus := loss()
			data[i] = orig - eps
			minus := loss()
			data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			got := analytic[p.Name][i]
			if !closeEnough(numeric, got) {
				t.Errorf("%s[%d]: analytic %.8f, numeric %.8f", p.Name, i, got, numeric)
			}
		}
	}
}

// checkInputGradient does the same for a plain input vector.
func checkInputGradient(t *testing.T, name string, x, analytic []float64, loss func() float64) {
	t.Helper()
	const eps = 1e-5
	for i := range x {
		orig := x[i]
		x[i] = orig + eps
		plus := loss()
		x[i] = orig - eps
		minus := loss()
		x[i] = orig

		numeric := (plus - minus) / (2 * eps)
		if !closeEnough(numeric, analytic[i]) {
			t.Errorf("%s[%d]: analytic %.8f, numeric %.8f", name, i, analytic[i], numeric)
		}
	}
}

func closeEnough(a, b float64) bool {
	diff := math.Abs(a - b)
	return diff <= 1e-6 || diff <= 1e-4*math.Max(math.Abs(a), math.Abs(b))
}
