package ml

import (
	"testing"
)

// --- Global Variables to prevent compiler optimizations ---
var resultVec []float64
var resultLoss float64

// --- 1. Benchmarks: Matrix-Vector Products ---

func benchmarkMulVec(b *testing.B, size int, method string) {
	rng := testRand(1)
	m := NewMatrix(size, size)
	m.RandomizeUniform(rng, 1)
	x := make([]float64, size)
	out := make([]float64, size)
	for i := range x {
		x[i] = rng.Float64()
	}

	b.ResetTimer()

	if method == "Native" {
		for n := 0; n < b.N; n++ {
			for i := 0; i < size; i++ {
				sum := 0.0
				for j, v := range m.Row(i) {
					sum += v * x[j]
				}
				out[i] = sum
			}
		}
	} else {
		for n := 0; n < b.N; n++ {
			m.MulVec(x, out)
		}
	}
	resultVec = out
}

func BenchmarkMulVec_Native_64(b *testing.B)   { benchmarkMulVec(b, 64, "Native") }
func BenchmarkMulVec_Gonum_64(b *testing.B)    { benchmarkMulVec(b, 64, "Gonum") }
func BenchmarkMulVec_Native_256(b *testing.B)  { benchmarkMulVec(b, 256, "Native") }
func BenchmarkMulVec_Gonum_256(b *testing.B)   { benchmarkMulVec(b, 256, "Gonum") }
func BenchmarkMulVec_Native_1024(b *testing.B) { benchmarkMulVec(b, 1024, "Native") }
func BenchmarkMulVec_Gonum_1024(b *testing.B)  { benchmarkMulVec(b, 1024, "Gonum") }

// --- 2. Benchmarks: Recurrent Cell ---

func benchmarkGRU(b *testing.B, hidden int, backward bool) {
	rng := testRand(2)
	g := NewGRU("gru", hidden, hidden, rng)
	x := make([]float64, hidden)
	h := make([]float64, hidden)
	for i := range x {
		x[i], h[i] = rng.NormFloat64(), rng.NormFloat64()
	}
	dOut := append([]float64(nil), x...)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		out, cache := g.Forward(x, h)
		if backward {
			g.Backward(cache, dOut)
		}
		resultVec = out
	}
}

func BenchmarkGRU_Forward_256(b *testing.B)  { benchmarkGRU(b, 256, false) }
func BenchmarkGRU_Backward_256(b *testing.B) { benchmarkGRU(b, 256, true) }

// --- 3. Benchmarks: Full Training Step with Optimizers ---

func benchmarkTrainStep(b *testing.B, hidden int, optType OptimizerType) {
	rng := testRand(3)
	vocab := NewVocabulary()
	vocab.AddSentence("X O")
	emb := newMapEmbedder(rng, 50, testTokens...)
	enc := NewEncoder(hidden, emb, rng)
	dec := NewAttnDecoder(hidden, vocab.Size(), 35, 0.1, rng)

	cfg := TrainingConfig{
		LearningRate: 0.01,
		Optimizer:    optType,
		MomentumMu:   0.9,
		AdamBeta1:    0.9,
		AdamBeta2:    0.999,
		AdamEps:      1e-8,
	}
	trainer := NewTrainer(enc, dec, 35, cfg, rng)
	trainer.Forcing = Always(true)

	sentence := []string{"a", "b", "c", "d", "e", "a", "b", "c", "d", "e"}
	target, _ := vocab.Encode([]string{"X", "O", "O", "X", "O", "O", "O", "X", "O", "X"})

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		loss, err := trainer.Step(sentence, target)
		if err != nil {
			b.Fatal(err)
		}
		resultLoss = loss
	}
}

func BenchmarkTrainStep_SGD_64(b *testing.B)      { benchmarkTrainStep(b, 64, OptSGD) }
func BenchmarkTrainStep_Momentum_64(b *testing.B) { benchmarkTrainStep(b, 64, OptMomentum) }
func BenchmarkTrainStep_Adam_64(b *testing.B)     { benchmarkTrainStep(b, 64, OptAdam) }

func BenchmarkTrainStep_SGD_256(b *testing.B)      { benchmarkTrainStep(b, 256, OptSGD) }
func BenchmarkTrainStep_Momentum_256(b *testing.B) { benchmarkTrainStep(b, 256, OptMomentum) }
func BenchmarkTrainStep_Adam_256(b *testing.B)     { benchmarkTrainStep(b, 256, OptAdam) }
