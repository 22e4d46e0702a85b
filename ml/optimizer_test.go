package ml

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func paramWithGrad(value, grad []float64) *Param {
	p := newParam("w", 1, len(value))
	copy(p.Value.data, value)
	copy(p.Grad.data, grad)
	return p
}

func TestSGDStep(t *testing.T) {
	p := paramWithGrad([]float64{1, 2, 3}, []float64{0.5, -1, 0})
	opt := NewSGDOptimizer([]*Param{p}, 0.1)
	opt.Step()
	if want := []float64{0.95, 2.1, 3}; !floats.EqualApprox(p.Value.data, want, 1e-12) {
		t.Errorf("got %v, want %v", p.Value.data, want)
	}
	opt.ZeroGrad()
	if floats.Norm(p.Grad.data, 1) != 0 {
		t.Errorf("gradient not cleared: %v", p.Grad.data)
	}
}

func TestMomentumStep(t *testing.T) {
	p := paramWithGrad([]float64{1}, []float64{1})
	opt := NewOptimizer([]*Param{p}, TrainingConfig{Optimizer: OptMomentum, LearningRate: 0.1})
	opt.Step() // v = -0.1
	opt.Step() // v = 0.9*-0.1 - 0.1 = -0.19
	if want := 1 - 0.1 - 0.19; math.Abs(p.Value.data[0]-want) > 1e-12 {
		t.Errorf("got %v, want %v", p.Value.data[0], want)
	}
}

func TestAdamStep(t *testing.T) {
	p := paramWithGrad([]float64{1, 1}, []float64{4, -0.001})
	opt := NewOptimizer([]*Param{p}, TrainingConfig{Optimizer: OptAdam, LearningRate: 0.01})
	opt.Step()
	// The first bias-corrected step moves every weight by about lr against its gradient.
	if want := []float64{0.99, 1.01}; !floats.EqualApprox(p.Value.data, want, 1e-6) {
		t.Errorf("got %v, want %v", p.Value.data, want)
	}
}

func TestTrainingConfigDefaults(t *testing.T) {
	cfg := TrainingConfig{}.WithDefaults()
	if cfg.LearningRate != 0.01 || cfg.TeacherForcingRatio != 0.5 || cfg.Optimizer != OptSGD {
		t.Errorf("defaults %+v", cfg)
	}
	if cfg.PrintEvery != 1000 || cfg.PlotEvery != 100 || cfg.SaveEvery != 10000 {
		t.Errorf("intervals %+v", cfg)
	}
	kept := TrainingConfig{LearningRate: 0.3, TeacherForcingRatio: -1}.WithDefaults()
	if kept.LearningRate != 0.3 || kept.TeacherForcingRatio != -1 {
		t.Errorf("explicit values overwritten: %+v", kept)
	}
}

func TestCoinFlip(t *testing.T) {
	rng := testRand(4)
	never, always := CoinFlip(rng, -1), CoinFlip(rng, 1.5)
	forced := 0
	half := CoinFlip(rng, 0.5)
	for i := 0; i < 1000; i++ {
		if never() || !always() {
			t.Fatal("degenerate ratios are not respected")
		}
		if half() {
			forced++
		}
	}
	if forced < 400 || forced > 600 {
		t.Errorf("ratio 0.5 forced %d of 1000 steps", forced)
	}
}
