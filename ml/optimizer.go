package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
	OptAdam     OptimizerType = "adam"
)

// Default settings generally recommended for Adam
var DefaultAdamConfig = AdamConfig{
	Beta1:        0.9,
	Beta2:        0.999,
	Epsilon:      1e-8,
	LearningRate: 0.001,
}

type OptimizerType string
type AdamConfig struct {
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	LearningRate float64
}

// Optimizer owns one component's parameters. ZeroGrad clears the
// accumulated gradients, Step applies them.
type Optimizer interface {
	ZeroGrad()
	Step()
}

// paramState holds the moving averages (or velocity) for one parameter.
type paramState struct {
	m, v *Matrix
}

type baseOptimizer struct {
	params []*Param
}

func (o *baseOptimizer) ZeroGrad() {
	for _, p := range o.params {
		p.Grad.Reset()
	}
}

type SGDOptimizer struct {
	baseOptimizer
	LearningRate float64
}

type MomentumOptimizer struct {
	baseOptimizer
	LearningRate float64
	Mu           float64 // Momentum Factor (usually 0.9)

	states []paramState
}

type AdamOptimizer struct {
	baseOptimizer
	cfg      AdamConfig
	states   []paramState
	timeStep int // 't' in the Adam paper, tracks number of updates
}

func NewOptimizer(params []*Param, cfg TrainingConfig) Optimizer {
	switch cfg.Optimizer {
	case OptAdam:
		// Set defaults if 0
		adamCfg := DefaultAdamConfig
		if cfg.AdamBeta1 != 0 {
			adamCfg.Beta1 = cfg.AdamBeta1
		}
		if cfg.AdamBeta2 != 0 {
			adamCfg.Beta2 = cfg.AdamBeta2
		}
		if cfg.AdamEps != 0 {
			adamCfg.Epsilon = cfg.AdamEps
		}
		if cfg.LearningRate != 0 {
			adamCfg.LearningRate = cfg.LearningRate
		}
		return NewAdamOptimizer(params, adamCfg)

	case OptMomentum:
		return NewMomentumOptimizer(params, cfg.LearningRate, cfg.MomentumMu)

	default:
		return NewSGDOptimizer(params, cfg.LearningRate)
	}
}

func NewSGDOptimizer(params []*Param, lr float64) *SGDOptimizer {
	return &SGDOptimizer{baseOptimizer: baseOptimizer{params: params}, LearningRate: lr}
}

func NewMomentumOptimizer(params []*Param, lr, mu float64) *MomentumOptimizer {
	if mu == 0 {
		mu = 0.9
	} // Default

	opt := &MomentumOptimizer{
		baseOptimizer: baseOptimizer{params: params},
		LearningRate:  lr,
		Mu:            mu,
		states:        make([]paramState, len(params)),
	}
	// Pre-allocate memory for velocities
	for i, p := range params {
		opt.states[i].m = NewMatrix(p.Value.rows, p.Value.cols)
	}
	return opt
}

func NewAdamOptimizer(params []*Param, cfg AdamConfig) *AdamOptimizer {
	opt := &AdamOptimizer{
		baseOptimizer: baseOptimizer{params: params},
		cfg:           cfg,
		states:        make([]paramState, len(params)),
	}
	// Initialize zero-matrices for every parameter
	for i, p := range params {
		opt.states[i] = paramState{
			m: NewMatrix(p.Value.rows, p.Value.cols),
			v: NewMatrix(p.Value.rows, p.Value.cols),
		}
	}
	return opt
}

// ------ ADAM OPTIMIZER METHODS ------ //
// Step applies the Adam update rule to every parameter
func (opt *AdamOptimizer) Step() {
	// 1. Increment Time Step
	opt.timeStep++
	t := float64(opt.timeStep)

	// 2. Pre-calculate Correction Factors
	correction1 := 1.0 - math.Pow(opt.cfg.Beta1, t)
	correction2 := 1.0 - math.Pow(opt.cfg.Beta2, t)

	beta1 := opt.cfg.Beta1
	beta2 := opt.cfg.Beta2
	eps := opt.cfg.Epsilon
	lr := opt.cfg.LearningRate

	for i, p := range opt.params {
		params, grads := p.Value.data, p.Grad.data
		m, v := opt.states[i].m.data, opt.states[i].v.data

		for j := range params {
			g := grads[j]

			// m_t = beta1 * m_{t-1} + (1 - beta1) * g
			m[j] = beta1*m[j] + (1.0-beta1)*g
			// v_t = beta2 * v_{t-1} + (1 - beta2) * g^2
			v[j] = beta2*v[j] + (1.0-beta2)*(g*g)

			mHat := m[j] / correction1
			vHat := v[j] / correction2

			// theta = theta - lr * mHat / (sqrt(vHat) + eps)
			params[j] -= lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

// ------ MOMENTUM OPTIMIZER METHODS ------ //
func (opt *MomentumOptimizer) Step() {
	// v = mu * v - lr * grad
	// w = w + v
	for i, p := range opt.params {
		velocity := opt.states[i].m.data
		floats.Scale(opt.Mu, velocity)
		floats.AddScaled(velocity, -opt.LearningRate, p.Grad.data)
		floats.Add(p.Value.data, velocity)
	}
}

// ------ SGD OPTIMIZER METHODS ------ //
func (opt *SGDOptimizer) Step() {
	// W = W - (lr * gradient)
	for _, p := range opt.params {
		floats.AddScaled(p.Value.data, -opt.LearningRate, p.Grad.data)
	}
}
