package ml

import (
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
)

type TrainingConfig struct {
	Iterations   int
	LearningRate float64

	// Probability that a training step feeds the gold symbol back into the
	// decoder. Zero means the default of 0.5; use a negative value to
	// disable teacher forcing entirely.
	TeacherForcingRatio float64

	PrintEvery int // progress + accuracy report interval (in iterations)
	PlotEvery  int // loss history interval
	SaveEvery  int // checkpoint interval

	ValidateSamples int // pairs sampled per accuracy estimate
	SampleCount     int // decoded examples shown per report

	// Optimizer Selection
	Optimizer OptimizerType

	// Optimizer Hyperparameters (Zero values will use defaults)
	MomentumMu float64 // For Momentum (usually 0.9)
	AdamBeta1  float64 // For Adam (usually 0.9)
	AdamBeta2  float64 // For Adam (usually 0.999)
	AdamEps    float64 // For Adam (usually 1e-8)
}

// WithDefaults fills zero fields with the stock training defaults.
func (cfg TrainingConfig) WithDefaults() TrainingConfig {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.TeacherForcingRatio == 0 {
		cfg.TeacherForcingRatio = 0.5
	}
	if cfg.PrintEvery == 0 {
		cfg.PrintEvery = 1000
	}
	if cfg.PlotEvery == 0 {
		cfg.PlotEvery = 100
	}
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = 10000
	}
	if cfg.ValidateSamples == 0 {
		cfg.ValidateSamples = 100
	}
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 3
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = OptSGD
	}
	return cfg
}

// ForcingPolicy decides, once per training step, whether the decoder is fed
// the gold previous symbol (true) or its own prediction (false).
type ForcingPolicy func() bool

// CoinFlip forces with the given probability, drawing from rng.
func CoinFlip(rng *rand.Rand, ratio float64) ForcingPolicy {
	return func() bool { return rng.Float64() < ratio }
}

// Always returns a fixed decision.
func Always(force bool) ForcingPolicy {
	return func() bool { return force }
}

// Trainer owns the optimizers of an encoder/decoder pair and performs single
// example gradient steps.
type Trainer struct {
	Encoder    *Encoder
	Decoder    *AttnDecoder
	EncoderOpt Optimizer
	DecoderOpt Optimizer
	MaxLength  int
	Forcing    ForcingPolicy
}

func NewTrainer(enc *Encoder, dec *AttnDecoder, maxLength int, cfg TrainingConfig, rng *rand.Rand) *Trainer {
	cfg = cfg.WithDefaults()
	return &Trainer{
		Encoder:    enc,
		Decoder:    dec,
		EncoderOpt: NewOptimizer(enc.Params(), cfg),
		DecoderOpt: NewOptimizer(dec.Params(), cfg),
		MaxLength:  maxLength,
		Forcing:    CoinFlip(rng, cfg.TeacherForcingRatio),
	}
}

// Step runs one gradient step on a single example and returns the summed
// NLL divided by the gold target length. target must end with EndID (see
// Vocabulary.Encode). In free-running mode the decoder stops as soon as it
// predicts the end symbol, but the loss is still divided by the full gold
// length.
func (t *Trainer) Step(sentence []string, target []int) (float64, error) {
	t.EncoderOpt.ZeroGrad()
	t.DecoderOpt.ZeroGrad()

	if len(target) == 0 || len(target) > t.MaxLength {
		return 0, errors.Wrapf(ErrShapeMismatch, "target length %d outside [1, %d]", len(target), t.MaxLength)
	}

	pass, err := t.Encoder.Encode(sentence, t.MaxLength)
	if err != nil {
		return 0, err
	}

	// The final encoder state is the only state handed to the decoder.
	hidden := pass.Hidden
	input := StartID
	forcing := t.Forcing()

	steps := make([]*decoderStep, 0, len(target))
	grads := make([][]float64, 0, len(target))
	loss := 0.0

	for _, gold := range target {
		s, err := t.Decoder.step(input, hidden, pass.Outputs, true)
		if err != nil {
			return 0, err
		}
		l, dl := nllLoss(s.logProbs, gold)
		loss += l
		steps = append(steps, s)
		grads = append(grads, dl)
		hidden = s.hidden

		if forcing {
			input = gold
			continue
		}
		input = argmax(s.logProbs)
		if input == EndID {
			break
		}
	}

	if !allFinite(loss) {
		return 0, errors.Wrapf(ErrNumericInstability, "loss %v", loss)
	}

	// Backprop: decoder steps in reverse, then the encoder through time.
	dEnc := NewMatrix(t.MaxLength, t.Encoder.HiddenSize)
	dHidden := make([]float64, t.Decoder.HiddenSize)
	for i := len(steps) - 1; i >= 0; i-- {
		dHidden = t.Decoder.backward(steps[i], grads[i], dHidden, pass.Outputs, dEnc)
	}
	t.Encoder.backward(pass, dEnc, dHidden)

	t.EncoderOpt.Step()
	t.DecoderOpt.Step()

	return loss / float64(len(target)), nil
}

// TrainEnv carries the collaborators of the training loop.
type TrainEnv struct {
	Device      *Device
	Checkpoints CheckpointStore // optional
	Progress    ProgressSink    // optional
	Forcing     ForcingPolicy   // optional override of the coin flip
	Stop        <-chan struct{} // optional; closing it ends training after the current step
}

type TrainResult struct {
	Iterations  int
	PlotLosses  []float64
	Interrupted bool
}

// Train draws cfg.Iterations pairs with replacement and performs one step on
// each. Step errors end the run; checkpoint and progress failures do not.
func Train(enc *Encoder, dec *AttnDecoder, vocab *Vocabulary, trainPairs, devPairs []Pair, maxLength int, cfg TrainingConfig, env TrainEnv) (TrainResult, error) {
	cfg = cfg.WithDefaults()
	if len(trainPairs) == 0 {
		return TrainResult{}, errors.New("no training pairs")
	}
	if cfg.PrintEvery < 0 || cfg.PlotEvery < 0 || cfg.SaveEvery < 0 {
		return TrainResult{}, errors.Errorf("report intervals must not be negative: print %d, plot %d, save %d",
			cfg.PrintEvery, cfg.PlotEvery, cfg.SaveEvery)
	}
	rng := env.Device.Rand
	progress := env.Progress
	if progress == nil {
		progress = discardProgress{}
	}

	trainer := NewTrainer(enc, dec, maxLength, cfg, rng)
	if env.Forcing != nil {
		trainer.Forcing = env.Forcing
	}

	var (
		result     TrainResult
		printTotal float64 // Reset every PrintEvery
		plotTotal  float64 // Reset every PlotEvery
		start      = time.Now()
	)

	checkpoint := func(iter int) {
		if env.Checkpoints == nil {
			return
		}
		err := env.Checkpoints.Save("encoder", iter, enc.Params())
		if err == nil {
			err = env.Checkpoints.Save("decoder", iter, dec.Params())
		}
		progress.Checkpoint(iter, err)
	}

	for iter := 1; iter <= cfg.Iterations; iter++ {
		select {
		case <-env.Stop:
			checkpoint(iter - 1)
			result.Interrupted = true
			return result, nil
		default:
		}

		pair := trainPairs[rng.IntN(len(trainPairs))]
		target, err := vocab.Encode(pair.Target)
		if err != nil {
			return result, errors.Wrapf(err, "iteration %d", iter)
		}
		loss, err := trainer.Step(pair.Input, target)
		if err != nil {
			return result, errors.Wrapf(err, "iteration %d", iter)
		}
		result.Iterations = iter
		printTotal += loss
		plotTotal += loss

		if iter%cfg.SaveEvery == 0 {
			checkpoint(iter)
		}

		if iter%cfg.PrintEvery == 0 {
			p := Progress{
				Iteration: iter,
				Total:     cfg.Iterations,
				Loss:      printTotal / float64(cfg.PrintEvery),
				Elapsed:   time.Since(start),
			}
			printTotal = 0
			if p.Train, err = ValidateRandomSubset(enc, dec, vocab, trainPairs, maxLength, cfg.ValidateSamples, rng); err != nil {
				return result, err
			}
			if len(devPairs) > 0 {
				if p.Dev, err = ValidateRandomSubset(enc, dec, vocab, devPairs, maxLength, cfg.ValidateSamples, rng); err != nil {
					return result, err
				}
			}
			p.Samples = SampleRandomly(enc, dec, vocab, trainPairs, maxLength, cfg.SampleCount, rng)
			progress.Report(p)
		}

		if iter%cfg.PlotEvery == 0 {
			result.PlotLosses = append(result.PlotLosses, plotTotal/float64(cfg.PlotEvery))
			plotTotal = 0
		}
	}
	return result, nil
}
