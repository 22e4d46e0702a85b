package main

import (
	"flag"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/b0tShaman/neuro-chunker/data"
	"github.com/b0tShaman/neuro-chunker/ml"
)

// Config is the on-disk run configuration. Flags given on the command line
// override values read from the file.
type Config struct {
	TrainPath      string `yaml:"train"`
	DevPath        string `yaml:"dev"`
	EmbeddingsPath string `yaml:"embeddings"`
	CheckpointDir  string `yaml:"checkpoints"`

	Device string `yaml:"device"`
	Seed   uint64 `yaml:"seed"`

	HiddenSize     int     `yaml:"hidden_size"`
	Dropout        float64 `yaml:"dropout"`
	MaxInputLength int     `yaml:"max_input_length"`
	Normalize      bool    `yaml:"normalize"`
	FallbackUnk    bool    `yaml:"fallback_unk"`

	Iterations          int     `yaml:"iterations"`
	LearningRate        float64 `yaml:"learning_rate"`
	TeacherForcingRatio float64 `yaml:"teacher_forcing_ratio"`
	PrintEvery          int     `yaml:"print_every"`
	PlotEvery           int     `yaml:"plot_every"`
	SaveEvery           int     `yaml:"save_every"`
	ValidateSamples     int     `yaml:"validate_samples"`
	Optimizer           string  `yaml:"optimizer"`
	MomentumMu          float64 `yaml:"momentum"`
}

func DefaultConfig() Config {
	return Config{
		CheckpointDir:  "checkpoints",
		Device:         ml.DeviceCPU,
		Seed:           1,
		HiddenSize:     256,
		Dropout:        0.1,
		MaxInputLength: 30,
		Iterations:     75000,
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Bind registers a flag for every field, defaulting to the current value.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.TrainPath, "train", c.TrainPath, "training corpus (tokens<TAB>labels)")
	fs.StringVar(&c.DevPath, "dev", c.DevPath, "dev corpus")
	fs.StringVar(&c.EmbeddingsPath, "embeddings", c.EmbeddingsPath, "token vectors file")
	fs.StringVar(&c.CheckpointDir, "checkpoints", c.CheckpointDir, "checkpoint directory")
	fs.StringVar(&c.Device, "device", c.Device, "BLAS backend")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.IntVar(&c.HiddenSize, "hidden", c.HiddenSize, "hidden size")
	fs.Float64Var(&c.Dropout, "dropout", c.Dropout, "decoder dropout probability")
	fs.IntVar(&c.MaxInputLength, "max-input", c.MaxInputLength, "drop pairs with longer inputs (0 keeps all)")
	fs.BoolVar(&c.Normalize, "normalize", c.Normalize, "lowercase and strip accents from the corpus")
	fs.BoolVar(&c.FallbackUnk, "unk", c.FallbackUnk, "embed unknown tokens as "+data.UNK)
	fs.IntVar(&c.Iterations, "iters", c.Iterations, "training iterations")
	fs.Float64Var(&c.LearningRate, "lr", c.LearningRate, "learning rate")
	fs.Float64Var(&c.TeacherForcingRatio, "forcing", c.TeacherForcingRatio, "teacher forcing ratio (negative disables)")
	fs.IntVar(&c.PrintEvery, "print-every", c.PrintEvery, "report interval")
	fs.IntVar(&c.PlotEvery, "plot-every", c.PlotEvery, "loss history interval")
	fs.IntVar(&c.SaveEvery, "save-every", c.SaveEvery, "checkpoint interval")
	fs.IntVar(&c.ValidateSamples, "validate", c.ValidateSamples, "pairs per accuracy estimate")
	fs.StringVar(&c.Optimizer, "opt", c.Optimizer, "optimizer: sgd, momentum or adam")
	fs.Float64Var(&c.MomentumMu, "momentum", c.MomentumMu, "momentum coefficient")
}

func (c Config) Validate() error {
	if c.HiddenSize < 1 {
		return errors.Errorf("hidden size must be positive, got %d", c.HiddenSize)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %v", c.Dropout)
	}
	for name, v := range map[string]int{
		"print interval":     c.PrintEvery,
		"plot interval":      c.PlotEvery,
		"save interval":      c.SaveEvery,
		"validation samples": c.ValidateSamples,
		"iterations":         c.Iterations,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	switch ml.OptimizerType(c.Optimizer) {
	case "", ml.OptSGD, ml.OptMomentum, ml.OptAdam:
	default:
		return errors.Errorf("unknown optimizer %q", c.Optimizer)
	}
	return nil
}

func (c Config) Training() ml.TrainingConfig {
	return ml.TrainingConfig{
		Iterations:          c.Iterations,
		LearningRate:        c.LearningRate,
		TeacherForcingRatio: c.TeacherForcingRatio,
		PrintEvery:          c.PrintEvery,
		PlotEvery:           c.PlotEvery,
		SaveEvery:           c.SaveEvery,
		ValidateSamples:     c.ValidateSamples,
		Optimizer:           ml.OptimizerType(c.Optimizer),
		MomentumMu:          c.MomentumMu,
	}
}

func (c Config) LoadOptions() data.LoadOptions {
	return data.LoadOptions{MaxInputLength: c.MaxInputLength, Normalize: c.Normalize}
}
