package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"

	"github.com/b0tShaman/neuro-chunker/data"
	"github.com/b0tShaman/neuro-chunker/ml"
)

const (
	vocabFile = "vocab.gob"
	modelFile = "model.yaml"
)

const usage = `usage: neuro-chunker <command> [flags]

commands:
  train     train a model on a corpus
  eval      accuracy of a checkpoint on a corpus
  chunk     label a tokenized phrase
  diagnose  gold-step probabilities and the worst splits`

// -------- MAIN -------- //
func main() {
	if len(os.Args) < 2 {
		essentials.Die(usage)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "train":
		err = runTrain(args)
	case "eval":
		err = runEval(args)
	case "chunk":
		err = runChunk(args)
	case "diagnose":
		err = runDiagnose(args)
	default:
		essentials.Die(usage)
	}
	if err != nil {
		essentials.Die(err)
	}
}

// parseConfig reads -config first, then lets the remaining flags override it.
func parseConfig(name string, args []string, extra func(*flag.FlagSet)) (Config, error) {
	configPath := configFlag(args)
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("config", configPath, "YAML config file")
	cfg.Bind(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// configFlag finds the value of -config (or --config) in args.
func configFlag(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadEmbedder(cfg Config) (ml.Embedder, error) {
	if cfg.EmbeddingsPath == "" {
		return nil, errors.New("required flag: -embeddings")
	}
	fmt.Println("Loading embeddings...")
	emb, err := data.LoadStaticEmbeddings(cfg.EmbeddingsPath, data.DefaultSpecialTokens)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackUnk {
		return data.FallbackEmbedder{Embedder: emb, Unknown: data.UNK}, nil
	}
	return emb, nil
}

func writeModelConfig(dir string, mc ml.ModelConfig) error {
	raw, err := yaml.Marshal(map[string]any{
		"hidden_size": mc.HiddenSize,
		"max_length":  mc.MaxLength,
		"dropout":     mc.Dropout,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, modelFile), raw, 0o644)
}

func readModelConfig(dir string) (ml.ModelConfig, error) {
	var meta struct {
		HiddenSize int     `yaml:"hidden_size"`
		MaxLength  int     `yaml:"max_length"`
		Dropout    float64 `yaml:"dropout"`
	}
	raw, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return ml.ModelConfig{}, err
	}
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return ml.ModelConfig{}, errors.Wrap(err, "parse model config")
	}
	return ml.ModelConfig{HiddenSize: meta.HiddenSize, MaxLength: meta.MaxLength, Dropout: meta.Dropout}, nil
}

func runTrain(args []string) error {
	cfg, err := parseConfig("train", args, nil)
	if err != nil {
		return err
	}
	if cfg.TrainPath == "" {
		return errors.New("required flag: -train")
	}
	dev, err := ml.NewDevice(cfg.Device, cfg.Seed)
	if err != nil {
		return err
	}

	fmt.Println("Loading dataset...")
	trainPairs, err := data.LoadPairs(cfg.TrainPath, cfg.LoadOptions())
	if err != nil {
		return err
	}
	var devPairs []ml.Pair
	if cfg.DevPath != "" {
		if devPairs, err = data.LoadPairs(cfg.DevPath, cfg.LoadOptions()); err != nil {
			return err
		}
	}
	vocab := data.BuildVocabulary(trainPairs, devPairs)
	model := ml.ModelConfig{
		HiddenSize: cfg.HiddenSize,
		MaxLength:  data.DecodeLength(trainPairs, devPairs),
		Dropout:    cfg.Dropout,
	}
	fmt.Printf("Loaded %d train / %d dev pairs, %d label symbols, max length %d\n",
		len(trainPairs), len(devPairs), vocab.Size(), model.MaxLength)

	embedder, err := loadEmbedder(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return err
	}
	if err := vocab.Save(filepath.Join(cfg.CheckpointDir, vocabFile)); err != nil {
		return err
	}
	if err := writeModelConfig(cfg.CheckpointDir, model); err != nil {
		return err
	}

	chunker := ml.NewChunker(model, vocab, embedder, dev)
	store := ml.GobCheckpointStore{Dir: cfg.CheckpointDir}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	stop := stopOnSignal(sigs, done)

	fmt.Printf("Running on device %s\n\n", dev.Name)
	result, err := ml.Train(chunker.Encoder, chunker.Decoder, vocab, trainPairs, devPairs, model.MaxLength, cfg.Training(), ml.TrainEnv{
		Device:      dev,
		Checkpoints: store,
		Progress:    ml.ConsoleProgress{W: os.Stdout},
		Stop:        stop,
	})
	if err != nil {
		return err
	}
	if result.Interrupted {
		return nil
	}
	if err := chunker.Save(store, result.Iterations); err != nil {
		return err
	}

	if len(devPairs) > 0 {
		report, err := ml.Validate(chunker.Encoder, chunker.Decoder, vocab, devPairs, model.MaxLength, len(devPairs), dev.Rand)
		if err != nil {
			return err
		}
		printReport("dev", report)
	}
	return nil
}

// stopOnSignal returns a channel that is closed on the first signal. The
// watcher goroutine exits when done is closed.
func stopOnSignal(sigs <-chan os.Signal, done <-chan struct{}) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			fmt.Println("\nInterrupted, saving checkpoint...")
			close(stop)
		case <-done:
		}
	}()
	return stop
}

func loadChunker(cfg Config, iteration int) (*ml.Chunker, *ml.Device, error) {
	dev, err := ml.NewDevice(cfg.Device, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	vocab, err := ml.LoadVocabulary(filepath.Join(cfg.CheckpointDir, vocabFile))
	if err != nil {
		return nil, nil, err
	}
	model, err := readModelConfig(cfg.CheckpointDir)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := loadEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	chunker, err := ml.LoadChunker(ml.GobCheckpointStore{Dir: cfg.CheckpointDir}, iteration, model, vocab, embedder, dev)
	return chunker, dev, err
}

// loadFitting loads path, dropping pairs the model cannot decode within maxLength.
func loadFitting(cfg Config, path string, maxLength int) ([]ml.Pair, error) {
	pairs, err := data.LoadPairs(path, cfg.LoadOptions())
	if err != nil {
		return nil, err
	}
	fitting := pairs[:0]
	for _, p := range pairs {
		if len(p.Input) <= maxLength && len(p.Target) < maxLength {
			fitting = append(fitting, p)
		}
	}
	if dropped := len(pairs) - len(fitting); dropped > 0 {
		fmt.Printf("Dropped %d pairs longer than max length %d\n", dropped, maxLength)
	}
	return fitting, nil
}

func printReport(name string, r ml.ValidationReport) {
	fmt.Printf("%s accuracy: %.4f (%d/%d, skipped %d, scored accuracy %.4f)\n",
		name, r.Accuracy(), r.Correct, r.Attempted, r.Skipped, r.ScoredAccuracy())
}

func runEval(args []string) error {
	var iteration, n int
	cfg, err := parseConfig("eval", args, func(fs *flag.FlagSet) {
		fs.IntVar(&iteration, "iter", -1, "checkpoint iteration (-1 for latest)")
		fs.IntVar(&n, "n", 0, "pairs to evaluate (0 for all)")
	})
	if err != nil {
		return err
	}
	path := cfg.DevPath
	if path == "" {
		path = cfg.TrainPath
	}
	if path == "" {
		return errors.New("required flag: -dev or -train")
	}
	chunker, dev, err := loadChunker(cfg, iteration)
	if err != nil {
		return err
	}
	pairs, err := loadFitting(cfg, path, chunker.MaxLength)
	if err != nil {
		return err
	}
	if n <= 0 {
		n = len(pairs)
	}
	report, err := ml.Validate(chunker.Encoder, chunker.Decoder, chunker.Vocab, pairs, chunker.MaxLength, n, dev.Rand)
	if err != nil {
		return err
	}
	printReport(filepath.Base(path), report)

	sentences, err := ml.ValidateSentences(chunker.Encoder, chunker.Decoder, chunker.Vocab, pairs, chunker.MaxLength, n, data.SharesContext)
	if err != nil {
		return err
	}
	printReport(filepath.Base(path)+" sentence", sentences)
	return nil
}

func runChunk(args []string) error {
	var iteration int
	var phrase string
	cfg, err := parseConfig("chunk", args, func(fs *flag.FlagSet) {
		fs.IntVar(&iteration, "iter", -1, "checkpoint iteration (-1 for latest)")
		fs.StringVar(&phrase, "phrase", "", "space separated tokens to label (empty reads stdin)")
	})
	if err != nil {
		return err
	}
	chunker, _, err := loadChunker(cfg, iteration)
	if err != nil {
		return err
	}
	prepare := strings.Fields
	if cfg.Normalize {
		prepare = func(s string) []string { return strings.Fields(data.Normalize(s)) }
	}
	if phrase == "" {
		return ml.InferenceTxt(chunker, os.Stdin, os.Stdout, prepare)
	}
	tokens := prepare(phrase)
	labels, err := chunker.Chunk(tokens)
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(labels, " "))
	return nil
}

func runDiagnose(args []string) error {
	var iteration, n int
	var threshold float64
	cfg, err := parseConfig("diagnose", args, func(fs *flag.FlagSet) {
		fs.IntVar(&iteration, "iter", -1, "checkpoint iteration (-1 for latest)")
		fs.IntVar(&n, "n", 100, "pairs to inspect")
		fs.Float64Var(&threshold, "threshold", 0.1, "minimum gold probability for \"not that wrong\"")
	})
	if err != nil {
		return err
	}
	path := cfg.DevPath
	if path == "" {
		return errors.New("required flag: -dev")
	}
	chunker, _, err := loadChunker(cfg, iteration)
	if err != nil {
		return err
	}
	pairs, err := loadFitting(cfg, path, chunker.MaxLength)
	if err != nil {
		return err
	}
	report, err := ml.Diagnose(chunker.Encoder, chunker.Decoder, chunker.Vocab, pairs, chunker.MaxLength, threshold, n)
	if err != nil {
		return err
	}
	for _, d := range report.Flagged {
		fmt.Println("--")
		fmt.Println(strings.Join(data.ReadableTokens(d.Pair.Input), " "))
		rendered, err := data.RenderSplit(d.Pair.Input, d.Pair.Target, d.Probs)
		if err != nil {
			fmt.Printf("(%v, lowest probability %.3f)\n", err, d.MinProb())
			continue
		}
		fmt.Println(rendered)
	}
	fmt.Printf("correct: %.1f%%\n", report.CorrectPercent())
	fmt.Printf("not that wrong (> %.1f%%): %.1f%%\n", 100*threshold, report.NotThatWrongPercent())
	fmt.Printf("pretty wrong: %.1f%%\n", report.PrettyWrongPercent())
	fmt.Printf("skipped: %d\n", report.Skipped)
	return nil
}
