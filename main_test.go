package main

import (
	"flag"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/b0tShaman/neuro-chunker/ml"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigFlag(t *testing.T) {
	cases := map[string][]string{
		"a.yaml": {"-iters", "5", "-config", "a.yaml"},
		"b.yaml": {"--config=b.yaml", "-lr", "0.1"},
		"":       {"-iters", "5"},
	}
	for want, args := range cases {
		if got := configFlag(args); got != want {
			t.Errorf("configFlag(%v) = %q, want %q", args, got, want)
		}
	}
}

func TestLoadConfigAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", "train: corpus.tsv\nhidden_size: 32\noptimizer: adam\ndropout: 0.2\n")

	cfg, err := parseConfig("train", []string{"-config", path, "-hidden", "16"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TrainPath != "corpus.tsv" || cfg.HiddenSize != 16 || cfg.Dropout != 0.2 {
		t.Errorf("config %+v", cfg)
	}
	if cfg.MaxInputLength != 30 || cfg.CheckpointDir != "checkpoints" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	tc := cfg.Training()
	if tc.Optimizer != ml.OptAdam {
		t.Errorf("optimizer %q", tc.Optimizer)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Dropout = 1 },
		func(c *Config) { c.Dropout = -0.1 },
		func(c *Config) { c.HiddenSize = 0 },
		func(c *Config) { c.Optimizer = "rmsprop" },
		func(c *Config) { c.ValidateSamples = -1 },
		func(c *Config) { c.PrintEvery = -1 },
		func(c *Config) { c.PlotEvery = -5 },
		func(c *Config) { c.SaveEvery = -1 },
		func(c *Config) { c.Iterations = -1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if cfg.Validate() == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Error(err)
	}
}

func TestConfigBindsEveryFlag(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.Bind(fs)
	err := fs.Parse([]string{"-train", "t.tsv", "-dev", "d.tsv", "-forcing", "-1", "-unk", "-normalize", "-opt", "momentum"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TrainPath != "t.tsv" || cfg.DevPath != "d.tsv" || cfg.TeacherForcingRatio != -1 ||
		!cfg.FallbackUnk || !cfg.Normalize || cfg.Optimizer != "momentum" {
		t.Errorf("config %+v", cfg)
	}
}

func TestStopOnSignal(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	stop := stopOnSignal(sigs, make(chan struct{}))
	sigs <- syscall.SIGINT
	select {
	case <-stop:
	case <-time.After(time.Second):
		t.Fatal("stop not closed after a signal")
	}

	sigs = make(chan os.Signal, 1)
	done := make(chan struct{})
	stop = stopOnSignal(sigs, done)
	close(done)
	time.Sleep(10 * time.Millisecond)
	sigs <- syscall.SIGINT
	select {
	case <-stop:
		t.Error("watcher still running after done was closed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	corpus := writeFile(t, dir, "train.tsv",
		"0__we [[[ 1__saw 2__dogs ]]]\tX O X\n"+
			"0__dogs [[[ 1__saw ]]]\tO X\n")
	vectors := writeFile(t, dir, "vectors.txt",
		"0__we 0.1 0.2 0.3\n"+
			"1__saw -0.3 0.1 0.0\n"+
			"2__dogs 0.5 -0.5 0.2\n"+
			"0__dogs 0.4 0.4 -0.1\n")
	ckpt := filepath.Join(dir, "ckpt")
	common := []string{"-embeddings", vectors, "-checkpoints", ckpt, "-hidden", "4"}

	err := runTrain(append([]string{"-train", corpus, "-dev", corpus, "-iters", "20",
		"-print-every", "10", "-save-every", "10", "-validate", "2"}, common...))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{vocabFile, modelFile, "encoder.20.gob", "decoder.20.gob", "encoder.10.gob"} {
		if _, err := os.Stat(filepath.Join(ckpt, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	model, err := readModelConfig(ckpt)
	if err != nil {
		t.Fatal(err)
	}
	// Longest input (5 tokens) plus the decode margin.
	if model.HiddenSize != 4 || model.MaxLength != 10 {
		t.Errorf("model config %+v", model)
	}

	if err := runEval(append([]string{"-dev", corpus}, common...)); err != nil {
		t.Error(err)
	}
	if err := runChunk(append([]string{"-phrase", "0__we [[[ 1__saw ]]]", "-iter", "10"}, common...)); err != nil {
		t.Error(err)
	}
	if err := runChunk(append([]string{"-phrase", "0__we unknown"}, common...)); err == nil {
		t.Error("chunking an unknown token succeeded without -unk")
	}
	if err := runChunk(append([]string{"-phrase", "0__we unknown", "-unk"}, common...)); err != nil {
		t.Error(err)
	}
	if err := runDiagnose(append([]string{"-dev", corpus, "-n", "2"}, common...)); err != nil {
		t.Error(err)
	}
}
