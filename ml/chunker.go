package ml

import (
	"github.com/pkg/errors"
)

// ModelConfig fixes the architecture; it must match between training and
// loading a checkpoint.
type ModelConfig struct {
	HiddenSize int
	MaxLength  int
	Dropout    float64
}

// Chunker bundles a trained encoder/decoder pair with its vocabulary.
type Chunker struct {
	Encoder   *Encoder
	Decoder   *AttnDecoder
	Vocab     *Vocabulary
	MaxLength int
}

// NewChunker builds a freshly initialised model for vocab.
func NewChunker(cfg ModelConfig, vocab *Vocabulary, embedder Embedder, dev *Device) *Chunker {
	return &Chunker{
		Encoder:   NewEncoder(cfg.HiddenSize, embedder, dev.Rand),
		Decoder:   NewAttnDecoder(cfg.HiddenSize, vocab.Size(), cfg.MaxLength, cfg.Dropout, dev.Rand),
		Vocab:     vocab,
		MaxLength: cfg.MaxLength,
	}
}

// LoadChunker restores the encoder and decoder saved at iteration. A
// negative iteration picks the latest decoder checkpoint.
func LoadChunker(store GobCheckpointStore, iteration int, cfg ModelConfig, vocab *Vocabulary, embedder Embedder, dev *Device) (*Chunker, error) {
	if iteration < 0 {
		latest, err := store.Latest("decoder")
		if err != nil {
			return nil, err
		}
		if latest < 0 {
			return nil, errors.Errorf("no checkpoints in %s", store.Dir)
		}
		iteration = latest
	}
	c := NewChunker(cfg, vocab, embedder, dev)
	if err := store.Load("encoder", iteration, c.Encoder.Params()); err != nil {
		return nil, errors.Wrap(err, "load encoder")
	}
	if err := store.Load("decoder", iteration, c.Decoder.Params()); err != nil {
		return nil, errors.Wrap(err, "load decoder")
	}
	return c, nil
}

// Chunk returns the predicted label symbols for tokens, without the end marker.
func (c *Chunker) Chunk(tokens []string) ([]string, error) {
	predicted, _, err := Evaluate(c.Encoder, c.Decoder, c.Vocab, tokens, c.MaxLength)
	if err != nil {
		return nil, err
	}
	return stripEnd(predicted), nil
}

// Save writes both components under iteration.
func (c *Chunker) Save(store CheckpointStore, iteration int) error {
	if err := store.Save("encoder", iteration, c.Encoder.Params()); err != nil {
		return err
	}
	return store.Save("decoder", iteration, c.Decoder.Params())
}
