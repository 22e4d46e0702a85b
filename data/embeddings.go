package data

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/b0tShaman/neuro-chunker/ml"
)

// DefaultSpecialTokens get one-hot vectors of their own in front of the
// pretrained dimensions.
var DefaultSpecialTokens = []string{"sos", "eos", "[[[", "]]]", UNK}

const UNK = "<unk>"

// StaticEmbeddings maps tokens to precomputed vectors. Tokens carry their
// context in the corpus (e.g. "12__bank"), so a lookup per token is already
// contextual. Every vector is laid out as [special one-hot | pretrained].
type StaticEmbeddings struct {
	special   map[string]int
	nSpecial  int
	vectorDim int
	vectors   map[string][]float64
}

// NewStaticEmbeddings checks that every vector has the same width.
func NewStaticEmbeddings(special []string, vectors map[string][]float64) (*StaticEmbeddings, error) {
	e := &StaticEmbeddings{
		special:   make(map[string]int, len(special)),
		nSpecial:  len(special),
		vectorDim: -1,
		vectors:   vectors,
	}
	for i, tok := range special {
		e.special[tok] = i
	}
	for tok, v := range vectors {
		if e.vectorDim < 0 {
			e.vectorDim = len(v)
		}
		if len(v) != e.vectorDim {
			return nil, errors.Wrapf(ml.ErrShapeMismatch, "vector for %q has width %d, want %d", tok, len(v), e.vectorDim)
		}
	}
	if e.vectorDim < 0 {
		e.vectorDim = 0
	}
	if e.Dim() == 0 {
		return nil, errors.New("embeddings have zero width")
	}
	return e, nil
}

// LoadStaticEmbeddings reads a text vectors file: one "token v1 v2 ..." per line.
func LoadStaticEmbeddings(path string, special []string) (*StaticEmbeddings, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vectors := make(map[string][]float64)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		vec := make([]float64, len(fields)-1)
		for i, f := range fields[1:] {
			if vec[i], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, errors.Wrapf(err, "%s:%d", path, lineNo)
			}
		}
		vectors[fields[0]] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return NewStaticEmbeddings(special, vectors)
}

func (e *StaticEmbeddings) Dim() int {
	return e.nSpecial + e.vectorDim
}

func (e *StaticEmbeddings) VectorFor(sentence []string, position int) ([]float64, error) {
	if position < 0 || position >= len(sentence) {
		return nil, errors.Wrapf(ml.ErrShapeMismatch, "position %d outside sentence of length %d", position, len(sentence))
	}
	token := sentence[position]
	out := make([]float64, e.Dim())
	if i, ok := e.special[token]; ok {
		out[i] = 1
		return out, nil
	}
	v, ok := e.vectors[token]
	if !ok {
		return nil, errors.Wrapf(ml.ErrLookup, "no embedding for %q", token)
	}
	copy(out[e.nSpecial:], v)
	return out, nil
}

// FallbackEmbedder retries unknown tokens as Unknown.
type FallbackEmbedder struct {
	ml.Embedder
	Unknown string
}

func (f FallbackEmbedder) VectorFor(sentence []string, position int) ([]float64, error) {
	v, err := f.Embedder.VectorFor(sentence, position)
	if err == nil || !ml.IsLookup(err) {
		return v, err
	}
	replaced := append([]string(nil), sentence...)
	replaced[position] = f.Unknown
	return f.Embedder.VectorFor(replaced, position)
}
