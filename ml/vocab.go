package ml

import (
	"encoding/gob"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	StartID = 0
	EndID   = 1

	StartSymbol = "<SOS>"
	EndSymbol   = "<EOS>"
)

// Vocabulary is a bijection between output symbols and dense ids. Ids 0 and
// 1 are reserved for the start and end symbols.
type Vocabulary struct {
	symbolToID map[string]int
	idToSymbol []string
}

func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		symbolToID: map[string]int{StartSymbol: StartID, EndSymbol: EndID},
		idToSymbol: []string{StartSymbol, EndSymbol},
	}
}

// Add inserts symbol with the next free id and returns its id. Adding a
// known symbol returns the existing id.
func (v *Vocabulary) Add(symbol string) int {
	if id, ok := v.symbolToID[symbol]; ok {
		return id
	}
	id := len(v.idToSymbol)
	v.symbolToID[symbol] = id
	v.idToSymbol = append(v.idToSymbol, symbol)
	return id
}

// AddSentence adds every whitespace separated symbol of labels.
func (v *Vocabulary) AddSentence(labels string) {
	for _, s := range strings.Fields(labels) {
		v.Add(s)
	}
}

func (v *Vocabulary) Size() int {
	return len(v.idToSymbol)
}

func (v *Vocabulary) SymbolToID(symbol string) (int, error) {
	id, ok := v.symbolToID[symbol]
	if !ok {
		return 0, errors.Wrapf(ErrLookup, "unknown symbol %q", symbol)
	}
	return id, nil
}

func (v *Vocabulary) IDToSymbol(id int) (string, error) {
	if id < 0 || id >= len(v.idToSymbol) {
		return "", errors.Wrapf(ErrLookup, "unknown id %d", id)
	}
	return v.idToSymbol[id], nil
}

// Encode maps symbols to ids and appends the end id.
func (v *Vocabulary) Encode(symbols []string) ([]int, error) {
	ids := make([]int, 0, len(symbols)+1)
	for _, s := range symbols {
		id, err := v.SymbolToID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return append(ids, EndID), nil
}

// Symbols returns the symbols in id order.
func (v *Vocabulary) Symbols() []string {
	return append([]string(nil), v.idToSymbol...)
}

func (v *Vocabulary) Save(path string) error {
	return saveGob(path, v.idToSymbol)
}

func LoadVocabulary(path string) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var symbols []string
	if err := gob.NewDecoder(file).Decode(&symbols); err != nil {
		return nil, errors.Wrap(err, "failed to decode vocabulary")
	}
	if len(symbols) < 2 || symbols[StartID] != StartSymbol || symbols[EndID] != EndSymbol {
		return nil, errors.Errorf("vocabulary %s is missing the reserved symbols", path)
	}
	v := NewVocabulary()
	for _, s := range symbols[2:] {
		v.Add(s)
	}
	return v, nil
}
