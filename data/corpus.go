package data

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/b0tShaman/neuro-chunker/ml"
)

// DecodeMargin is added to the longest input to get the decode max length.
const DecodeMargin = 5

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Normalize lowercases, trims and removes combining marks from s.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

type LoadOptions struct {
	// MaxInputLength drops pairs with longer inputs. Zero keeps everything.
	MaxInputLength int
	// Normalize applies Normalize to both columns.
	Normalize bool
}

// LoadPairs reads a corpus of "tokens<TAB>labels" lines.
func LoadPairs(path string, opts LoadOptions) ([]ml.Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var pairs []ml.Pair
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			return nil, errors.Errorf("%s:%d: expected 2 tab separated columns, got %d", path, lineNo, len(cols))
		}
		input, labels := strings.TrimSpace(cols[0]), strings.TrimSpace(cols[1])
		if opts.Normalize {
			input = Normalize(input)
		}
		pair := ml.Pair{Input: strings.Fields(input), Target: strings.Fields(labels)}
		if opts.MaxInputLength > 0 && len(pair.Input) > opts.MaxInputLength {
			continue
		}
		pairs = append(pairs, pair)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return pairs, nil
}

// BuildVocabulary collects every label symbol of the given corpora.
func BuildVocabulary(corpora ...[]ml.Pair) *ml.Vocabulary {
	vocab := ml.NewVocabulary()
	for _, pairs := range corpora {
		for _, p := range pairs {
			for _, s := range p.Target {
				vocab.Add(s)
			}
		}
	}
	return vocab
}

// DecodeLength is the longest input (or target plus end symbol) across the
// corpora, plus DecodeMargin.
func DecodeLength(corpora ...[]ml.Pair) int {
	longest := 1
	for _, pairs := range corpora {
		for _, p := range pairs {
			longest = max(longest, len(p.Input), len(p.Target)+1)
		}
	}
	return longest + DecodeMargin
}
