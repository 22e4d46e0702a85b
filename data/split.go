package data

import (
	"fmt"
	"slices"
	"strings"

	"github.com/b0tShaman/neuro-chunker/ml"
	"github.com/pkg/errors"
)

const (
	OpenMarker  = "[[["
	CloseMarker = "]]]"

	// label symbols
	Split   = "X"
	NoSplit = "O"
)

// ReadableToken strips the context prefix of a corpus token ("12__bank" -> "bank").
func ReadableToken(tok string) string {
	if i := strings.LastIndex(tok, "__"); i >= 0 {
		return tok[i+2:]
	}
	return tok
}

func ReadableTokens(sentence []string) []string {
	out := make([]string, len(sentence))
	for i, tok := range sentence {
		out[i] = ReadableToken(tok)
	}
	return out
}

// SharesContext reports whether two pairs have a context token in common,
// which marks them as windows over the same source sentence.
func SharesContext(a, b ml.Pair) bool {
	seen := make(map[string]struct{}, len(a.Input))
	for _, tok := range a.Input {
		if strings.Contains(tok, "__") {
			seen[tok] = struct{}{}
		}
	}
	for _, tok := range b.Input {
		if _, ok := seen[tok]; ok {
			return true
		}
	}
	return false
}

// TokensToSplit returns the readable tokens between the open and close markers.
func TokensToSplit(sentence []string) ([]string, error) {
	toks := ReadableTokens(sentence)
	open := slices.Index(toks, OpenMarker)
	if open < 0 {
		return nil, errors.Errorf("sentence has no %s marker", OpenMarker)
	}
	closing := slices.Index(toks, CloseMarker)
	if closing < open {
		return nil, errors.Errorf("sentence has no %s marker after %s", CloseMarker, OpenMarker)
	}
	return toks[open+1 : closing], nil
}

// RenderSplit draws the gold labels over the marked span. Confident splits
// print "|"; splits and non-splits the model doubted are flagged with the
// probability it gave the gold label.
func RenderSplit(sentence, labels []string, probs []float64) (string, error) {
	toks, err := TokensToSplit(sentence)
	if err != nil {
		return "", err
	}
	markers := append(append([]string(nil), labels...), "E")
	n := min(len(toks), len(markers), len(probs))

	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(" ")
		b.WriteString(toks[i])
		p := probs[i]
		switch {
		case markers[i] == Split && p >= 0.5:
			b.WriteString(" |")
		case markers[i] == Split:
			fmt.Fprintf(&b, " !|!__%.1f%%", p*100)
		case markers[i] == NoSplit && p < 0.5:
			fmt.Fprintf(&b, " ?|?__%.1f%%", p*100)
		default:
			b.WriteString("  ")
		}
	}
	return strings.TrimSpace(b.String()), nil
}
