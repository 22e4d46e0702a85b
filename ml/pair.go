package ml

import "strings"

// Pair is one example: an input token sequence and its gold label symbols.
type Pair struct {
	Input  []string
	Target []string
}

// TargetString is the gold label sequence as compared during validation.
func (p Pair) TargetString() string {
	return strings.Join(p.Target, " ")
}

func (p Pair) InputString() string {
	return strings.Join(p.Input, " ")
}
