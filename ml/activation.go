package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

func Relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Softmax writes the softmax of v into out (out may alias v).
func Softmax(v, out []float64) {
	maxVal := floats.Max(v)
	sum := 0.0
	for i, x := range v {
		e := math.Exp(x - maxVal)
		out[i] = e
		sum += e
	}
	floats.Scale(1/sum, out)
}

// LogSoftmax writes log(softmax(v)) into out (out may alias v).
func LogSoftmax(v, out []float64) {
	maxVal := floats.Max(v)
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxVal)
	}
	logSum := maxVal + math.Log(sum)
	for i, x := range v {
		out[i] = x - logSum
	}
}

// logSoftmaxBackward maps the gradient w.r.t. log-probabilities to the
// gradient w.r.t. the logits.
func logSoftmaxBackward(logProbs, dLogProbs []float64) []float64 {
	total := floats.Sum(dLogProbs)
	dLogits := make([]float64, len(logProbs))
	for i, lp := range logProbs {
		dLogits[i] = dLogProbs[i] - math.Exp(lp)*total
	}
	return dLogits
}

// softmaxBackward maps the gradient w.r.t. probabilities to the gradient
// w.r.t. the logits: ds_i = p_i * (dp_i - <p, dp>).
func softmaxBackward(probs, dProbs []float64) []float64 {
	dot := floats.Dot(probs, dProbs)
	dLogits := make([]float64, len(probs))
	for i, p := range probs {
		dLogits[i] = p * (dProbs[i] - dot)
	}
	return dLogits
}

// nllLoss is the negative log-likelihood of target under logProbs and its
// gradient w.r.t. logProbs.
func nllLoss(logProbs []float64, target int) (float64, []float64) {
	grad := make([]float64, len(logProbs))
	grad[target] = -1
	return -logProbs[target], grad
}

// argmax finds the index of the maximum value. Ties resolve to the lowest index.
func argmax(v []float64) int {
	return floats.MaxIdx(v)
}

// topK returns the indices of the k largest values, best first.
func topK(v []float64, k int) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return v[idx[i]] > v[idx[j]]
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func allFinite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
