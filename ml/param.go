package ml

// Param is one trainable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value *Matrix
	Grad  *Matrix
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: NewMatrix(rows, cols),
		Grad:  NewMatrix(rows, cols),
	}
}

// Snapshot copies the current values, keyed by name. Used by tests and by
// callers that want to compare weights before and after a step.
func Snapshot(params []*Param) map[string][]float64 {
	out := make(map[string][]float64, len(params))
	for _, p := range params {
		out[p.Name] = append([]float64(nil), p.Value.data...)
	}
	return out
}
