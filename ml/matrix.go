package ml

import (
	"bytes"
	"encoding/gob"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix represents a dense matrix with a flat data slice for performance.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	data := make([]float64, rows*cols)
	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

func NewMatrixFromSlice(rows, cols int, data []float64) *Matrix {
	if len(data) != rows*cols {
		panic("Slice length mismatch")
	}

	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) GobEncode() ([]byte, error) {
	w := new(bytes.Buffer)
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(m.rows); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.cols); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.data); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *Matrix) GobDecode(buf []byte) error {
	r := bytes.NewBuffer(buf)
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(&m.rows); err != nil {
		return err
	}
	if err := decoder.Decode(&m.cols); err != nil {
		return err
	}
	if err := decoder.Decode(&m.data); err != nil {
		return err
	}
	// gob drops empty slices
	if m.data == nil {
		m.data = make([]float64, m.rows*m.cols)
	}

	// Re-create the wrapper after loading data
	m.dense = mat.NewDense(m.rows, m.cols, m.data)

	return nil
}

func (m *Matrix) Rows() int       { return m.rows }
func (m *Matrix) Cols() int       { return m.cols }
func (m *Matrix) Data() []float64 { return m.data }

// Row returns a view of row i. Writes go through to the matrix.
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// RandomizeUniform fills m from U(-limit, limit), the default init of
// recurrent and linear layers.
func (m *Matrix) RandomizeUniform(rng *rand.Rand, limit float64) {
	for i := range m.data {
		m.data[i] = (rng.Float64()*2 - 1) * limit
	}
}

// RandomizeNormal fills m from N(0, std^2).
func (m *Matrix) RandomizeNormal(rng *rand.Rand, std float64) {
	for i := range m.data {
		m.data[i] = rng.NormFloat64() * std
	}
}

func (m *Matrix) Reset() {
	for i := range m.data {
		m.data[i] = 0.0
	}
}

// MulVec writes m*x into out. len(x) must equal cols, len(out) rows.
func (m *Matrix) MulVec(x, out []float64) {
	if len(x) != m.cols || len(out) != m.rows {
		panic("Shape mismatch in MulVec")
	}
	dst := mat.NewVecDense(m.rows, out)
	dst.MulVec(m.dense, mat.NewVecDense(m.cols, x))
}

// MulTransVecAdd accumulates m^T*dy into dx. This is the backward pass of MulVec
// with respect to its input.
func (m *Matrix) MulTransVecAdd(dy, dx []float64) {
	if len(dy) != m.rows || len(dx) != m.cols {
		panic("Shape mismatch in MulTransVecAdd")
	}
	tmp := mat.NewVecDense(m.cols, nil)
	tmp.MulVec(m.dense.T(), mat.NewVecDense(m.rows, dy))
	floats.Add(dx, tmp.RawVector().Data)
}

// AddOuter accumulates the outer product dy*x^T into m. This is the
// backward pass of MulVec with respect to the matrix.
func (m *Matrix) AddOuter(dy, x []float64) {
	if len(dy) != m.rows || len(x) != m.cols {
		panic("Shape mismatch in AddOuter")
	}
	m.dense.RankOne(m.dense, 1, mat.NewVecDense(m.rows, dy), mat.NewVecDense(m.cols, x))
}
