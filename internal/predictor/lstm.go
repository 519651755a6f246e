package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LSTMWeights is the on-disk form of a single-layer LSTM with a dense head.
// Matrices use the Keras layout with gates ordered input, forget, cell, output.
type LSTMWeights struct {
	Units           int         `json:"units"`
	Kernel          [][]float64 `json:"kernel"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel"`
	Bias            []float64   `json:"bias"`
	DenseKernel     []float64   `json:"dense_kernel"`
	DenseBias       float64     `json:"dense_bias"`
}

// LSTM evaluates a trained sequence model on a feature window
type LSTM struct {
	inputs    int
	units     int
	kernel    *mat.Dense // inputs x 4*units
	recurrent *mat.Dense // units x 4*units
	bias      *mat.VecDense
	dense     *mat.VecDense
	denseBias float64
}

// NewLSTM validates weight shapes and builds the model
func NewLSTM(w LSTMWeights) (*LSTM, error) {
	h := w.Units
	if h < 1 {
		return nil, fmt.Errorf("units must be >= 1, got %d", h)
	}
	if len(w.Kernel) == 0 {
		return nil, fmt.Errorf("kernel is empty")
	}
	kernel, err := dense(w.Kernel, len(w.Kernel), 4*h)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	recurrent, err := dense(w.RecurrentKernel, h, 4*h)
	if err != nil {
		return nil, fmt.Errorf("recurrent_kernel: %w", err)
	}
	if len(w.Bias) != 4*h {
		return nil, fmt.Errorf("bias: expected %d values, got %d", 4*h, len(w.Bias))
	}
	if len(w.DenseKernel) != h {
		return nil, fmt.Errorf("dense_kernel: expected %d values, got %d", h, len(w.DenseKernel))
	}
	return &LSTM{
		inputs:    len(w.Kernel),
		units:     h,
		kernel:    kernel,
		recurrent: recurrent,
		bias:      mat.NewVecDense(4*h, append([]float64(nil), w.Bias...)),
		dense:     mat.NewVecDense(h, append([]float64(nil), w.DenseKernel...)),
		denseBias: w.DenseBias,
	}, nil
}

// LoadLSTM reads JSON weights from path
func LoadLSTM(path string) (*LSTM, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w LSTMWeights
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewLSTM(w)
}

func dense(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("expected %d rows, got %d", r, len(rows))
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, c, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// Predict runs the window through the recurrent layer and returns the
// dense projection of the final hidden state
func (m *LSTM) Predict(ctx context.Context, window [][]float64) (float64, error) {
	if len(window) == 0 {
		return 0, fmt.Errorf("empty window")
	}
	h := m.units
	hidden := mat.NewVecDense(h, nil)
	cell := mat.NewVecDense(h, nil)
	z := mat.NewVecDense(4*h, nil)
	rec := mat.NewVecDense(4*h, nil)

	for step, x := range window {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if len(x) != m.inputs {
			return 0, fmt.Errorf("step %d: expected %d features, got %d", step, m.inputs, len(x))
		}
		xv := mat.NewVecDense(m.inputs, append([]float64(nil), x...))

		z.MulVec(m.kernel.T(), xv)
		rec.MulVec(m.recurrent.T(), hidden)
		z.AddVec(z, rec)
		z.AddVec(z, m.bias)

		for j := 0; j < h; j++ {
			i := sigmoid(z.AtVec(j))
			f := sigmoid(z.AtVec(h + j))
			g := math.Tanh(z.AtVec(2*h + j))
			o := sigmoid(z.AtVec(3*h + j))
			c := f*cell.AtVec(j) + i*g
			cell.SetVec(j, c)
			hidden.SetVec(j, o*math.Tanh(c))
		}
	}

	return mat.Dot(hidden, m.dense) + m.denseBias, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
