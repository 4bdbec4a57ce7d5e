// Package vectorize turns a batch of texts into a feature matrix. Every call
// is batch-scoped: vocabularies are fitted on the input and discarded after.
package vectorize

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Mode selects the feature space.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLexical, ModeSemantic:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown vectorizer mode %q", s)
}

// Matrix holds one row per input text, in input order. Rows is nil when the
// batch is empty or has no features.
type Matrix struct {
	Rows  *mat.Dense
	Terms []string // column labels for lexical matrices
	Mode  Mode

	n int
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return m.n
}

// Dim returns the number of columns.
func (m *Matrix) Dim() int {
	if m == nil || m.Rows == nil {
		return 0
	}
	_, c := m.Rows.Dims()
	return c
}

// Row returns row i. The slice aliases the matrix and must not be modified.
// Rows of a featureless matrix are empty.
func (m *Matrix) Row(i int) []float64 {
	if m.Rows == nil {
		return nil
	}
	return m.Rows.RawRowView(i)
}

func newMatrix(mode Mode, rows [][]float64, dim int, terms []string) *Matrix {
	m := &Matrix{Mode: mode, Terms: terms, n: len(rows)}
	if len(rows) == 0 || dim == 0 {
		return m
	}
	m.Rows = mat.NewDense(len(rows), dim, nil)
	for i, r := range rows {
		m.Rows.SetRow(i, r)
	}
	return m
}

// Vectorizer converts texts to a matrix whose row i corresponds to texts[i].
type Vectorizer interface {
	Mode() Mode
	FitTransform(ctx context.Context, texts []string) (*Matrix, error)
}
