// Package linalg solves dense square linear systems for the Newton iteration.
//
// Every strategy satisfies [Solver]; the gonum factorizations back all of
// them except [FullPivotLU], which gonum does not provide.
package linalg

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrSingular            = errors.New("linalg: matrix is singular")
	ErrNotSquare           = errors.New("linalg: matrix is not square")
	ErrNotPositiveDefinite = errors.New("linalg: matrix is not positive definite")
	ErrDimensionMismatch   = errors.New("linalg: right-hand side length does not match matrix")
)

// Solver returns x with a·x = b. Implementations must not modify a or b.
// A system with a NaN or infinite entry yields an all-NaN solution and no
// error, so a diverging caller sees a non-finite iterate.
type Solver interface {
	Solve(a *mat.Dense, b []float64) ([]float64, error)
}

func checkSystem(a *mat.Dense, b []float64) (int, error) {
	r, c := a.Dims()
	if r != c {
		return 0, fmt.Errorf("%w: %dx%d", ErrNotSquare, r, c)
	}
	if len(b) != r {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(b), r)
	}
	return r, nil
}

// nonFinite reports whether a or b holds a NaN or infinite entry.
func nonFinite(a *mat.Dense, b []float64) bool {
	if !isFinite(b) {
		return true
	}
	r, _ := a.Dims()
	for i := 0; i < r; i++ {
		if !isFinite(a.RawRowView(i)) {
			return true
		}
	}
	return false
}

func isFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func nanVector(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.NaN()
	}
	return x
}

// conditionErr maps gonum's condition warning onto the package errors.
// Finite ill-conditioning keeps the computed solution.
func conditionErr(err error) error {
	if err == nil {
		return nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		if math.IsInf(float64(cond), 1) || math.IsNaN(float64(cond)) {
			return ErrSingular
		}
		return nil
	}
	return err
}

// PartialPivotLU factorizes PA = LU with row pivoting.
type PartialPivotLU struct{}

func (PartialPivotLU) Solve(a *mat.Dense, b []float64) ([]float64, error) {
	n, err := checkSystem(a, b)
	if err != nil {
		return nil, err
	}
	if nonFinite(a, b) {
		return nanVector(n), nil
	}
	var lu mat.LU
	lu.Factorize(a)

	x := mat.NewVecDense(n, nil)
	if err := conditionErr(lu.SolveVecTo(x, false, mat.NewVecDense(n, cloneSlice(b)))); err != nil {
		return nil, err
	}
	return finite(x.RawVector().Data)
}

// HouseholderQR solves through A = QR.
type HouseholderQR struct{}

func (HouseholderQR) Solve(a *mat.Dense, b []float64) ([]float64, error) {
	n, err := checkSystem(a, b)
	if err != nil {
		return nil, err
	}
	if nonFinite(a, b) {
		return nanVector(n), nil
	}
	var qr mat.QR
	qr.Factorize(a)

	x := mat.NewVecDense(n, nil)
	if err := conditionErr(qr.SolveVecTo(x, false, mat.NewVecDense(n, cloneSlice(b)))); err != nil {
		return nil, err
	}
	return finite(x.RawVector().Data)
}

// Cholesky solves through A = LLᵀ using the symmetric part of a.
type Cholesky struct{}

func (Cholesky) Solve(a *mat.Dense, b []float64) ([]float64, error) {
	n, err := checkSystem(a, b)
	if err != nil {
		return nil, err
	}
	if nonFinite(a, b) {
		return nanVector(n), nil
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, ErrNotPositiveDefinite
	}

	x := mat.NewVecDense(n, nil)
	if err := conditionErr(chol.SolveVecTo(x, mat.NewVecDense(n, cloneSlice(b)))); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}

// FullPivotLU performs Gaussian elimination with complete pivoting on a copy of a.
type FullPivotLU struct {
	// Threshold below which a pivot counts as zero. Zero means n·eps·max|a_ij|.
	Threshold float64
}

func (f FullPivotLU) Solve(a *mat.Dense, b []float64) ([]float64, error) {
	n, err := checkSystem(a, b)
	if err != nil {
		return nil, err
	}
	if nonFinite(a, b) {
		return nanVector(n), nil
	}

	m := mat.DenseCopyOf(a)
	rhs := cloneSlice(b)
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}

	threshold := f.Threshold
	if threshold == 0 {
		threshold = float64(n) * epsilon * mat.Norm(m, math.Inf(1))
	}

	for k := 0; k < n; k++ {
		pr, pc, best := k, k, -1.0
		for i := k; i < n; i++ {
			for j := k; j < n; j++ {
				if v := math.Abs(m.At(i, j)); v > best {
					pr, pc, best = i, j, v
				}
			}
		}
		if best <= threshold || best == 0 {
			return nil, ErrSingular
		}

		if pr != k {
			swapRows(m, pr, k)
			rhs[pr], rhs[k] = rhs[k], rhs[pr]
		}
		if pc != k {
			swapCols(m, pc, k)
			cols[pc], cols[k] = cols[k], cols[pc]
		}

		pivot := m.At(k, k)
		for i := k + 1; i < n; i++ {
			factor := m.At(i, k) / pivot
			if factor == 0 {
				continue
			}
			for j := k; j < n; j++ {
				m.Set(i, j, m.At(i, j)-factor*m.At(k, j))
			}
			rhs[i] -= factor * rhs[k]
		}
	}

	z := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := rhs[i]
		for j := i + 1; j < n; j++ {
			sum -= m.At(i, j) * z[j]
		}
		z[i] = sum / m.At(i, i)
	}

	x := make([]float64, n)
	for i, c := range cols {
		x[c] = z[i]
	}
	return x, nil
}

var epsilon = math.Nextafter(1, 2) - 1

func swapRows(m *mat.Dense, i, j int) {
	_, c := m.Dims()
	for k := 0; k < c; k++ {
		a, b := m.At(i, k), m.At(j, k)
		m.Set(i, k, b)
		m.Set(j, k, a)
	}
}

func swapCols(m *mat.Dense, i, j int) {
	r, _ := m.Dims()
	for k := 0; k < r; k++ {
		a, b := m.At(k, i), m.At(k, j)
		m.Set(k, i, b)
		m.Set(k, j, a)
	}
}

func finite(x []float64) ([]float64, error) {
	if !isFinite(x) {
		return nil, ErrSingular
	}
	return x, nil
}

func cloneSlice(s []float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	return c
}

var solvers = map[string]func() Solver{
	"lu":      func() Solver { return PartialPivotLU{} },
	"full-lu": func() Solver { return FullPivotLU{} },
	"qr":      func() Solver { return HouseholderQR{} },
	"llt":     func() Solver { return Cholesky{} },
}

// ByName returns the solver registered under name.
func ByName(name string) (Solver, error) {
	fn, ok := solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown linear solver: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(solvers))
	for name := range solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
