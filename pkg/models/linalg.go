package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// defaultRidge is the L2 penalty on the standardized coefficients. Columns
// are centered and scaled to unit RMS before the solve, so the penalty is
// small next to a well-conditioned direction (squared singular value ~ n)
// and only damps directions that collinear columns leave undetermined.
const defaultRidge = 1e-4

// svdCutoff drops singular values below this fraction of the largest.
const svdCutoff = 1e-12

// fitRidge solves min ||y - Xb||² + lambda·||D·b[1:]||² where D scales each
// non-intercept column to unit RMS. Column 0 of X must be the intercept.
//
// The intercept is recovered from the column means. Columns with zero
// variance get a zero coefficient, so a constant history fits its mean.
func fitRidge(rows [][]float64, y []float64, lambda float64) (coeffs []float64, residualStdDev float64, err error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, 0, fmt.Errorf("design has %d rows for %d targets", n, len(y))
	}
	p := len(rows[0])
	if p == 0 {
		return nil, 0, errors.New("design has no columns")
	}
	for i, r := range rows {
		if len(r) != p {
			return nil, 0, fmt.Errorf("design row %d has %d columns, want %d", i, len(r), p)
		}
	}

	yMean := floats.Sum(y) / float64(n)
	coeffs = make([]float64, p)

	// standardize the regressors, skipping the intercept and flat columns
	var (
		active []int
		means  []float64
		scales []float64
	)
	col := make([]float64, n)
	for j := 1; j < p; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean := floats.Sum(col) / float64(n)
		floats.AddConst(-mean, col)
		scale := math.Sqrt(floats.Dot(col, col) / float64(n))
		if scale <= 1e-12*math.Max(1, math.Abs(mean)) {
			continue
		}
		active = append(active, j)
		means = append(means, mean)
		scales = append(scales, scale)
	}

	if len(active) > 0 {
		x := mat.NewDense(n, len(active), nil)
		for i, r := range rows {
			for k, j := range active {
				x.Set(i, k, (r[j]-means[k])/scales[k])
			}
		}
		yc := make([]float64, n)
		for i, v := range y {
			yc[i] = v - yMean
		}

		var svd mat.SVD
		if ok := svd.Factorize(x, mat.SVDThin); !ok {
			return nil, 0, errors.New("singular value decomposition failed")
		}
		s := svd.Values(nil)
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)

		var uty mat.VecDense
		uty.MulVec(u.T(), mat.NewVecDense(n, yc))
		for k, sv := range s {
			if sv <= svdCutoff*s[0] {
				uty.SetVec(k, 0)
				continue
			}
			uty.SetVec(k, uty.AtVec(k)*sv/(sv*sv+lambda))
		}

		var beta mat.VecDense
		beta.MulVec(&v, &uty)
		for k, j := range active {
			coeffs[j] = beta.AtVec(k) / scales[k]
		}
	}

	coeffs[0] = yMean
	for k, j := range active {
		coeffs[0] -= coeffs[j] * means[k]
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, 0, errors.New("fit produced non-finite coefficients")
		}
	}

	var sse float64
	for i, r := range rows {
		e := y[i] - floats.Dot(coeffs, r)
		sse += e * e
	}
	residualStdDev = math.Sqrt(sse / float64(n))

	return coeffs, residualStdDev, nil
}
