// Package lap solves the rectangular linear assignment problem with the
// shortest-augmenting-path formulation of the Hungarian method
// (Jonker-Volgenant class). Cost matrices need not be square: only
// min(rows, cols) pairs are produced and every produced pair belongs to a
// matching of minimum total cost.
package lap

import (
	"errors"
	"math"
)

var ErrRagged = errors.New("cost matrix rows have unequal lengths")

// Solve returns, for each row, the column it is matched to, or -1 when the
// row is left unmatched (possible only when rows > cols).
func Solve(cost [][]float64) ([]int, error) {
	rows := len(cost)
	if rows == 0 {
		return nil, nil
	}
	cols := len(cost[0])
	for _, row := range cost {
		if len(row) != cols {
			return nil, ErrRagged
		}
	}
	if cols == 0 {
		match := make([]int, rows)
		for i := range match {
			match[i] = -1
		}
		return match, nil
	}

	if rows <= cols {
		return solveWide(cost, rows, cols), nil
	}

	// Transpose so the augmenting loop always runs over the smaller side.
	transposed := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		transposed[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			transposed[j][i] = cost[i][j]
		}
	}
	colMatch := solveWide(transposed, cols, rows)
	match := make([]int, rows)
	for i := range match {
		match[i] = -1
	}
	for j, i := range colMatch {
		if i >= 0 {
			match[i] = j
		}
	}
	return match, nil
}

// TotalCost sums the cost of a row->col assignment, ignoring unmatched rows.
func TotalCost(cost [][]float64, match []int) float64 {
	var total float64
	for i, j := range match {
		if j >= 0 {
			total += cost[i][j]
		}
	}
	return total
}

// solveWide assumes rows <= cols. Classic potentials-based implementation,
// one augmenting path per row.
func solveWide(cost [][]float64, rows, cols int) []int {
	u := make([]float64, rows+1)
	v := make([]float64, cols+1)
	// colRow[j] is the row matched to column j (1-based, 0 = free).
	colRow := make([]int, cols+1)
	way := make([]int, cols+1)

	for i := 1; i <= rows; i++ {
		colRow[0] = i
		j0 := 0
		minv := make([]float64, cols+1)
		used := make([]bool, cols+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := colRow[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= cols; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= cols; j++ {
				if used[j] {
					u[colRow[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if colRow[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			colRow[j0] = colRow[j1]
			j0 = j1
		}
	}

	match := make([]int, rows)
	for j := 1; j <= cols; j++ {
		if colRow[j] > 0 {
			match[colRow[j]-1] = j - 1
		}
	}
	return match
}
