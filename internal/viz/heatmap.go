package viz

import (
	"math"
	"strings"
)

// shades runs from the lowest to the highest value.
const shades = " .:-=+*#%@"

// Heatmap renders a square pixel map with one shade per cell, two columns
// wide for a roughly square aspect. Maps with more than maxCells rows are
// block averaged down to fit. Non-finite pixels render as '?'.
func Heatmap(rows [][]float64, maxCells int) string {
	if len(rows) == 0 {
		return ""
	}
	cells := downsample(rows, maxCells)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range cells {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
	}
	span := hi - lo
	if !(span > 0) {
		span = 1
	}

	ramp := []rune(shades)
	var b strings.Builder
	for _, row := range cells {
		for _, v := range row {
			c := '?'
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				idx := int((v - lo) / span * float64(len(ramp)-1))
				c = ramp[min(max(idx, 0), len(ramp)-1)]
			}
			b.WriteRune(c)
			b.WriteRune(c)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func downsample(rows [][]float64, maxCells int) [][]float64 {
	n := len(rows)
	if maxCells <= 0 || n <= maxCells {
		return rows
	}
	block := (n + maxCells - 1) / maxCells
	m := (n + block - 1) / block
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, m)
		for j := range out[i] {
			var sum float64
			var count int
			for di := 0; di < block && i*block+di < n; di++ {
				row := rows[i*block+di]
				for dj := 0; dj < block && j*block+dj < len(row); dj++ {
					sum += row[j*block+dj]
					count++
				}
			}
			out[i][j] = sum / float64(count)
		}
	}
	return out
}
