// Package export renders stored maps and traces as standalone SVG images.
package export

import (
	"fmt"
	"math"
	"strings"
)

// MapToSVG renders a pixel map as a grid of cells of the given size on a
// diverging palette: blue below zero, red above, white at zero, scaled by
// the largest absolute finite value. Non-finite pixels are drawn grey.
func MapToSVG(rows [][]float64, cellSize float64) string {
	if len(rows) == 0 || cellSize <= 0 {
		return ""
	}

	scale := 0.0
	for _, row := range rows {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				scale = math.Max(scale, math.Abs(v))
			}
		}
	}
	if scale == 0 {
		scale = 1
	}

	width := float64(len(rows[0])) * cellSize
	height := float64(len(rows)) * cellSize

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" shape-rendering="crispEdges">
`, width, height, width, height))

	for i, row := range rows {
		for j, v := range row {
			sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>
`, float64(j)*cellSize, float64(i)*cellSize, cellSize, cellSize, diverging(v/scale)))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// diverging maps t in [-1, 1] to a blue-white-red color.
func diverging(t float64) string {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return "#808080"
	}
	t = math.Max(-1, math.Min(1, t))
	r, g, b := 255, 255, 255
	fade := int(math.Round(255 * (1 - math.Abs(t))))
	if t > 0 {
		g, b = fade, fade
	} else if t < 0 {
		r, g = fade, fade
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// TraceToSVG draws values against their index as a polyline with 10%
// padding on each axis. Non-finite values are skipped.
func TraceToSVG(values []float64, width, height int, strokeColor string) string {
	type point struct{ x, y float64 }
	var points []point
	for i, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			points = append(points, point{float64(i), v})
		}
	}
	if len(points) < 2 {
		return ""
	}

	minX, maxX := points[0].x, points[len(points)-1].x
	minY, maxY := points[0].y, points[0].y
	for _, p := range points {
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, p := range points {
		x := (p.x - minX) / rangeX * float64(width)
		y := float64(height) - (p.y-minY)/rangeY*float64(height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
