package viz

import (
	"math"
	"strings"
)

// Braille cells hold 2x4 dots; bit layout per cell:
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a dot matrix of Width*2 by Height*4 pixels drawn with braille
// characters.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set turns on the pixel at (x, y). Out-of-range pixels are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
}

// Pixel reports whether the pixel at (x, y) is on.
func (c *Canvas) Pixel(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&pixelMap[y%4][x%2] != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// DrawLine draws a Bresenham line between two pixels.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// scale maps data coordinates onto pixels so that the finite points of
// xs and ys fill the canvas.
func (c *Canvas) scale(xs, ys []float64) (px, py func(float64) int) {
	xmin, xmax := bounds(xs)
	ymin, ymax := bounds(ys)
	pw, ph := c.Width*2-1, c.Height*4-1
	px = func(v float64) int { return int(math.Round((v - xmin) / (xmax - xmin) * float64(pw))) }
	py = func(v float64) int { return ph - int(math.Round((v-ymin)/(ymax-ymin)*float64(ph))) }
	return px, py
}

// Plot draws the curve through (xs[i], ys[i]) scaled to fill the canvas.
// Non-finite points break the curve.
func (c *Canvas) Plot(xs, ys []float64) {
	n := min(len(xs), len(ys))
	if n == 0 {
		return
	}
	px, py := c.scale(xs[:n], ys[:n])

	prevOK := false
	var lx, ly int
	for i := 0; i < n; i++ {
		if !finite(xs[i]) || !finite(ys[i]) {
			prevOK = false
			continue
		}
		x, y := px(xs[i]), py(ys[i])
		if prevOK {
			c.DrawLine(lx, ly, x, y)
		} else {
			c.Set(x, y)
		}
		lx, ly, prevOK = x, y, true
	}
}

// Scatter draws the finite points (xs[i], ys[i]) unconnected.
func (c *Canvas) Scatter(xs, ys []float64) {
	n := min(len(xs), len(ys))
	if n == 0 {
		return
	}
	px, py := c.scale(xs[:n], ys[:n])
	for i := 0; i < n; i++ {
		if finite(xs[i]) && finite(ys[i]) {
			c.Set(px(xs[i]), py(ys[i]))
		}
	}
}

// bounds returns a non-empty range covering the finite values.
func bounds(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if finite(x) {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
	}
	if lo > hi {
		return -1, 1
	}
	if hi-lo < 1e-12 {
		return lo - 1, hi + 1
	}
	return lo, hi
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
