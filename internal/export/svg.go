// Package export renders trajectories as standalone SVG documents.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/ivpsolve/internal/viz"
)

type SVGOptions struct {
	Width, Height int
	Stroke        string
	Background    string
}

func (o SVGOptions) withDefaults() SVGOptions {
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	if o.Stroke == "" {
		o.Stroke = "#00d7ff"
	}
	if o.Background == "" {
		o.Background = "#0a0a0a"
	}
	return o
}

// TrajectorySVG writes the curve through (xs[i], ys[i]) as one SVG path
// with a 10% margin. Non-finite points break the path.
func TrajectorySVG(w io.Writer, xs, ys []float64, opts SVGOptions) error {
	n := min(len(xs), len(ys))
	if n < 2 {
		return fmt.Errorf("svg: need at least 2 points, got %d", n)
	}
	opts = opts.withDefaults()

	minX, maxX := finiteRange(xs[:n])
	minY, maxY := finiteRange(ys[:n])
	if math.IsInf(minX, 1) || math.IsInf(minY, 1) {
		return fmt.Errorf("svg: no finite points")
	}
	minX, maxX = pad(minX, maxX)
	minY, maxY = pad(minY, maxY)
	width, height := float64(opts.Width), float64(opts.Height)

	bw := bufio.NewWriter(w)
	header(bw, opts.Width, opts.Height, opts.Background)
	fmt.Fprintf(bw, "<path fill=\"none\" stroke=\"%s\" stroke-width=\"1.5\" d=\"", opts.Stroke)

	move := true
	for i := 0; i < n; i++ {
		if !finite(xs[i]) || !finite(ys[i]) {
			move = true
			continue
		}
		x := (xs[i] - minX) / (maxX - minX) * width
		y := height - (ys[i]-minY)/(maxY-minY)*height
		cmd := "L"
		if move {
			cmd = "M"
		}
		fmt.Fprintf(bw, "%s%.1f,%.1f ", cmd, x, y)
		move = false
	}

	bw.WriteString("\"/>\n</svg>\n")
	return bw.Flush()
}

// CanvasSVG writes every lit pixel of c as a dot, scale units apart.
func CanvasSVG(w io.Writer, c *viz.Canvas, scale float64, opts SVGOptions) error {
	if c == nil {
		return fmt.Errorf("svg: nil canvas")
	}
	if !(scale > 0) {
		scale = 4
	}
	opts = opts.withDefaults()
	pw, ph := c.Width*2, c.Height*4

	bw := bufio.NewWriter(w)
	header(bw, int(float64(pw)*scale), int(float64(ph)*scale), opts.Background)
	fmt.Fprintf(bw, "<g fill=\"%s\">\n", opts.Stroke)
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			if c.Pixel(x, y) {
				fmt.Fprintf(bw, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
					(float64(x)+0.5)*scale, (float64(y)+0.5)*scale, 0.4*scale)
			}
		}
	}
	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

func header(w io.Writer, width, height int, background string) {
	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n"+
		"<rect width=\"100%%\" height=\"100%%\" fill=\"%s\"/>\n",
		width, height, width, height, background)
}

func finiteRange(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if finite(x) {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
	}
	return lo, hi
}

func pad(lo, hi float64) (float64, float64) {
	r := hi - lo
	if r == 0 {
		r = 1
	}
	return lo - 0.1*r, hi + 0.1*r
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
