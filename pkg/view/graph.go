package view

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"cascade/pkg/fit"
)

// Graph is a 1D view, typically counts versus time channel. The zero value
// is an empty graph.
type Graph struct {
	data []uint32
}

// NewGraph wraps data.
func NewGraph(data []uint32) *Graph {
	return &Graph{data: data}
}

// Width returns the number of points.
func (g *Graph) Width() int { return len(g.data) }

// At returns point i.
func (g *Graph) At(i int) uint32 { return g.data[i] }

// Data returns the points.
func (g *Graph) Data() []uint32 { return g.data }

// Sum returns the sum of all points.
func (g *Graph) Sum() uint64 {
	var s uint64
	for _, v := range g.data {
		s += uint64(v)
	}
	return s
}

// Min returns the smallest point, 0 for an empty graph.
func (g *Graph) Min() uint32 {
	if len(g.data) == 0 {
		return 0
	}
	m := g.data[0]
	for _, v := range g.data[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest point, 0 for an empty graph.
func (g *Graph) Max() uint32 {
	var m uint32
	for _, v := range g.data {
		if v > m {
			m = v
		}
	}
	return m
}

// IsLowerThan reports whether the graph holds fewer than total counts.
func (g *Graph) IsLowerThan(total uint64) bool {
	return g.Sum() < total
}

// Values returns the points as floats.
func (g *Graph) Values() []float64 {
	out := make([]float64, len(g.data))
	for i, v := range g.data {
		out[i] = float64(v)
	}
	return out
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	return &Graph{data: append([]uint32(nil), g.data...)}
}

// FitSinusoid fits one oscillation over the graph.
func (g *Graph) FitSinusoid(opts fit.SinusoidOptions) (fit.SinusoidResult, error) {
	return fit.Sinusoid(g.Values(), opts)
}

// Contrast fits the graph and returns its contrast. A non-nil underground
// graph times mult is subtracted from the offset first.
func (g *Graph) Contrast(underground *Graph, mult float64, opts fit.SinusoidOptions) (fit.ContrastResult, error) {
	var ug []float64
	if underground != nil {
		ug = underground.Values()
	}
	return fit.Contrast(g.Values(), ug, mult, opts)
}

// Save writes the graph as two columns: index and count.
func (g *Graph) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, v := range g.data {
		fmt.Fprintf(bw, "%d\t%d\n", i, v)
	}
	return bw.Flush()
}

// shift returns the graph rotated so that point i moves to (i+s) mod n.
func (g *Graph) shift(s int) []uint32 {
	n := len(g.data)
	out := make([]uint32, n)
	if n == 0 {
		return out
	}
	s = ((s % n) + n) % n
	for i, v := range g.data {
		out[(i+s)%n] = v
	}
	return out
}

// phaseShift converts a phase into a whole number of points for a period
// of n points.
func phaseShift(phase float64, n int) int {
	return int(math.Round(phase * float64(n) / (2 * math.Pi)))
}
