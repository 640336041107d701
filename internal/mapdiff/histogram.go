package mapdiff

import "math"

// Histogram counts values in equal-width bins over [Min, Max]. Values
// outside the range land in the edge bins.
type Histogram struct {
	Min    float64
	Max    float64
	Counts []int64
}

func NewHistogram(min, max float64, bins int) Histogram {
	if bins < 1 {
		bins = 1
	}
	return Histogram{Min: min, Max: max, Counts: make([]int64, bins)}
}

func (h *Histogram) Width() float64 { return (h.Max - h.Min) / float64(len(h.Counts)) }

func (h *Histogram) Add(v float64) {
	if math.IsNaN(v) {
		return
	}
	i := int((v - h.Min) / h.Width())
	if i < 0 {
		i = 0
	}
	if i >= len(h.Counts) {
		i = len(h.Counts) - 1
	}
	h.Counts[i]++
}

// Merge adds o's counts; both must share the same bins.
func (h *Histogram) Merge(o Histogram) {
	for i, c := range o.Counts {
		h.Counts[i] += c
	}
}

func (h *Histogram) Total() int64 {
	var n int64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Center returns the midpoint of bin i.
func (h *Histogram) Center(i int) float64 { return h.Min + (float64(i)+0.5)*h.Width() }

// Density returns the count of bin i scaled so the histogram integrates to 1.
func (h *Histogram) Density(i int) float64 {
	n := h.Total()
	if n == 0 {
		return 0
	}
	return float64(h.Counts[i]) / (float64(n) * h.Width())
}
