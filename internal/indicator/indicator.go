// Package indicator computes the technical series used by strategies.
// Every series is aligned to its input and holds NaN until the window is full.
package indicator

import (
	"math"

	"tradecore/internal/schema"
)

// Closes extracts close prices as floats.
func Closes(bars []schema.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// SMA over the last p points.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= p {
			sum -= x[i-p]
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA with smoothing 2/(p+1), seeded with SMA(p) at index p-1.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := nanSeries(len(x))
	if len(x) < p {
		return out
	}
	k := 2.0 / float64(p+1)

	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI with Wilder smoothing. The first value lands at index p.
func RSI(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := nanSeries(len(x))
	if len(x) <= p {
		return out
	}

	var gain, loss float64
	for i := 1; i <= p; i++ {
		g, l := change(x[i-1], x[i])
		gain += g
		loss += l
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)

	for i := p + 1; i < len(x); i++ {
		g, l := change(x[i-1], x[i])
		gain = (gain*float64(p-1) + g) / float64(p)
		loss = (loss*float64(p-1) + l) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

// WarmUp returns how many points the longest of the given windows needs
// before producing a value, for EMA (p) and RSI (p+1).
func WarmUp(emaPeriods []int, rsiPeriods []int) int {
	var n int
	for _, p := range emaPeriods {
		n = max(n, p)
	}
	for _, p := range rsiPeriods {
		n = max(n, p+1)
	}
	return n
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
