package domain

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Window is a time-bounded buffer of the most recent samples, retained just
// long enough to serve the longest-window gate. Pruning is by timestamp, with
// a fixed capacity as a backstop against bursty sources.
type Window struct {
	retention time.Duration
	capacity  int
	samples   []InstrumentSample
}

// NewWindow creates a rolling window. Retention should cover the steady-wind
// gate's window; capacity bounds memory when the source outpaces the
// expected sample rate.
func NewWindow(retention time.Duration, capacity int) *Window {
	if capacity <= 0 {
		capacity = 256
	}
	return &Window{
		retention: retention,
		capacity:  capacity,
		samples:   make([]InstrumentSample, 0, capacity),
	}
}

// Append adds a sample and drops entries older than the retention horizon.
// Samples are assumed to arrive in time order.
func (w *Window) Append(s InstrumentSample) {
	w.samples = append(w.samples, s)

	cutoff := s.Time.Add(-w.retention)
	start := 0
	for start < len(w.samples)-1 && w.samples[start].Time.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.samples = append(w.samples[:0], w.samples[start:]...)
	}
	for len(w.samples) > w.capacity {
		w.samples = append(w.samples[:0], w.samples[1:]...)
	}
}

// Since returns the samples with Time >= cutoff, oldest first. The returned
// slice aliases the window's storage and is only valid until the next Append.
func (w *Window) Since(cutoff time.Time) []InstrumentSample {
	for i, s := range w.samples {
		if !s.Time.Before(cutoff) {
			return w.samples[i:]
		}
	}
	return nil
}

// Len returns the number of buffered samples.
func (w *Window) Len() int { return len(w.samples) }

// Reset discards all buffered samples.
func (w *Window) Reset() { w.samples = w.samples[:0] }

// LastWithHeading returns the most recent n samples that carry a heading,
// oldest first.
func (w *Window) LastWithHeading(n int) []InstrumentSample {
	out := make([]InstrumentSample, 0, n)
	for i := len(w.samples) - 1; i >= 0 && len(out) < n; i-- {
		if w.samples[i].Heading != nil {
			out = append(out, w.samples[i])
		}
	}
	// reverse into time order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// CircularDelta returns the minimum angular distance between two headings
// in degrees, always in [0, 180]. 350 -> 10 yields 20, not 340.
func CircularDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	d = math.Mod(d, 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// foldSigned wraps an angular offset into [-180, 180).
func foldSigned(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// Stdev returns the sample standard deviation of xs, or 0 for fewer than
// two values.
func Stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// AngleStdev returns the sample standard deviation of a set of angles in
// degrees, computed as deviations from the circular mean so a set straddling
// the 0/360 seam (e.g. 358, 2) reads as tight, not as a ~250 degree spread.
func AngleStdev(angles []float64) float64 {
	if len(angles) < 2 {
		return 0
	}

	var sumSin, sumCos float64
	for _, a := range angles {
		r := a * math.Pi / 180
		sumSin += math.Sin(r)
		sumCos += math.Cos(r)
	}
	mean := math.Atan2(sumSin, sumCos) * 180 / math.Pi

	devs := make([]float64, len(angles))
	for i, a := range angles {
		devs[i] = foldSigned(a - mean)
	}
	return stat.StdDev(devs, nil)
}
