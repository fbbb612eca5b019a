package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func windowWith(samples ...InstrumentSample) *Window {
	w := NewWindow(time.Minute, 100)
	for _, s := range samples {
		w.Append(s)
	}
	return w
}

func TestEvaluateEngineOff(t *testing.T) {
	th := DefaultGateThresholds()

	tests := []struct {
		name   string
		sample InstrumentSample
		want   Verdict
	}{
		{"rpm zero", InstrumentSample{Time: t0, EngineRPM: i(0)}, VerdictPass},
		{"rpm negative sentinel", InstrumentSample{Time: t0, EngineRPM: i(-1)}, VerdictPass},
		{"rpm running", InstrumentSample{Time: t0, EngineRPM: i(1200)}, VerdictFail},
		{"no rpm, battery voltage", InstrumentSample{Time: t0, BusVoltage: f(12.6)}, VerdictPass},
		{"no rpm, alternator charging", InstrumentSample{Time: t0, BusVoltage: f(14.4)}, VerdictFail},
		{"voltage exactly at threshold", InstrumentSample{Time: t0, BusVoltage: f(14.2)}, VerdictFail},
		{"rpm beats voltage", InstrumentSample{Time: t0, EngineRPM: i(0), BusVoltage: f(14.8)}, VerdictPass},
		{"neither input", InstrumentSample{Time: t0}, VerdictUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateEngineOff(tt.sample, th))
		})
	}
}

func TestEvaluateStableHeading(t *testing.T) {
	th := DefaultGateThresholds()

	t.Run("steady course passes", func(t *testing.T) {
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(135)},
			InstrumentSample{Time: t0.Add(time.Second), Heading: f(137)},
		)
		assert.Equal(t, VerdictPass, evaluateStableHeading(w, th))
	})

	t.Run("turn fails", func(t *testing.T) {
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(135)},
			InstrumentSample{Time: t0.Add(time.Second), Heading: f(145)},
		)
		assert.Equal(t, VerdictFail, evaluateStableHeading(w, th))
	})

	t.Run("wrap-aware rate of turn", func(t *testing.T) {
		// 350 -> 10 over 10s is 2 deg/s, not 34 deg/s.
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(350)},
			InstrumentSample{Time: t0.Add(10 * time.Second), Heading: f(10)},
		)
		assert.Equal(t, VerdictPass, evaluateStableHeading(w, th))
	})

	t.Run("exactly at the limit passes", func(t *testing.T) {
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(0)},
			InstrumentSample{Time: t0.Add(time.Second), Heading: f(3)},
		)
		assert.Equal(t, VerdictPass, evaluateStableHeading(w, th))
	})

	t.Run("single heading is unavailable", func(t *testing.T) {
		w := windowWith(InstrumentSample{Time: t0, Heading: f(135)})
		assert.Equal(t, VerdictUnavailable, evaluateStableHeading(w, th))
	})

	t.Run("headingless samples are skipped", func(t *testing.T) {
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(135)},
			InstrumentSample{Time: t0.Add(time.Second)},
			InstrumentSample{Time: t0.Add(2 * time.Second), Heading: f(136)},
		)
		assert.Equal(t, VerdictPass, evaluateStableHeading(w, th))
	})

	t.Run("coincident timestamps are unavailable", func(t *testing.T) {
		w := windowWith(
			InstrumentSample{Time: t0, Heading: f(135)},
			InstrumentSample{Time: t0, Heading: f(175)},
		)
		assert.Equal(t, VerdictUnavailable, evaluateStableHeading(w, th))
	})
}

func TestEvaluateSteadyWind(t *testing.T) {
	th := DefaultGateThresholds()

	windSample := func(offset time.Duration, tws, twa float64) InstrumentSample {
		return InstrumentSample{Time: t0.Add(offset), TWS: f(tws), TWA: f(twa)}
	}

	t.Run("steady wind passes", func(t *testing.T) {
		w := windowWith(
			windSample(0, 11, 40),
			windSample(10*time.Second, 12, 45),
			windSample(20*time.Second, 11.5, 42),
		)
		latest := windSample(20*time.Second, 11.5, 42)
		assert.Equal(t, VerdictPass, evaluateSteadyWind(latest, w, th))
	})

	t.Run("gusty speed fails", func(t *testing.T) {
		w := windowWith(
			windSample(0, 8, 40),
			windSample(10*time.Second, 18, 40),
			windSample(20*time.Second, 9, 40),
		)
		latest := windSample(20*time.Second, 9, 40)
		assert.Equal(t, VerdictFail, evaluateSteadyWind(latest, w, th))
	})

	t.Run("shifty angle fails", func(t *testing.T) {
		w := windowWith(
			windSample(0, 12, 20),
			windSample(10*time.Second, 12, 80),
			windSample(20*time.Second, 12, 30),
		)
		latest := windSample(20*time.Second, 12, 30)
		assert.Equal(t, VerdictFail, evaluateSteadyWind(latest, w, th))
	})

	t.Run("two samples are unavailable", func(t *testing.T) {
		w := windowWith(
			windSample(0, 12, 45),
			windSample(10*time.Second, 12, 45),
		)
		latest := windSample(10*time.Second, 12, 45)
		assert.Equal(t, VerdictUnavailable, evaluateSteadyWind(latest, w, th))
	})

	t.Run("samples outside window are ignored", func(t *testing.T) {
		// Three readings exist but only two are inside the trailing 30s.
		w := windowWith(
			windSample(0, 12, 45),
			windSample(35*time.Second, 12, 45),
			windSample(40*time.Second, 12, 45),
		)
		latest := windSample(40*time.Second, 12, 45)
		assert.Equal(t, VerdictUnavailable, evaluateSteadyWind(latest, w, th))
	})

	t.Run("windless samples do not count", func(t *testing.T) {
		w := windowWith(
			windSample(0, 12, 45),
			InstrumentSample{Time: t0.Add(5 * time.Second)},
			InstrumentSample{Time: t0.Add(10 * time.Second)},
			windSample(15*time.Second, 12, 45),
		)
		latest := windSample(15*time.Second, 12, 45)
		assert.Equal(t, VerdictUnavailable, evaluateSteadyWind(latest, w, th))
	})
}

func TestEvaluateMinSpeed(t *testing.T) {
	th := DefaultGateThresholds()

	tests := []struct {
		name   string
		sample InstrumentSample
		want   Verdict
	}{
		{"sailing speed", InstrumentSample{Time: t0, STW: f(6.0)}, VerdictPass},
		{"exactly one knot", InstrumentSample{Time: t0, STW: f(1.0)}, VerdictPass},
		{"drifting", InstrumentSample{Time: t0, STW: f(0.4)}, VerdictFail},
		{"no log sensor", InstrumentSample{Time: t0}, VerdictUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateMinSpeed(tt.sample, th))
		})
	}
}

func TestEvaluateGatesLeavesSteadyStateUnset(t *testing.T) {
	w := windowWith(InstrumentSample{Time: t0, STW: f(6), EngineRPM: i(0)})
	g := EvaluateGates(InstrumentSample{Time: t0, STW: f(6), EngineRPM: i(0)}, w, DefaultGateThresholds())

	assert.Equal(t, VerdictPass, g.EngineOff)
	assert.Equal(t, VerdictPass, g.MinSpeed)
	assert.Equal(t, VerdictUnavailable, g.StableHeading)
	assert.Equal(t, VerdictUnavailable, g.SteadyWind)
	assert.Equal(t, Verdict(""), g.SteadyState)
}
