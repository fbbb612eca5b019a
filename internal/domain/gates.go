package domain

import "time"

// GateThresholds holds the tunable limits for the four instantaneous gates.
type GateThresholds struct {
	// ChargingVolts is the bus voltage above which the engine's alternator
	// is assumed to be running, used only when no RPM sender is wired.
	ChargingVolts float64
	// MaxTurnRate is the rate-of-turn ceiling in degrees per second.
	MaxTurnRate float64
	// MaxWindSpeedStdev and MaxWindAngleStdev bound wind variability over
	// the trailing WindWindow.
	MaxWindSpeedStdev float64
	MaxWindAngleStdev float64
	// MinSTW is the minimum speed through water in knots.
	MinSTW float64
	// WindWindow is the trailing window for the steady-wind gate.
	WindWindow time.Duration
	// MinWindSamples is the minimum number of wind readings inside
	// WindWindow before a standard deviation is meaningful.
	MinWindSamples int
}

// DefaultGateThresholds returns the operational limits the engine ships with.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		ChargingVolts:     14.2,
		MaxTurnRate:       3.0,
		MaxWindSpeedStdev: 3.0,
		MaxWindAngleStdev: 15.0,
		MinSTW:            1.0,
		WindWindow:        30 * time.Second,
		MinWindSamples:    3,
	}
}

// EvaluateGates classifies the latest sample against the four instantaneous
// gates. SteadyState is left at its zero value; the engine derives it from
// eligibility over time.
func EvaluateGates(s InstrumentSample, w *Window, th GateThresholds) GateSnapshot {
	return GateSnapshot{
		EngineOff:     evaluateEngineOff(s, th),
		StableHeading: evaluateStableHeading(w, th),
		SteadyWind:    evaluateSteadyWind(s, w, th),
		MinSpeed:      evaluateMinSpeed(s, th),
	}
}

// evaluateEngineOff passes when the engine is demonstrably off. With no RPM
// sender it falls back to bus voltage: an alternator charging underway holds
// the bus above the charging threshold.
func evaluateEngineOff(s InstrumentSample, th GateThresholds) Verdict {
	if s.EngineRPM != nil {
		if *s.EngineRPM <= 0 {
			return VerdictPass
		}
		return VerdictFail
	}
	if s.BusVoltage != nil {
		if *s.BusVoltage < th.ChargingVolts {
			return VerdictPass
		}
		return VerdictFail
	}
	return VerdictUnavailable
}

// evaluateStableHeading computes rate of turn from the two most recent
// heading readings using the wrap-aware delta.
func evaluateStableHeading(w *Window, th GateThresholds) Verdict {
	pair := w.LastWithHeading(2)
	if len(pair) < 2 {
		return VerdictUnavailable
	}

	dt := pair[1].Time.Sub(pair[0].Time).Seconds()
	if dt <= 0 {
		return VerdictUnavailable
	}

	rot := CircularDelta(*pair[0].Heading, *pair[1].Heading) / dt
	if rot <= th.MaxTurnRate {
		return VerdictPass
	}
	return VerdictFail
}

// evaluateSteadyWind bounds the standard deviation of wind speed and wind
// angle across the trailing window. Fewer than MinWindSamples readings make
// the statistic meaningless, so the verdict degrades to Unavailable.
func evaluateSteadyWind(s InstrumentSample, w *Window, th GateThresholds) Verdict {
	recent := w.Since(s.Time.Add(-th.WindWindow))

	speeds := make([]float64, 0, len(recent))
	angles := make([]float64, 0, len(recent))
	for _, r := range recent {
		if r.TWS != nil && r.TWA != nil {
			speeds = append(speeds, *r.TWS)
			angles = append(angles, *r.TWA)
		}
	}
	if len(speeds) < th.MinWindSamples {
		return VerdictUnavailable
	}

	if Stdev(speeds) <= th.MaxWindSpeedStdev && AngleStdev(angles) <= th.MaxWindAngleStdev {
		return VerdictPass
	}
	return VerdictFail
}

func evaluateMinSpeed(s InstrumentSample, th GateThresholds) Verdict {
	if s.STW == nil {
		return VerdictUnavailable
	}
	if *s.STW >= th.MinSTW {
		return VerdictPass
	}
	return VerdictFail
}
