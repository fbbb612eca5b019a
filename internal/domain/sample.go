package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSample marks samples whose values are physically implausible.
// Callers reject these before gating; they never reach the bucket store.
var ErrInvalidSample = errors.New("invalid sample")

// InstrumentSample is one instant of onboard data. Pointer fields are nil
// when the corresponding sensor did not report on this tick.
type InstrumentSample struct {
	Time       time.Time
	TWS        *float64 // true wind speed, knots
	TWA        *float64 // true wind angle, degrees relative to bow
	STW        *float64 // speed through water, knots
	Heading    *float64 // magnetic heading, degrees 0-360
	EngineRPM  *int
	BusVoltage *float64

	ReceivedAt time.Time
}

// SamplePayload is the flat JSON shape published by the bus gateway. It is
// exported so fixture generators can produce wire-identical payloads.
type SamplePayload struct {
	Timestamp  int64    `json:"ts"` // milliseconds since epoch
	TWS        *float64 `json:"tws,omitempty"`
	TWA        *float64 `json:"twa,omitempty"`
	STW        *float64 `json:"stw,omitempty"`
	Heading    *float64 `json:"hdg,omitempty"`
	EngineRPM  *int     `json:"rpm,omitempty"`
	BusVoltage *float64 `json:"volts,omitempty"`
}

// ParseSample deserializes a gateway JSON payload into an InstrumentSample.
func ParseSample(data []byte) (InstrumentSample, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return InstrumentSample{}, fmt.Errorf("parse sample: %w", err)
	}
	if p.Timestamp <= 0 {
		return InstrumentSample{}, fmt.Errorf("parse sample: missing or non-positive ts %d", p.Timestamp)
	}

	return InstrumentSample{
		Time:       time.UnixMilli(p.Timestamp).UTC(),
		TWS:        p.TWS,
		TWA:        p.TWA,
		STW:        p.STW,
		Heading:    p.Heading,
		EngineRPM:  p.EngineRPM,
		BusVoltage: p.BusVoltage,
		ReceivedAt: clock.Now(),
	}, nil
}

// Validate reports whether the sample's present fields are physically
// plausible. Missing fields are fine; a gate that needs them reports
// Unavailable instead.
func (s InstrumentSample) Validate() error {
	if s.Time.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidSample)
	}
	if s.TWS != nil && (*s.TWS < 0 || *s.TWS > 120) {
		return fmt.Errorf("%w: wind speed %.1f kt out of range", ErrInvalidSample, *s.TWS)
	}
	if s.TWA != nil && (*s.TWA < -180 || *s.TWA > 360) {
		return fmt.Errorf("%w: wind angle %.1f out of range", ErrInvalidSample, *s.TWA)
	}
	if s.STW != nil && (*s.STW < 0 || *s.STW > 60) {
		return fmt.Errorf("%w: speed through water %.1f kt out of range", ErrInvalidSample, *s.STW)
	}
	if s.Heading != nil && (*s.Heading < 0 || *s.Heading >= 360) {
		return fmt.Errorf("%w: heading %.1f out of range", ErrInvalidSample, *s.Heading)
	}
	if s.BusVoltage != nil && (*s.BusVoltage < 0 || *s.BusVoltage > 60) {
		return fmt.Errorf("%w: bus voltage %.1f out of range", ErrInvalidSample, *s.BusVoltage)
	}
	return nil
}

// Verdict is the result of evaluating one gate.
type Verdict string

const (
	// VerdictPass means the gate's condition holds.
	VerdictPass Verdict = "pass"
	// VerdictFail means the gate's condition is violated.
	VerdictFail Verdict = "fail"
	// VerdictUnavailable means the gate's required inputs are missing.
	// It never counts as a hard failure, so vessels with unwired sensors
	// are not starved out of the pipeline.
	VerdictUnavailable Verdict = "unavailable"
)

// GateSnapshot holds the five independent gate verdicts for one sample.
type GateSnapshot struct {
	EngineOff     Verdict `json:"engine_off"`
	StableHeading Verdict `json:"stable_heading"`
	SteadyWind    Verdict `json:"steady_wind"`
	MinSpeed      Verdict `json:"min_speed"`
	SteadyState   Verdict `json:"steady_state"`
}

// Eligible reports whether gates 1-4 permit recording: each must be pass
// or unavailable, never fail. SteadyState is derived from eligibility over
// time and does not feed back into it.
func (g GateSnapshot) Eligible() bool {
	for _, v := range []Verdict{g.EngineOff, g.StableHeading, g.SteadyWind, g.MinSpeed} {
		if v == VerdictFail {
			return false
		}
	}
	return true
}
