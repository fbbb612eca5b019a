// Command gensamples generates a synthetic instrument stream as JSON lines,
// one gateway payload per line, for test fixtures and offline replays. The
// scenario covers a motoring leg, a clean upwind leg with a tack, a reach,
// and a gusty patch, so every gate gets exercised.
//
// Usage:
//
//	go run ./cmd/gensamples -out testdata/sail_run.jsonl -seed 42
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/saltline/polar-engine/internal/domain"
)

var baseTime = time.Date(2025, time.June, 14, 10, 0, 0, 0, time.UTC)

// leg describes one scenario segment with the vessel's nominal state.
type leg struct {
	name     string
	duration time.Duration
	heading  float64
	tws      float64
	twa      float64
	stw      float64
	rpm      int
	// jitter is the half-width of uniform noise applied per tick.
	windJitter    float64
	angleJitter   float64
	headingJitter float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the JSON-lines fixture")
	seed := flag.Int64("seed", 1, "random seed for reproducible noise")
	hz := flag.Float64("rate", 1.0, "samples per second")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	legs := []leg{
		{name: "motoring out", duration: 3 * time.Minute, heading: 180, tws: 12, twa: 30, stw: 5.5, rpm: 2200,
			windJitter: 1, angleJitter: 5, headingJitter: 1},
		{name: "upwind port", duration: 10 * time.Minute, heading: 135, tws: 12, twa: 42, stw: 6.2, rpm: 0,
			windJitter: 1, angleJitter: 4, headingJitter: 1},
		{name: "upwind starboard", duration: 10 * time.Minute, heading: 225, tws: 12, twa: 42, stw: 6.1, rpm: 0,
			windJitter: 1, angleJitter: 4, headingJitter: 1},
		{name: "beam reach", duration: 8 * time.Minute, heading: 270, tws: 14, twa: 90, stw: 7.4, rpm: 0,
			windJitter: 1.2, angleJitter: 5, headingJitter: 1},
		{name: "gusty run", duration: 6 * time.Minute, heading: 350, tws: 16, twa: 160, stw: 6.8, rpm: 0,
			windJitter: 5, angleJitter: 20, headingJitter: 2},
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rng := rand.New(rand.NewSource(*seed))
	tick := time.Duration(float64(time.Second) / *hz)

	now := baseTime
	total := 0
	for _, l := range legs {
		n := int(l.duration / tick)
		for i := 0; i < n; i++ {
			p := payloadFor(l, now, rng)
			line, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			w.Write(line)
			w.WriteByte('\n')
			now = now.Add(tick)
			total++
		}
		log.Printf("%s: %d samples", l.name, n)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", *out, err)
	}
	log.Printf("wrote %d samples to %s", total, *out)
	return nil
}

func payloadFor(l leg, now time.Time, rng *rand.Rand) domain.SamplePayload {
	jitter := func(half float64) float64 { return (rng.Float64()*2 - 1) * half }

	tws := l.tws + jitter(l.windJitter)
	twa := l.twa + jitter(l.angleJitter)
	stw := l.stw + jitter(0.3)
	hdg := wrap360(l.heading + jitter(l.headingJitter))
	rpm := l.rpm
	volts := 12.6
	if rpm > 0 {
		volts = 14.4
	}

	return domain.SamplePayload{
		Timestamp:  now.UnixMilli(),
		TWS:        &tws,
		TWA:        &twa,
		STW:        &stw,
		Heading:    &hdg,
		EngineRPM:  &rpm,
		BusVoltage: &volts,
	}
}

func wrap360(a float64) float64 {
	for a < 0 {
		a += 360
	}
	for a >= 360 {
		a -= 360
	}
	return a
}
