// Command polarcheck inspects a persisted bucket database offline: it loads
// the store, runs integrity checks, and prints coverage plus the exported
// polar table. Useful after a sailing session to see what the engine learned
// without standing up the full service.
//
// Usage:
//
//	go run ./cmd/polarcheck -db polar.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"

	"github.com/saltline/polar-engine/internal/adapter/sqlite"
	"github.com/saltline/polar-engine/internal/observability"
	"github.com/saltline/polar-engine/internal/polar"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dbPath := flag.String("db", "polar.db", "path to the bucket database")
	flag.Parse()

	if err := run(*dbPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dbPath string) error {
	logger := observability.NewLogger("warn", "text")

	repo, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Unregistered metrics: this tool only reads, nothing scrapes it.
	store := polar.New(polar.DefaultConfig(), repo, logger, observability.NewMetricsForTesting())
	if err := store.Initialize(context.Background()); err != nil {
		return err
	}
	defer store.Close()

	stats := store.Stats()
	fmt.Printf("db: %s\n", dbPath)
	fmt.Printf("samples: %d  filled: %d/%d (%.1f%%)\n",
		stats.TotalSamples, stats.FilledBuckets, stats.TotalBuckets,
		100*float64(stats.FilledBuckets)/float64(stats.TotalBuckets))

	phases := []*phase{
		checkCoverage(stats),
		checkExport(store),
	}

	table := store.Export()
	printTable(table)

	failed := 0
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("ok   %s\n", p.name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("     %s\n", e)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(phases))
	}
	return nil
}

// checkCoverage verifies the basic store invariants.
func checkCoverage(stats polar.Stats) *phase {
	p := &phase{name: "coverage invariants"}
	if stats.FilledBuckets > stats.TotalBuckets {
		p.errorf("filled buckets %d exceeds total %d", stats.FilledBuckets, stats.TotalBuckets)
	}
	if stats.FilledBuckets > 0 && stats.TotalSamples == 0 {
		p.errorf("filled buckets with zero samples")
	}
	return p
}

// checkExport verifies the export is well-formed and deterministic.
func checkExport(store *polar.Store) *phase {
	p := &phase{name: "export shape and determinism"}

	t1 := store.Export()
	if len(t1.BoatSpeeds) != len(t1.WindAngles) {
		p.errorf("boat speed rows %d != wind angles %d", len(t1.BoatSpeeds), len(t1.WindAngles))
	}
	for i, row := range t1.BoatSpeeds {
		if len(row) != len(t1.WindSpeeds) {
			p.errorf("row %d has %d cells, want %d", i, len(row), len(t1.WindSpeeds))
		}
		for j, v := range row {
			if v < 0 || v > 60 {
				p.errorf("implausible boat speed %.2f at angle %g speed %g", v, t1.WindAngles[i], t1.WindSpeeds[j])
			}
		}
	}

	t2 := store.Export()
	if diff := cmp.Diff(t1, t2); diff != "" {
		p.errorf("export not deterministic (-first +second):\n%s", diff)
	}
	return p
}

func printTable(t polar.Table) {
	fmt.Printf("\n%8s", "twa/tws")
	for _, ws := range t.WindSpeeds {
		fmt.Printf("%7.0f", ws)
	}
	fmt.Println()
	for i, angle := range t.WindAngles {
		fmt.Printf("%7.0f°", angle)
		for _, v := range t.BoatSpeeds[i] {
			if v == 0 {
				fmt.Printf("%7s", "-")
				continue
			}
			fmt.Printf("%7.2f", v)
		}
		fmt.Println()
	}
	fmt.Println()
}
