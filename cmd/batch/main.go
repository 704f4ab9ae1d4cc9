package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	eb "trickle-sim/internal/eventBus"
	"trickle-sim/internal/metrics"
	"trickle-sim/internal/sim"
)

// batch sweeps the redundancy constant over one scenario in virtual time and
// writes a metrics file per value of k.
func main() {
	cfg := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	ks := flag.String("k", "1,2,3,4,5,8", "comma separated redundancy constants")
	out := flag.String("out", "results", "directory for metrics files")
	parallel := flag.Int("parallel", runtime.NumCPU(), "runs at once")
	quiet := flag.Bool("quiet", true, "discard per-node logs")
	flag.Parse()

	if err := os.MkdirAll(*out, 0755); err != nil {
		log.Fatalf("results directory: %v", err)
	}
	if *quiet {
		log.SetOutput(io.Discard)
	}

	values, err := parseKs(*ks)
	if err != nil {
		log.Fatalf("-k: %v", err)
	}
	if _, err := sim.LoadScenario(*cfg); err != nil {
		log.Fatalf("scenario: %v", err)
	}

	g, ctx := errgroup.WithContext(context.Background())
	if *parallel < 1 {
		*parallel = 1
	}
	g.SetLimit(*parallel)
	for _, k := range values {
		k := k
		g.Go(func() error { return runOne(ctx, *cfg, k, *out) })
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "batch: %v\n", err)
		os.Exit(1)
	}
}

// Each run loads its own copy of the scenario.
func runOne(ctx context.Context, path string, k uint, dir string) error {
	sc, err := sim.LoadScenario(path)
	if err != nil {
		return err
	}
	sc.Virtual = true
	sc.Trickle.Redundancy = &k

	coll := metrics.NewCollector()
	runner, err := sim.NewRunner(sc, eb.NewEventBus(), coll)
	if err != nil {
		return fmt.Errorf("k=%d: %w", k, err)
	}
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("k=%d: %w", k, err)
	}
	file := filepath.Join(dir, fmt.Sprintf("metrics_k%d.json", k))
	if err := coll.Flush(file); err != nil {
		return fmt.Errorf("k=%d: %w", k, err)
	}
	snap := coll.Snapshot()
	fmt.Printf("k=%d sent=%d suppressed=%d collisions=%d %s -> %s\n",
		k, snap.TotalSent, snap.TotalSuppressed, snap.Collisions, runner.Report(), file)
	return nil
}

func parseKs(s string) ([]uint, error) {
	var out []uint
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		k, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint(k))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values in %q", s)
	}
	return out, nil
}
