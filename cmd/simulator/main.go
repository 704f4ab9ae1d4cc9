package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eb "trickle-sim/internal/eventBus"
	"trickle-sim/internal/metrics"
	"trickle-sim/internal/mqtt"
	"trickle-sim/internal/server"
	"trickle-sim/internal/sim"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so that deferred cleanup happens before exit.
func run() int {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
		return 1
	}

	// Create log file with timestamp in name
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile, err := os.OpenFile("logs/log_"+timestamp+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
		return 1
	}
	defer logFile.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	// include time (hh:mm:ss) and microsecond precision
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	httpAddr := flag.String("http", "", "serve /ws and /nodeAPI on this address (overrides scenario)")
	broker := flag.String("mqtt", "", "MQTT broker URL (overrides scenario)")
	virtual := flag.Bool("virtual", false, "run in virtual time")
	flag.Parse()

	sc, err := sim.LoadScenario(*cfg)
	if err != nil {
		log.Printf("scenario: %v", err)
		return 1
	}
	if *httpAddr != "" {
		sc.Server.Addr = *httpAddr
	}
	if *broker != "" {
		sc.MQTT.Broker = *broker
	}
	if *virtual {
		sc.Virtual = true
	}
	if sc.Logging.MetricsFile == "" {
		sc.Logging.MetricsFile = "logs/metrics_" + timestamp + ".json"
	}

	// Ctrl-C, SIGTERM and SIGHUP end the run early; metrics are still flushed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if _, err := simulate(ctx, sc); err != nil {
		log.Printf("simulation error: %v", err)
		return 1
	}
	return 0
}

// simulate connects the surfaces, plays the scenario and flushes metrics.
// Connection failures are returned before any node runs. Once the runner has
// started, metrics are flushed whatever happens.
func simulate(ctx context.Context, sc *sim.Scenario) (sim.Report, error) {
	runID := uuid.New()
	log.Printf("Starting simulation %s: %d nodes, k=%d, I_min=%v", runID, sc.Nodes.Count, *sc.Trickle.Redundancy, sc.Trickle.IntervalMin)

	bus := eb.NewEventBus()
	coll := metrics.NewCollector()
	runner, err := sim.NewRunner(sc, bus, coll)
	if err != nil {
		return sim.Report{}, fmt.Errorf("runner: %w", err)
	}

	var bridge *mqtt.Bridge
	if sc.MQTT.Broker != "" {
		manager, err := mqtt.New(sc.MQTT.Broker, sc.MQTT.ClientID)
		if err != nil {
			return sim.Report{}, err
		}
		defer manager.Disconnect()
		bridge = mqtt.NewBridge(manager, runner.Network(), sc.MQTT.TopicPrefix)
		if err := manager.Subscribe(bridge.CommandTopic(), 1, mqtt.ProcessMqttCommand(runner.Network())); err != nil {
			return sim.Report{}, fmt.Errorf("mqtt subscribe %s: %w", bridge.CommandTopic(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	// surfaces stop when the run ends
	surfaces, endSurfaces := context.WithCancel(gctx)

	g.Go(func() error {
		defer endSurfaces()
		return runner.Run(gctx)
	})

	if sc.Server.Addr != "" {
		g.Go(func() error {
			return server.StartServer(surfaces, sc.Server.Addr, sc.Server.MaxConns, bus, runner.Network(), runner.Clock())
		})
	}

	if bridge != nil {
		events := bus.Subscribe()
		g.Go(func() error {
			defer bus.Unsubscribe(events)
			return bridge.Run(surfaces, events)
		})
	}

	runErr := g.Wait()

	if err := coll.Flush(sc.Logging.MetricsFile); err != nil {
		log.Printf("flush-metrics: %v", err)
	} else {
		log.Printf("stats written to %s", sc.Logging.MetricsFile)
	}
	log.Printf("run %s complete: %s", runID, runner.Report())
	return runner.Report(), runErr
}
