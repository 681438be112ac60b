// Command cascade-router runs the routing node: it loads the shard topology,
// brings up the remote command executor, and serves routing metrics.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/cluster"
	"github.com/cascadedb/cascade/coordinator"
	"github.com/cascadedb/cascade/executor"
	"github.com/cascadedb/cascade/logger"
)

// Config aggregates the routing node's configuration sections.
type Config struct {
	MetricsAddr string          `toml:"metrics-addr"`
	Logging     logger.Config   `toml:"logging"`
	Cluster     cluster.Config  `toml:"cluster"`
	Executor    executor.Config `toml:"executor"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		MetricsAddr: ":7786",
		Logging:     logger.NewConfig(),
		Cluster:     cluster.NewConfig(),
		Executor:    executor.NewConfig(),
	}
}

func main() {
	configPath := flag.String("config", "", "path to the routing node configuration file")
	flag.Parse()

	cfg := NewConfig()
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "parse config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	if err := cfg.Executor.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid executor config: %v\n", err)
		os.Exit(1)
	}

	log := cfg.Logging.New(os.Stderr)
	defer log.Sync()

	registry := cluster.NewRegistry()
	registry.WithLogger(log)
	if err := registry.ApplyConfig(cfg.Cluster); err != nil {
		log.Fatal("Invalid cluster config", zap.Error(err))
	}

	e := executor.NewNetworkExecutor(cfg.Executor)
	e.WithLogger(log)
	defer e.Close()

	prometheus.MustRegister(coordinator.PrometheusCollectors()...)
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
			log.Error("Metrics listener failed", zap.Error(err))
		}
	}()

	log.Info("Routing node ready",
		zap.Int("shards", len(registry.ShardIDs())),
		zap.String("metrics_addr", cfg.MetricsAddr),
		logger.DurationLiteral("request_timeout", time.Duration(cfg.Executor.RequestTimeout)))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
}
