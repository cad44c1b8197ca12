// Package metrics collects Prometheus metrics for the VFS, grounded
// on the same Collector-over-*prometheus.Registry shape as the
// teacher's internal/metrics package (not part of this module), but
// tracking VFS-specific dimensions instead of
// the teacher's cache/connection-pool ones: bytes moved per backend,
// thread-pool occupancy, and parallel-read shard counts.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the VFS metrics collector.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Collector records Prometheus metrics for VFS operations.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	bytesRead       *prometheus.CounterVec
	bytesWritten    *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	operationCalls  *prometheus.CounterVec
	parallelShards  prometheus.Histogram
	poolQueueDepth  prometheus.Gauge
	poolInFlight    prometheus.Gauge

	server *http.Server
}

// NewCollector constructs a Collector. A nil config is replaced by an
// enabled default (port 9401, path /metrics, namespace "vfs"). If
// config is disabled, every recording method is a no-op and no
// registry is created.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Port: 9401, Path: "/metrics", Namespace: "vfs"}
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{config: config, registry: registry}

	c.bytesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "bytes_read_total", Help: "Total bytes read, by backend.",
	}, []string{"backend"})

	c.bytesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "bytes_written_total", Help: "Total bytes written, by backend.",
	}, []string{"backend"})

	c.operationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "operations_total", Help: "Total VFS operations, by backend and operation.",
	}, []string{"backend", "operation"})

	c.operationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "operation_errors_total", Help: "Total VFS operation failures, by backend and operation.",
	}, []string{"backend", "operation"})

	c.parallelShards = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name:    "parallel_read_shards",
		Help:    "Number of shards a parallel read was split into.",
		Buckets: prometheus.LinearBuckets(1, 1, 16),
	})

	c.poolQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "threadpool_queue_depth", Help: "Tasks currently queued in the VFS thread pool.",
	})

	c.poolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace, Subsystem: config.Subsystem,
		Name: "threadpool_in_flight", Help: "Tasks currently executing in the VFS thread pool.",
	})

	for _, m := range []prometheus.Collector{
		c.bytesRead, c.bytesWritten, c.operationCalls, c.operationErrors,
		c.parallelShards, c.poolQueueDepth, c.poolInFlight,
	} {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register VFS metric: %w", err)
		}
	}

	return c, nil
}

// Start serves the Prometheus exposition endpoint until ctx is canceled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("vfs metrics server error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop shuts down the metrics server, if running.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordRead records a completed Read against backend, including
// whether it failed.
func (c *Collector) RecordRead(backend string, n int64, err error) {
	if !c.config.Enabled {
		return
	}
	c.operationCalls.WithLabelValues(backend, "read").Inc()
	if err != nil {
		c.operationErrors.WithLabelValues(backend, "read").Inc()
		return
	}
	c.bytesRead.WithLabelValues(backend).Add(float64(n))
}

// RecordWrite records a completed Write against backend.
func (c *Collector) RecordWrite(backend string, n int64, err error) {
	if !c.config.Enabled {
		return
	}
	c.operationCalls.WithLabelValues(backend, "write").Inc()
	if err != nil {
		c.operationErrors.WithLabelValues(backend, "write").Inc()
		return
	}
	c.bytesWritten.WithLabelValues(backend).Add(float64(n))
}

// RecordOperation records any other backend operation's outcome.
func (c *Collector) RecordOperation(backend, operation string, err error) {
	if !c.config.Enabled {
		return
	}
	c.operationCalls.WithLabelValues(backend, operation).Inc()
	if err != nil {
		c.operationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordParallelRead records how many shards a sharded read used.
func (c *Collector) RecordParallelRead(shards int) {
	if !c.config.Enabled {
		return
	}
	c.parallelShards.Observe(float64(shards))
}

// RecordPoolOccupancy samples the thread pool's current queue depth
// and in-flight task count.
func (c *Collector) RecordPoolOccupancy(queueDepth, inFlight int) {
	if !c.config.Enabled {
		return
	}
	c.poolQueueDepth.Set(float64(queueDepth))
	c.poolInFlight.Set(float64(inFlight))
}
