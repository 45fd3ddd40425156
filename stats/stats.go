// Package stats tracks counters, latencies, and sizes for a running node
// and exposes them as Prometheus metrics, following the teacher's naming
// convention from stats/proxy_stats.go and stats/target_stats.go:
//
//	-> "*.n"    - counter
//	-> "*.ns"   - latency (nanoseconds)
//	-> "*.size" - size (bytes)
//	-> "*.bps"  - throughput (byte/s)
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names, following the teacher's suffix convention.
const (
	OpenCount     = "open.n"
	CreateCount   = "create.n"
	SealCount     = "seal.n"
	ReadCount     = "read.n"
	ReadSize      = "read.size"
	WriteCount    = "write.n"
	WriteSize     = "write.size"
	ReadLatency   = "read.ns"
	WriteLatency  = "write.ns"
	SealLatency   = "seal.ns"
	CacheHitCount = "cache.hit.n"
	CacheMissCount = "cache.miss.n"
	PeerFetchCount = "peer.fetch.n"
	PeerFetchSize  = "peer.fetch.size"
	BackingFetchCount = "backing.fetch.n"
	BackingFetchSize  = "backing.fetch.size"
	RelocateCount = "relocate.n"
	RelocateSize  = "relocate.size"
	ErrIOCount    = "err.io.n"
)

// Core collects the node's runtime counters and histograms and registers
// them with a dedicated Prometheus registry, mirroring the teacher's
// Core.initProm(node) (stats/target_stats.go) without the StatsD/cos.Tracker
// machinery the teacher layers on top, since spec §6 only names a
// Prometheus-text exposition surface.
type Core struct {
	reg *prometheus.Registry

	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewCore builds a Core with every named metric pre-registered, matching
// the teacher's pattern of calling r.reg(name, kind) once per metric up
// front in Trunner.RegMetrics rather than lazily registering on first use.
func NewCore(namespace string) *Core {
	c := &Core{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}

	counters := []string{
		OpenCount, CreateCount, SealCount,
		ReadCount, WriteCount,
		ReadSize, WriteSize,
		CacheHitCount, CacheMissCount,
		PeerFetchCount, PeerFetchSize,
		BackingFetchCount, BackingFetchSize,
		RelocateCount, RelocateSize,
		ErrIOCount,
	}
	for _, name := range counters {
		c.counters[name] = c.registerCounter(namespace, name)
	}

	histograms := []string{ReadLatency, WriteLatency, SealLatency}
	for _, name := range histograms {
		c.histograms[name] = c.registerHistogram(namespace, name)
	}

	return c
}

func metricName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, '_')
		} else {
			out = append(out, name[i])
		}
	}
	return string(out)
}

func (c *Core) registerCounter(namespace, name string) prometheus.Counter {
	ctr := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      metricName(name),
	})
	c.reg.MustRegister(ctr)
	return ctr
}

func (c *Core) registerHistogram(namespace, name string) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      metricName(name),
		Buckets:   prometheus.ExponentialBuckets(1000, 4, 12), // ns, ~1us .. ~4s+
	})
	c.reg.MustRegister(h)
	return h
}

// Inc increments a registered counter by 1. A name outside the set NewCore
// registered is a programmer error; it panics rather than silently
// dropping the sample, the same tradeoff the teacher's r.Tracker[name]
// lookup makes by panicking on an unregistered key.
func (c *Core) Inc(name string) {
	c.counters[name].Inc()
}

// Add increments a registered counter by a size/count delta.
func (c *Core) Add(name string, delta int64) {
	c.counters[name].Add(float64(delta))
}

// Observe records a latency sample, in nanoseconds, against a registered
// histogram.
func (c *Core) Observe(name string, nanoseconds int64) {
	c.histograms[name].Observe(float64(nanoseconds))
}

// Registry returns the underlying Prometheus registry for the HTTP
// exposition handler (geds/admin).
func (c *Core) Registry() *prometheus.Registry {
	return c.reg
}
