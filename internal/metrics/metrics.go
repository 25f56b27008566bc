// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package metrics exposes the daemon's counters through
// prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Snapshot is a point-in-time view of the daemon's generation state,
// taken on the event-loop goroutine so the Collector never reads
// Generation/Registry fields from a different goroutine than the one
// that owns them.
type Snapshot struct {
	Counter         uint32
	BumpsTotal      uint64
	TrackedWatchers int
	OutdatedCount   uint32
	StaleAcksTotal  uint64
}

// SnapshotFunc produces a fresh Snapshot, round-tripping through the
// event loop.
type SnapshotFunc func() Snapshot

// Collector is a prometheus.Collector that defers to SnapshotFunc on
// every scrape instead of caching mutable state itself.
type Collector struct {
	snapshot SnapshotFunc

	counter   *prometheus.Desc
	bumps     *prometheus.Desc
	tracked   *prometheus.Desc
	outdated  *prometheus.Desc
	staleAcks *prometheus.Desc
}

// NewCollector builds a Collector backed by snapshot.
func NewCollector(snapshot SnapshotFunc) *Collector {
	return &Collector{
		snapshot: snapshot,
		counter: prometheus.NewDesc(
			"sysgenid_generation_counter", "Current generation counter value.", nil, nil),
		bumps: prometheus.NewDesc(
			"sysgenid_bumps_total", "Number of successful TriggerSysGenUpdate calls.", nil, nil),
		tracked: prometheus.NewDesc(
			"sysgenid_tracked_watchers", "Number of peers tracked in the watcher registry.", nil, nil),
		outdated: prometheus.NewDesc(
			"sysgenid_outdated_watchers", "Number of tracked watchers behind the current counter.", nil, nil),
		staleAcks: prometheus.NewDesc(
			"sysgenid_stale_acks_total", "Number of AckWatcherCounter calls rejected as stale.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counter
	ch <- c.bumps
	ch <- c.tracked
	ch <- c.outdated
	ch <- c.staleAcks
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.counter, prometheus.GaugeValue, float64(s.Counter))
	ch <- prometheus.MustNewConstMetric(c.bumps, prometheus.CounterValue, float64(s.BumpsTotal))
	ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(s.TrackedWatchers))
	ch <- prometheus.MustNewConstMetric(c.outdated, prometheus.GaugeValue, float64(s.OutdatedCount))
	ch <- prometheus.MustNewConstMetric(c.staleAcks, prometheus.CounterValue, float64(s.StaleAcksTotal))
}
