// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package generation owns the authoritative generation counter and
// orchestrates a bump atomically across the counter page, the watcher
// registry, and bus signal emission.
package generation

import (
	"errors"
	"fmt"

	"github.com/sysgenid/sysgenid/internal/counterpage"
	"github.com/sysgenid/sysgenid/internal/logger"
	"github.com/sysgenid/sysgenid/internal/metrics"
	"github.com/sysgenid/sysgenid/internal/registry"
)

// ErrStaleAck is returned by Ack when the caller's value doesn't match
// the current counter.
var ErrStaleAck = registry.ErrStaleAck

// Signaler is the bus-facing seam Generation emits through. The bus
// interface implements it; tests use a recording fake.
type Signaler interface {
	EmitNewSystemGeneration(counter uint32) error
	EmitSystemReady() error
}

// Generation is the single owner of the counter. It is only ever
// called from the event-loop goroutine; it holds no internal lock.
type Generation struct {
	counter  uint32
	draining bool // true once a bump has outstanding, un-emitted SystemReady

	bumpsTotal     uint64
	staleAcksTotal uint64

	page     *counterpage.Page
	registry *registry.Registry
	signals  Signaler
	log      *logger.Logger
}

// New builds a Generation starting at counter 0.
func New(page *counterpage.Page, reg *registry.Registry, signals Signaler, log *logger.Logger) *Generation {
	return &Generation{
		page:     page,
		registry: reg,
		signals:  signals,
		log:      log,
	}
}

// Get returns the current counter. It never mutates state.
func (g *Generation) Get() uint32 {
	return g.counter
}

// Bump advances the counter to max(counter+1, minGen). It advances by
// at least 1, except at math.MaxUint32, where counter+1 wraps to 0 and
// the result is max(0, minGen). It publishes the new value to the counter
// page, emits NewSystemGeneration, and either emits SystemReady
// immediately (no tracked watchers) or marks the generation as
// draining until the registry catches up.
func (g *Generation) Bump(minGen uint32) uint32 {
	next := g.counter + 1
	if minGen > next {
		next = minGen
	}
	g.counter = next

	if err := g.page.Publish(next); err != nil {
		// Best-effort: the in-memory counter has already advanced and
		// bus peers still need to learn of it.
		g.log.Errorw("failed to publish counter page", "counter", next, "error", err)
	}

	if err := g.signals.EmitNewSystemGeneration(next); err != nil {
		g.log.Errorw("failed to emit NewSystemGeneration", "counter", next, "error", err)
	}

	g.bumpsTotal++
	g.draining = true
	g.reevaluateReady()

	return next
}

// Ack delegates to the registry and, on success, re-evaluates whether
// SystemReady is now due. It returns the current counter on success or
// ErrStaleAck if value doesn't match the current counter.
func (g *Generation) Ack(peer registry.PeerId, value uint32) (uint32, error) {
	if err := g.registry.RegisterOrAck(peer, value, g.counter); err != nil {
		if errors.Is(err, registry.ErrStaleAck) {
			g.staleAcksTotal++
			return 0, fmt.Errorf("%w: expected %d, got %d", ErrStaleAck, g.counter, value)
		}
		return 0, err
	}

	g.reevaluateReady()
	return g.counter, nil
}

// Forget removes peer from the registry (invoked by the bus
// interface's disconnect handler) and re-evaluates readiness, since a
// disconnecting outdated watcher can be the one that was blocking
// SystemReady.
func (g *Generation) Forget(peer registry.PeerId) {
	g.registry.Forget(peer)
	g.reevaluateReady()
}

// Contains reports whether peer currently holds a registry entry.
func (g *Generation) Contains(peer registry.PeerId) bool {
	return g.registry.Contains(peer)
}

// OutdatedCount reports the registry's outdated count against the
// current counter.
func (g *Generation) OutdatedCount() uint32 {
	return g.registry.OutdatedCount(g.counter)
}

// TrackedCount reports the registry's total tracked peer count.
func (g *Generation) TrackedCount() int {
	return g.registry.TrackedCount()
}

// Snapshot captures the current counters for metrics export. Callers
// must invoke this from the event-loop goroutine, the same
// constraint every other Generation method carries.
func (g *Generation) Snapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Counter:         g.counter,
		BumpsTotal:      g.bumpsTotal,
		TrackedWatchers: g.registry.TrackedCount(),
		OutdatedCount:   g.registry.OutdatedCount(g.counter),
		StaleAcksTotal:  g.staleAcksTotal,
	}
}

// reevaluateReady emits SystemReady exactly once per bump, at the
// moment the outdated count reaches zero. It is a no-op unless a bump
// has left an un-emitted SystemReady pending.
func (g *Generation) reevaluateReady() {
	if !g.draining {
		return
	}
	if g.registry.OutdatedCount(g.counter) != 0 {
		return
	}

	g.draining = false
	if err := g.signals.EmitSystemReady(); err != nil {
		g.log.Errorw("failed to emit SystemReady", "counter", g.counter, "error", err)
	}
}
