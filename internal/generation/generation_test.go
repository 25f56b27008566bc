// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

package generation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysgenid/sysgenid/internal/counterpage"
	"github.com/sysgenid/sysgenid/internal/logger"
	"github.com/sysgenid/sysgenid/internal/registry"
)

// fakeSignaler records every emission instead of touching a bus
// connection, so Generation's orchestration can be tested without a
// real D-Bus transport.
type fakeSignaler struct {
	newGenerations []uint32
	systemReadys   int
}

func (f *fakeSignaler) EmitNewSystemGeneration(counter uint32) error {
	f.newGenerations = append(f.newGenerations, counter)
	return nil
}

func (f *fakeSignaler) EmitSystemReady() error {
	f.systemReadys++
	return nil
}

func newTestGeneration(t *testing.T) (*Generation, *fakeSignaler) {
	t.Helper()

	page, err := counterpage.Open(filepath.Join(t.TempDir(), "sysgen_counter"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	sig := &fakeSignaler{}
	return New(page, registry.New(), sig, logger.Nop()), sig
}

func TestBumpWithNoWatchersEmitsSystemReadyImmediately(t *testing.T) {
	g, sig := newTestGeneration(t)

	got := g.Bump(0)

	assert.Equal(t, uint32(1), got)
	assert.Equal(t, []uint32{1}, sig.newGenerations)
	assert.Equal(t, 1, sig.systemReadys, "SystemReady must fire immediately when no watchers are tracked")
}

func TestBumpAlwaysAdvancesByAtLeastOne(t *testing.T) {
	g, _ := newTestGeneration(t)

	g.Bump(0)
	got := g.Bump(0) // min_gen <= counter: must still advance by exactly 1
	assert.Equal(t, uint32(2), got)
}

func TestBumpHonorsMinGenFloor(t *testing.T) {
	g, _ := newTestGeneration(t)
	g.Bump(0) // counter -> 1

	got := g.Bump(10)
	assert.Equal(t, uint32(10), got)
}

func TestSingleWatcherDrainsOnAck(t *testing.T) {
	g, sig := newTestGeneration(t)

	_, err := g.Ack("peerA", 0)
	require.NoError(t, err)

	g.Bump(0) // counter -> 1, peerA now outdated
	assert.Equal(t, uint32(1), g.OutdatedCount())
	assert.Equal(t, 0, sig.systemReadys, "SystemReady must not fire while a tracked watcher is outdated")

	counter, err := g.Ack("peerA", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), counter)
	assert.Equal(t, uint32(0), g.OutdatedCount())
	assert.Equal(t, 1, sig.systemReadys)
}

func TestStaleAckIsRejectedAndRegistryUnchanged(t *testing.T) {
	g, _ := newTestGeneration(t)
	g.Bump(0) // counter -> 1
	g.Bump(0) // counter -> 2

	_, err := g.Ack("peerA", 1)
	require.ErrorIs(t, err, ErrStaleAck)
	assert.Equal(t, 0, g.TrackedCount(), "a stale ack must not create a registry entry")
}

func TestSystemReadyFiresExactlyOncePerBump(t *testing.T) {
	g, sig := newTestGeneration(t)
	_, err := g.Ack("peerA", 0)
	require.NoError(t, err)

	g.Bump(0)
	_, err = g.Ack("peerA", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.systemReadys)

	// A later, unrelated ack at the same value must not re-emit.
	_, err = g.Ack("peerA", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.systemReadys)
}

func TestDisconnectDrainsReadinessWithMultiplePeers(t *testing.T) {
	g, sig := newTestGeneration(t)
	_, err := g.Ack("peerA", 0)
	require.NoError(t, err)
	_, err = g.Ack("peerB", 0)
	require.NoError(t, err)

	g.Bump(0) // both now outdated
	assert.Equal(t, uint32(2), g.OutdatedCount())

	_, err = g.Ack("peerA", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sig.systemReadys, "peerB is still outdated")

	g.Forget("peerB")
	assert.Equal(t, 1, sig.systemReadys, "SystemReady must fire once the last outdated peer disconnects")
}

func TestNestedBumpsStayDrainingForLatestGeneration(t *testing.T) {
	g, sig := newTestGeneration(t)
	_, err := g.Ack("peerA", 0)
	require.NoError(t, err)

	g.Bump(0) // counter -> 1
	g.Bump(0) // counter -> 2, re-invalidates peerA before it acked generation 1

	assert.Equal(t, 0, sig.systemReadys)

	_, err = g.Ack("peerA", 1)
	require.ErrorIs(t, err, ErrStaleAck, "an ack for a superseded generation must be rejected")

	_, err = g.Ack("peerA", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.systemReadys)
}

func TestSnapshotReflectsCounters(t *testing.T) {
	g, _ := newTestGeneration(t)
	_, err := g.Ack("peerA", 0)
	require.NoError(t, err)
	g.Bump(0)

	_, err = g.Ack("peerA", 2) // stale
	require.Error(t, err)

	snap := g.Snapshot()
	assert.Equal(t, uint32(1), snap.Counter)
	assert.Equal(t, uint64(1), snap.BumpsTotal)
	assert.Equal(t, 1, snap.TrackedWatchers)
	assert.Equal(t, uint32(1), snap.OutdatedCount)
	assert.Equal(t, uint64(1), snap.StaleAcksTotal)
}
