// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterOrAckInsertsOnFirstAck(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterOrAck("peerA", 0, 0))
	assert.Equal(t, 1, r.TrackedCount())
	assert.Equal(t, uint32(0), r.OutdatedCount(0))
}

func TestRegisterOrAckRejectsStaleValue(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterOrAck("peerA", 2, 2))

	err := r.RegisterOrAck("peerA", 1, 2)
	assert.True(t, errors.Is(err, ErrStaleAck))
	assert.Equal(t, uint32(0), r.OutdatedCount(2), "a rejected ack must not change registry state")
}

func TestOutdatedCountTracksCurrentCounter(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterOrAck("peerA", 3, 3))
	require.NoError(t, r.RegisterOrAck("peerB", 3, 3))

	// Simulate a bump to 4: both peers are now outdated until they ack.
	assert.Equal(t, uint32(2), r.OutdatedCount(4))

	require.NoError(t, r.RegisterOrAck("peerA", 4, 4))
	assert.Equal(t, uint32(1), r.OutdatedCount(4))
}

func TestForgetIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterOrAck("peerA", 0, 0))

	r.Forget("peerA")
	assert.Equal(t, 0, r.TrackedCount())
	assert.False(t, r.Contains("peerA"))

	r.Forget("peerA") // second forget of the same (now absent) peer
	r.Forget("never-registered")
	assert.Equal(t, 0, r.TrackedCount())
}

func TestForgetThenReRegisterIsFreshWatcher(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterOrAck("peerA", 5, 5))
	r.Forget("peerA")

	require.NoError(t, r.RegisterOrAck("peerA", 0, 0))
	assert.Equal(t, 1, r.TrackedCount())
}
