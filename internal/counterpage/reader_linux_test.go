// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

//go:build linux

package counterpage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappedReaderSeesPublishedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysgen_counter")

	p, err := Open(path, 7)
	require.NoError(t, err)
	defer p.Close()

	r, err := OpenMapped(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(7), r.Counter())

	require.NoError(t, p.Publish(8))
	assert.Equal(t, uint32(8), r.Counter(), "a shared mapping must observe writes made through the fd")
}
