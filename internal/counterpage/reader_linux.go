// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

//go:build linux

package counterpage

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MappedReader is a read-only mmap of the exported counter file, for
// a consumer that needs the current value on a hot path: it maps the
// file once and re-reads the 4 bytes in place, instead of paying for
// a bus round trip on every check.
type MappedReader struct {
	data []byte
}

// OpenMapped mmaps path read-only. The file must already exist and be
// exactly 4 bytes, i.e. it must have been created by Open first.
func OpenMapped(path string) (*MappedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("counterpage: open for mmap %s: %w", path, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, pageSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("counterpage: mmap %s: %w", path, err)
	}
	return &MappedReader{data: data}, nil
}

// Counter returns the current value visible through the mapping. No
// additional synchronization is performed: the writer updates the 4
// bytes with a single WriteAt, so a torn read is only theoretically
// possible across a page boundary that this 4-byte page never
// crosses.
func (m *MappedReader) Counter() uint32 {
	return binary.LittleEndian.Uint32(m.data)
}

// Close unmaps the page.
func (m *MappedReader) Close() error {
	return unix.Munmap(m.data)
}
