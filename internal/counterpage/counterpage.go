// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package counterpage backs the exported generation counter with a
// fixed 4-byte file suitable for read-only memory mapping by peers
// that cannot afford a bus round trip.
package counterpage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// pageSize is the fixed length of the exported file: 4 little-endian
// bytes, nothing else.
const pageSize = 4

// Page is the service-side handle on the exported counter file. Only
// the event-loop goroutine calls Publish; it is not safe to publish
// from multiple goroutines concurrently.
type Page struct {
	path string
	file *os.File
}

// Open creates (or truncates) the file at path to length 4 and writes
// initial as its starting value. The parent directory is created if
// missing so a fresh runtime-state directory doesn't need to exist
// beforehand.
func Open(path string, initial uint32) (*Page, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("counterpage: create parent dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("counterpage: open %s: %w", path, err)
	}

	p := &Page{path: path, file: f}
	if err := p.Publish(initial); err != nil {
		_ = f.Close()
		return nil, err
	}
	return p, nil
}

// Publish overwrites bytes [0..4) with the little-endian encoding of
// counter and flushes it to disk. Callers must publish the new value
// before emitting a signal announcing it, so a peer woken by the
// signal never reads a stale page.
func (p *Page) Publish(counter uint32) error {
	var buf [pageSize]byte
	binary.LittleEndian.PutUint32(buf[:], counter)

	if _, err := p.file.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("counterpage: write: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("counterpage: sync: %w", err)
	}
	return nil
}

// Path returns the filesystem path backing this page.
func (p *Page) Path() string {
	return p.path
}

// Close releases the underlying file descriptor. The file itself is
// left in place: its absence is not the "service down" signal, the
// bus name is.
func (p *Page) Close() error {
	return p.file.Close()
}

// Read decodes the current 4-byte contents of the file at path. It is
// the consumer-side counterpart to Publish, used by tests; it opens
// and reads the file directly rather than mmap'ing it, since a plain
// read is sufficient to exercise the same byte layout a real mmap
// consumer would see.
func Read(path string) (uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("counterpage: read %s: %w", path, err)
	}
	if len(b) != pageSize {
		return 0, fmt.Errorf("counterpage: %s has length %d, want %d", path, len(b), pageSize)
	}
	return binary.LittleEndian.Uint32(b), nil
}
