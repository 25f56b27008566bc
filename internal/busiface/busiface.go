// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package busiface hosts the D-Bus object path and interface for the
// daemon, dispatching method calls into generation.Generation and
// emitting its signals.
//
// godbus/dbus/v5 calls exported methods from its own internal
// dispatch goroutines, one per incoming message, which would let two
// peers mutate Generation concurrently. To keep Generation under a
// single owner, every exported method enqueues a closure onto a
// request channel that one loop goroutine drains; the exported
// methods themselves never touch Generation directly.
package busiface

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/sysgenid/sysgenid/internal/generation"
	"github.com/sysgenid/sysgenid/internal/logger"
	"github.com/sysgenid/sysgenid/internal/metrics"
	"github.com/sysgenid/sysgenid/internal/registry"
)

// ObjectPath and InterfaceName are the bus object and interface the
// daemon exports.
const (
	ObjectPath    = dbus.ObjectPath("/com/RFC/sysgenid")
	InterfaceName = "com.RFC.sysgenid"
	busName       = "com.RFC.sysgenid"
)

// introspectionXML is returned verbatim on introspection requests. Its
// shape was derived directly from the exported method and signal set
// below (documented in DESIGN.md: no reference introspection XML was
// available to copy from).
const introspectionXML = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
  <interface name="com.RFC.sysgenid">
    <method name="GetSysGenCounter">
      <arg name="sysgen_counter" type="u" direction="out"/>
    </method>
    <method name="AckWatcherCounter">
      <arg name="watcher_counter" type="u" direction="in"/>
      <arg name="sysgen_counter" type="u" direction="out"/>
    </method>
    <method name="CountOutdatedWatchers">
      <arg name="count" type="u" direction="out"/>
    </method>
    <method name="TriggerSysGenUpdate">
      <arg name="min_gen" type="u" direction="in"/>
    </method>
    <signal name="NewSystemGeneration">
      <arg name="sysgen_counter" type="u"/>
    </signal>
    <signal name="SystemReady">
    </signal>
  </interface>
</node>`

// request is a closure-carrying unit of work the loop goroutine
// executes against the single Generation instance it owns.
type request struct {
	do    func(g *generation.Generation) (interface{}, error)
	reply chan result
}

type result struct {
	val interface{}
	err error
}

// BusInterface owns the bus connection, the export, and the single
// event loop goroutine. Construct it with New, export its method
// table with Export, then run it with Run.
type BusInterface struct {
	conn *dbus.Conn
	log  *logger.Logger

	reqCh      chan request
	snapshotCh chan chan metrics.Snapshot
}

// New wraps an already-connected bus connection. The caller is
// responsible for obtaining conn via dbus.ConnectSessionBus or
// dbus.ConnectSystemBus per the --bus flag.
func New(conn *dbus.Conn, log *logger.Logger) *BusInterface {
	return &BusInterface{
		conn:       conn,
		log:        log,
		reqCh:      make(chan request),
		snapshotCh: make(chan chan metrics.Snapshot),
	}
}

// RequestName claims the well-known bus name, failing fast if another
// process already owns it.
func (b *BusInterface) RequestName() error {
	reply, err := b.conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("busiface: request name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("busiface: name %s already owned (reply=%d)", busName, reply)
	}
	return nil
}

// Export registers the method table and introspection data at
// ObjectPath, and subscribes to NameOwnerChanged so peer disconnects
// reach the loop.
func (b *BusInterface) Export() error {
	if err := b.conn.Export(&methodTable{reqCh: b.reqCh}, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("busiface: export method table: %w", err)
	}
	if err := b.conn.Export(introspect.Introspectable(introspectionXML), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("busiface: export introspectable: %w", err)
	}

	if err := b.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return fmt.Errorf("busiface: subscribe to NameOwnerChanged: %w", err)
	}
	return nil
}

// EmitNewSystemGeneration implements generation.Signaler.
func (b *BusInterface) EmitNewSystemGeneration(counter uint32) error {
	return b.conn.Emit(ObjectPath, InterfaceName+".NewSystemGeneration", counter)
}

// EmitSystemReady implements generation.Signaler.
func (b *BusInterface) EmitSystemReady() error {
	return b.conn.Emit(ObjectPath, InterfaceName+".SystemReady")
}

// Close releases the well-known name and closes the bus connection.
// The exported file is left untouched; the absence of the bus name,
// not the file's presence, is the authoritative "service down"
// signal.
func (b *BusInterface) Close() error {
	_, _ = b.conn.ReleaseName(busName)
	return b.conn.Close()
}

// Snapshot requests a metrics snapshot from the loop goroutine and
// blocks until it is delivered. Safe to call from any goroutine
// (e.g. the metrics HTTP handler), since it never touches Generation
// directly.
func (b *BusInterface) Snapshot() metrics.Snapshot {
	reply := make(chan metrics.Snapshot, 1)
	b.snapshotCh <- reply
	return <-reply
}

// Run is the event loop: it owns gen exclusively and is the only
// goroutine that ever calls its methods, serializing method dispatch,
// signal emission, and peer-disconnect cleanup. It returns when ctx is
// cancelled.
func (b *BusInterface) Run(ctx context.Context, gen *generation.Generation) error {
	signalCh := make(chan *dbus.Signal, 16)
	b.conn.Signal(signalCh)
	defer b.conn.RemoveSignal(signalCh)

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-b.reqCh:
			val, err := req.do(gen)
			req.reply <- result{val: val, err: err}

		case reply := <-b.snapshotCh:
			reply <- gen.Snapshot()

		case sig := <-signalCh:
			b.handleSignal(gen, sig)
		}
	}
}

// handleSignal routes a matched bus signal into Generation. Only
// NameOwnerChanged is subscribed to; any other signal reaching this
// channel is ignored.
func (b *BusInterface) handleSignal(gen *generation.Generation, sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" {
		return
	}
	if len(sig.Body) != 3 {
		b.log.Warnw("malformed NameOwnerChanged signal", "body", sig.Body)
		return
	}

	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if newOwner != "" {
		// The unique name gained an owner (or kept one); nothing to
		// clean up.
		return
	}

	peer := registry.PeerId(name)
	if !gen.Contains(peer) {
		// Nothing tracked for this unique name; no readiness
		// re-evaluation is worth triggering.
		return
	}

	b.log.Debugw("peer disconnected", "peer", peer)
	gen.Forget(peer)
}
