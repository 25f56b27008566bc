// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

package busiface

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/sysgenid/sysgenid/internal/generation"
	"github.com/sysgenid/sysgenid/internal/registry"
)

// methodTable is the value godbus reflects over to build the exported
// com.RFC.sysgenid interface. Its methods never touch Generation
// themselves; they hand a closure to the loop goroutine and wait for
// its result, so godbus's per-call goroutines never race each other.
type methodTable struct {
	reqCh chan request
}

// call enqueues do and blocks for its result.
func (m *methodTable) call(do func(g *generation.Generation) (interface{}, error)) (interface{}, error) {
	reply := make(chan result, 1)
	m.reqCh <- request{do: do, reply: reply}
	r := <-reply
	return r.val, r.err
}

// GetSysGenCounter implements the bus method of the same name.
func (m *methodTable) GetSysGenCounter() (uint32, *dbus.Error) {
	v, _ := m.call(func(g *generation.Generation) (interface{}, error) {
		return g.Get(), nil
	})
	return v.(uint32), nil
}

// AckWatcherCounter implements the bus method of the same name. The
// dbus.Sender parameter is populated by godbus with the caller's
// unique connection name and is not part of the method's wire
// signature.
func (m *methodTable) AckWatcherCounter(watcherCounter uint32, sender dbus.Sender) (uint32, *dbus.Error) {
	v, err := m.call(func(g *generation.Generation) (interface{}, error) {
		return g.Ack(registry.PeerId(sender), watcherCounter)
	})
	if err != nil {
		return 0, staleAckError(err)
	}
	return v.(uint32), nil
}

// CountOutdatedWatchers implements the bus method of the same name.
func (m *methodTable) CountOutdatedWatchers() (uint32, *dbus.Error) {
	v, _ := m.call(func(g *generation.Generation) (interface{}, error) {
		return g.OutdatedCount(), nil
	})
	return v.(uint32), nil
}

// TriggerSysGenUpdate implements the bus method of the same name. It
// has no reply payload.
func (m *methodTable) TriggerSysGenUpdate(minGen uint32) *dbus.Error {
	_, _ = m.call(func(g *generation.Generation) (interface{}, error) {
		return g.Bump(minGen), nil
	})
	return nil
}

// staleAckError converts a generation.ErrStaleAck into a bus error.
func staleAckError(err error) *dbus.Error {
	if errors.Is(err, generation.ErrStaleAck) {
		return dbus.NewError(InterfaceName+".StaleAck", []interface{}{err.Error()})
	}
	return dbus.NewError(InterfaceName+".Failed", []interface{}{err.Error()})
}
