// Package glog re-exports the process-wide structured logger used by every
// GEDS package, the same way aistore's packages all import its vendored
// copy of glog rather than reaching for the standard log package directly.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package glog

import (
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Smodule identifies the subsystem emitting a log line so that verbosity
// can be tuned per package via GEDS_DEBUG=<module>=<level>.
type Smodule uint8

const (
	SmoduleNode Smodule = iota
	SmoduleMDS
	SmoduleKVS
	SmoduleHandle
	SmoduleTransport
	SmoduleBackend
	SmoduleStats
	SmoduleAdmin
)

var smoduleNames = map[Smodule]string{
	SmoduleNode:      "node",
	SmoduleMDS:       "mds",
	SmoduleKVS:       "kvs",
	SmoduleHandle:    "handle",
	SmoduleTransport: "transport",
	SmoduleBackend:   "backend",
	SmoduleStats:     "stats",
	SmoduleAdmin:     "admin",
}

func (s Smodule) String() string { return smoduleNames[s] }

func Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func Errorf(format string, args ...interface{})   { glog.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})   { glog.Fatalf(format, args...) }
func Flush()                                      { glog.Flush() }

// V reports whether verbosity level v is enabled, mirroring glog.V so call
// sites can write `if glog.V(4) { glog.Infof(...) }` guards on hot paths.
func V(level glog.Level) bool { return bool(glog.V(level)) }

// ParseDebugSpec parses a comma-separated list of <module>=<level> pairs,
// e.g. "transport=4,mds=2" (the GEDS_DEBUG env var's format). An unknown
// module name or a non-integer level is skipped rather than rejected — a
// typo in an env var should not prevent the process from starting.
func ParseDebugSpec(raw string) map[Smodule]glog.Level {
	levels := make(map[Smodule]glog.Level)
	if raw == "" {
		return levels
	}
	byName := make(map[string]Smodule, len(smoduleNames))
	for m, name := range smoduleNames {
		byName[name] = m
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m, ok := byName[kv[0]]
		if !ok {
			continue
		}
		lvl, err := strconv.Atoi(kv[1])
		if err != nil {
			continue
		}
		levels[m] = glog.Level(lvl)
	}
	return levels
}

// ModuleV reports whether m is configured via GEDS_DEBUG at or above
// level, letting a hot per-subsystem call site opt into per-module
// verbosity instead of the process-wide V() check. A module absent from
// GEDS_DEBUG is gated at level 0 only. The env var is re-read on every
// call rather than cached: ModuleV sits behind a request-rate call site,
// not a tight inner loop, so a live env change (e.g. via a debug sidecar)
// takes effect without a restart.
func ModuleV(m Smodule, level glog.Level) bool {
	return ParseDebugSpec(os.Getenv("GEDS_DEBUG"))[m] >= level
}
