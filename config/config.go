// Package config holds a node's runtime configuration: the listen/hostname
// pair, the local cache directory, the admin HTTP port, and the cache
// block size, plus the original source's extra log_level key (§5
// supplemented features). Grounded on the teacher's cmn/config.go: JSON
// load/save via jsoniter, and a per-key validated Set rather than a bag of
// exported fields callers mutate directly.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"strconv"

	"github.com/geds-project/geds/internal/jsp"
	"github.com/geds-project/geds/internal/xerrors"
)

// Config is a node's full runtime configuration.
type Config struct {
	ListenAddress    string `json:"listen_address"`
	Hostname         string `json:"hostname"` // empty means discover
	LocalStoragePath string `json:"local_storage_path"`
	Port             int    `json:"port"`
	HTTPServerPort   int    `json:"http_server_port"`
	CacheBlockSize   int64  `json:"cache_block_size"`
	LogLevel         string `json:"log_level"`

	// MetadataStorePath selects the MDS's placement-record backend: empty
	// (the default) means the in-memory kvs.Store, losing all placement
	// records on restart; a non-empty path opens kvs.PersistentStore at
	// that path instead, surviving restarts at the cost of a buntdb AOF
	// write per mutation. There is no per-bucket granularity: this picks
	// the backend for the whole MDS.
	MetadataStorePath string `json:"metadata_store_path"`
}

// Default returns a Config with the original source's defaults: INFO-level
// logging and a 32 MiB cache block, matching handle.DefaultCacheBlockSize.
func Default() Config {
	return Config{
		ListenAddress:    "0.0.0.0",
		LocalStoragePath: "/tmp/geds",
		Port:             9000,
		HTTPServerPort:   9001,
		CacheBlockSize:   32 << 20,
		LogLevel:         "info",
	}
}

// Load reads a JSON-encoded Config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := jsp.Load(path, &cfg); err != nil {
		return Config{}, xerrors.InvalidArgumentf("parsing config at %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as JSON to path, atomically (see internal/jsp).
func (c Config) Save(path string) error {
	return jsp.Save(path, c)
}

// Validate checks invariants that must hold regardless of how a Config was
// constructed: required keys present, ports in range.
func (c Config) Validate() error {
	if c.LocalStoragePath == "" {
		return xerrors.InvalidArgumentf("local_storage_path must not be empty")
	}
	if c.CacheBlockSize <= 0 {
		return xerrors.InvalidArgumentf("cache_block_size must be > 0")
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if err := validatePort(c.HTTPServerPort); err != nil {
		return err
	}
	return nil
}

func validatePort(p int) error {
	if p <= 0 || p > 65535 {
		return xerrors.InvalidArgumentf("port %d out of range", p)
	}
	return nil
}

// Set applies a single string-valued key update, validating the value for
// that specific key before assigning it. Keys are matched with an
// exhaustive switch rather than a chain of "if key == ..." branches: the
// original source's GEDSConfig::set("http_server_port", v) compared the
// key against an always-true `else if("http_server_port")` condition,
// silently executing the port branch no matter which key name was passed.
// A switch with no default fallthrough cannot reproduce that bug.
func (c *Config) Set(key, value string) error {
	switch key {
	case "listen_address":
		if value == "" {
			return xerrors.InvalidArgumentf("listen_address must not be empty")
		}
		c.ListenAddress = value

	case "hostname":
		c.Hostname = value // empty is valid: means "discover"

	case "local_storage_path":
		if value == "" {
			return xerrors.InvalidArgumentf("local_storage_path must not be empty")
		}
		c.LocalStoragePath = value

	case "port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return xerrors.InvalidArgumentf("port: %v", err)
		}
		if err := validatePort(p); err != nil {
			return err
		}
		c.Port = p

	case "http_server_port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return xerrors.InvalidArgumentf("http_server_port: %v", err)
		}
		if err := validatePort(p); err != nil {
			return err
		}
		c.HTTPServerPort = p

	case "cache_block_size":
		sz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return xerrors.InvalidArgumentf("cache_block_size: %v", err)
		}
		if sz <= 0 {
			return xerrors.InvalidArgumentf("cache_block_size must be > 0")
		}
		c.CacheBlockSize = sz

	case "log_level":
		c.LogLevel = value

	case "metadata_store_path":
		c.MetadataStorePath = value // empty is valid: means "in-memory"

	default:
		return xerrors.NotFoundf("unknown config key %q", key)
	}
	return nil
}

// Get returns the string form of a single key's current value, for the
// same key set Set accepts.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "listen_address":
		return c.ListenAddress, nil
	case "hostname":
		return c.Hostname, nil
	case "local_storage_path":
		return c.LocalStoragePath, nil
	case "port":
		return strconv.Itoa(c.Port), nil
	case "http_server_port":
		return strconv.Itoa(c.HTTPServerPort), nil
	case "cache_block_size":
		return strconv.FormatInt(c.CacheBlockSize, 10), nil
	case "log_level":
		return c.LogLevel, nil
	case "metadata_store_path":
		return c.MetadataStorePath, nil
	default:
		return "", xerrors.NotFoundf("unknown config key %q", key)
	}
}
