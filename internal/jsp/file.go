// Package jsp (JSON persistence) saves and loads JSON-encoded structures
// atomically: encode to a temp file beside the destination, then rename
// over it, so a crash mid-write never leaves a half-written file at the
// real path. Grounded on the teacher's cmn/jsp/file.go Save/Load, trimmed
// to drop the teacher's checksum/compression envelope and signature
// header (spec §6's "persisted state" is limited to the node's ephemeral
// cache directory plus whatever config snapshot a deployment chooses to
// keep on disk — no wire-compatible meta-version format is named).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/geds-project/geds/internal/glog"
)

// Save JSON-encodes v and atomically replaces path with the result.
func Save(path string, v interface{}) (err error) {
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())

	data, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
				glog.Errorf("jsp: failed to remove %s after save error %v: %v", tmp, err, rmErr)
			}
		}
	}()

	if err = os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}

// Load reads and JSON-decodes path into v.
func Load(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(data, v)
}
