// Package objectid defines the data model shared by every GEDS component:
// the (bucket, key) identity, the location-URI/size/sealed-offset record
// the MDS tracks per object, and the validation rules both sides of the
// wire must agree on.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package objectid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/geds-project/geds/internal/xerrors"
)

// bucketReg mirrors the bucket-name grammar from spec §3: starts and ends
// with a lowercase letter or digit, 3-63 characters total, interior chars
// restricted to lowercase letters, digits, dots and dashes.
var bucketReg = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)

// ID is the (bucket, key) identity of an object.
type ID struct {
	Bucket string
	Key    string
}

// Identifier is bucket+"/"+key, the string every handle carries as its
// log-friendly name.
func (id ID) Identifier() string { return id.Bucket + "/" + id.Key }

func (id ID) String() string { return id.Identifier() }

// ValidateBucket applies the grammar from spec §3: lowercase alnum/dot/dash,
// 3-63 chars, no "xn--" prefix (reserved, mirrors S3's punycode-collision
// restriction), no uppercase, no "/".
func ValidateBucket(bucket string) error {
	if !bucketReg.MatchString(bucket) {
		return xerrors.InvalidArgumentf(
			"bucket name %q is invalid: must match %s", bucket, bucketReg.String())
	}
	if strings.HasPrefix(bucket, "xn--") {
		return xerrors.InvalidArgumentf("bucket name %q must not start with \"xn--\"", bucket)
	}
	return nil
}

// ValidateKey applies the grammar from spec §3: non-empty, not "." or "..",
// no leading "/" or "./" path segments.
func ValidateKey(key string) error {
	if key == "" {
		return xerrors.InvalidArgumentf("key must not be empty")
	}
	if key == "." || key == ".." {
		return xerrors.InvalidArgumentf("key %q is invalid", key)
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "./") {
		return xerrors.InvalidArgumentf("key %q must not start with \"/\" or \"./\"", key)
	}
	return nil
}

// Validate checks both halves of id.
func (id ID) Validate() error {
	if err := ValidateBucket(id.Bucket); err != nil {
		return err
	}
	return ValidateKey(id.Key)
}

// Location URI schemes, spec §3/glossary.
const (
	SchemeGEDS = "geds" // geds://host:port — peer
	SchemeS3   = "s3"   // s3://bucket/key — backing store
	// a bare filesystem path (no "://") denotes a local location.
)

// IsPeerLocation reports whether loc is a "geds://host:port" peer URI.
func IsPeerLocation(loc string) bool { return strings.HasPrefix(loc, SchemeGEDS+"://") }

// IsBackingStoreLocation reports whether loc is an "s3://bucket/key" URI.
func IsBackingStoreLocation(loc string) bool { return strings.HasPrefix(loc, SchemeS3+"://") }

// IsLocalLocation reports whether loc names a local filesystem path (no
// recognized URI scheme).
func IsLocalLocation(loc string) bool {
	return !IsPeerLocation(loc) && !IsBackingStoreLocation(loc)
}

// ParsePeerLocation splits a "geds://host:port" URI into host and port.
func ParsePeerLocation(loc string) (host, port string, err error) {
	rest := strings.TrimPrefix(loc, SchemeGEDS+"://")
	if rest == loc {
		return "", "", xerrors.InvalidArgumentf("not a geds:// location: %q", loc)
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", "", xerrors.InvalidArgumentf("missing port in geds:// location: %q", loc)
	}
	return rest[:idx], rest[idx+1:], nil
}

// ParseS3Location splits an "s3://bucket/key" URI.
func ParseS3Location(loc string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(loc, SchemeS3+"://")
	if rest == loc {
		return "", "", xerrors.InvalidArgumentf("not an s3:// location: %q", loc)
	}
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", "", xerrors.InvalidArgumentf("missing key in s3:// location: %q", loc)
	}
	return rest[:idx], rest[idx+1:], nil
}

// Info is the mutable record the MDS keeps per object (spec §3).
type Info struct {
	Location     string `json:"location"`
	Size         uint64 `json:"size"`
	SealedOffset uint64 `json:"sealed_offset"`
	Metadata     []byte `json:"metadata,omitempty"`
}

// IsSealed reports whether the object is fully immutable (sealed offset
// covers the entire object).
func (i Info) IsSealed() bool { return i.SealedOffset >= i.Size }

// Clone returns a deep copy, since lookups must return a snapshot rather
// than a live reference (spec §4.4: "lookup(id) returns a snapshot of the
// info (not a reference)").
func (i Info) Clone() Info {
	cp := i
	if i.Metadata != nil {
		cp.Metadata = append([]byte(nil), i.Metadata...)
	}
	return cp
}

func (i Info) String() string {
	return fmt.Sprintf("Info{location=%s, size=%d, sealedOffset=%d}", i.Location, i.Size, i.SealedOffset)
}
