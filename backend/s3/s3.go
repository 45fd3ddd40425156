// Package s3 implements the backing-store adapter contract (spec §4.3):
// list/head/get/put/deletePrefix against an S3-compatible endpoint, with
// normalized error kinds at the adapter boundary.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package s3

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	pkgerrors "github.com/pkg/errors"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/internal/glog"
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/path"
)

var _ handle.BackingStoreClient = BackingStoreClient{}

const maxDeleteBatch = 1000 // S3 DeleteObjects limit

// Entry is one item in a List response: either an object or a folded
// directory marker/common prefix.
type Entry struct {
	Key         string
	Size        int64
	IsDirectory bool
}

// Adapter wraps an *s3.S3 client bound to one endpoint/credential pair,
// built by NewAdapter. Registering an object store with the MDS does not
// create an Adapter; the caller builds one and hands it to the node.
type Adapter struct {
	svc *s3.S3
}

// NewAdapter dials an S3-compatible endpoint. url may be empty to use the
// default AWS resolver (real S3); otherwise it is treated as a custom
// endpoint (MinIO, Ceph RGW, etc.), matching how GEDS's original backend
// config plumbed an explicit endpoint/access/secret triple per bucket.
func NewAdapter(endpointURL, accessKey, secretKey string, pathStyle bool) (*Adapter, error) {
	cfg := aws.NewConfig().
		WithS3ForcePathStyle(pathStyle).
		WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	if endpointURL != "" {
		cfg = cfg.WithEndpoint(endpointURL).WithRegion("us-east-1")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, xerrors.Internalf("create s3 session: %v", err)
	}
	return &Adapter{svc: s3.New(sess)}, nil
}

// normalizeErr maps S3/AWS error codes onto the GEDS error taxonomy (spec §7):
// 404 -> NotFound, 401/AccessDenied -> PermissionDenied, else Unknown.
func normalizeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return xerrors.NotFoundf("%s: %v", op, aerr.Message())
		case "AccessDenied", "Unauthorized", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return xerrors.PermissionDeniedf("%s: %v", op, aerr.Message())
		default:
			return xerrors.Wrap(xerrors.KindUnknown, op, pkgerrors.WithStack(aerr))
		}
	}
	return xerrors.Wrap(xerrors.KindUnknown, op, pkgerrors.WithStack(err))
}

// List paginates via continuation tokens until a response carries none.
// A directory entry is emitted for a folded common prefix when delim is
// non-zero, or for an explicit "<delim>_$DirectoryMarker_" marker key
// otherwise; the marker representing prefix itself is suppressed.
func (a *Adapter) List(bucket, prefix string, delim byte) ([]Entry, error) {
	var (
		entries []Entry
		token   *string
	)
	delimStr := ""
	if delim != 0 {
		delimStr = string(delim)
	}
	selfMarker := prefix + string(delim) + path.DirectoryMarkerSuffix

	for {
		in := &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		}
		if delimStr != "" {
			in.Delimiter = aws.String(delimStr)
		}
		out, err := a.svc.ListObjectsV2(in)
		if err != nil {
			return nil, normalizeErr(fmt.Sprintf("list %s/%s", bucket, prefix), err)
		}
		for _, p := range out.CommonPrefixes {
			entries = append(entries, Entry{Key: aws.StringValue(p.Prefix), IsDirectory: true})
		}
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if key == selfMarker {
				continue // suppress the marker representing prefix itself
			}
			if delimStr == "" && strings.HasSuffix(key, path.DirectoryMarkerSuffix) {
				entries = append(entries, Entry{Key: key, IsDirectory: true})
				continue
			}
			entries = append(entries, Entry{Key: key, Size: aws.Int64Value(obj.Size)})
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return entries, nil
}

// Head returns the object's size, or NotFound.
func (a *Adapter) Head(bucket, key string) (size int64, err error) {
	out, err := a.svc.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, normalizeErr(fmt.Sprintf("head %s/%s", bucket, key), err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

// ByteRange is a half-open [Offset, Offset+Length) range, or the whole
// object when Whole is set (Offset and Length are then ignored).
type ByteRange struct {
	Offset, Length int64
	Whole          bool
}

func (r ByteRange) header() string {
	if r.Whole {
		return ""
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
}

// Get streams bytes into sink. On "invalid range" (object shrank between a
// stale size read and this request) it re-queries size and retries once
// with the range clamped to the new size.
func (a *Adapter) Get(bucket, key string, rng ByteRange, sink io.Writer) error {
	err := a.get(bucket, key, rng, sink)
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == "InvalidRange" && !rng.Whole {
		size, herr := a.Head(bucket, key)
		if herr != nil {
			return herr
		}
		if rng.Offset >= size {
			return nil // clamped range is now empty: nothing to read, not an error
		}
		clamped := rng
		if clamped.Offset+clamped.Length > size {
			clamped.Length = size - clamped.Offset
		}
		glog.Warningf("s3 get %s/%s: invalid range %s, retrying clamped to %s",
			bucket, key, rng.header(), clamped.header())
		return a.get(bucket, key, clamped, sink)
	}
	return err
}

func (a *Adapter) get(bucket, key string, rng ByteRange, sink io.Writer) error {
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if !rng.Whole {
		in.Range = aws.String(rng.header())
	}
	out, err := a.svc.GetObject(in)
	if err != nil {
		return normalizeErr(fmt.Sprintf("get %s/%s", bucket, key), err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(sink, out.Body); err != nil {
		return xerrors.Internalf("copy get %s/%s body: %v", bucket, key, err)
	}
	return nil
}

// Put uploads stream as application/octet-stream.
func (a *Adapter) Put(bucket, key string, stream io.ReadSeeker) error {
	_, err := a.svc.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        stream,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return normalizeErr(fmt.Sprintf("put %s/%s", bucket, key), err)
	}
	return nil
}

// DeletePrefix lists every key under prefix and deletes them in batches of
// at most maxDeleteBatch per request.
func (a *Adapter) DeletePrefix(bucket, prefix string) error {
	entries, err := a.List(bucket, prefix, 0)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDirectory {
			keys = append(keys, e.Key)
		}
	}
	return a.deleteBatched(bucket, keys)
}

func (a *Adapter) deleteBatched(bucket string, keys []string) error {
	for len(keys) > 0 {
		n := maxDeleteBatch
		if n > len(keys) {
			n = len(keys)
		}
		batch := keys[:n]
		keys = keys[n:]

		ids := make([]*s3.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = &s3.ObjectIdentifier{Key: aws.String(k)}
		}
		_, err := a.svc.DeleteObjects(&s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return normalizeErr(fmt.Sprintf("delete batch in %s", bucket), err)
		}
	}
	return nil
}

// BackingStoreClient adapts an Adapter to handle.BackingStoreClient's
// narrower (offset, length, whole) signature — the capability reference
// handle.BackingStore holds instead of a pointer back to the whole node.
type BackingStoreClient struct {
	*Adapter
}

func (b BackingStoreClient) Get(bucket, key string, offset, length int64, whole bool, dst io.Writer) error {
	return b.Adapter.Get(bucket, key, ByteRange{Offset: offset, Length: length, Whole: whole}, dst)
}

func (b BackingStoreClient) Put(bucket, key string, data io.ReadSeeker) error {
	return b.Adapter.Put(bucket, key, data)
}
