// Package source resolves audio input references to local files.
//
// A reference may be a local path, a full s3:// URI, or a bare object key
// that is looked up in the configured default bucket. Remote objects are
// verified with a head request before download, downloaded once, and
// cached on disk under the basename of their key so repeated runs of the
// same consultation do not re-download.
package source

import (
	"errors"
	"fmt"
	"strings"
)

// EnvDefaultBucket names the environment variable holding the default S3
// bucket for bare object keys.
const EnvDefaultBucket = "AUDIO_S3_BUCKET"

// DefaultRegion is the region clients are created in before any per-bucket
// rebinding.
const DefaultRegion = "ap-northeast-2"

// Sentinel errors returned by Resolve. All are wrapped with the bucket and
// key involved; match with errors.Is.
var (
	// ErrObjectNotFound means the bucket exists but the key does not.
	ErrObjectNotFound = errors.New("source: object not found")

	// ErrAccessDenied means the credentials cannot read the object.
	ErrAccessDenied = errors.New("source: access denied")

	// ErrNoSuchBucket means the referenced bucket does not exist.
	ErrNoSuchBucket = errors.New("source: no such bucket")

	// ErrNoBucket means a bare key or host-as-filename URI was given but
	// no default bucket is configured.
	ErrNoBucket = errors.New("source: no default bucket configured (set " + EnvDefaultBucket + ")")

	// ErrBadURI means the s3:// URI could not be parsed into a bucket and
	// key.
	ErrBadURI = errors.New("source: malformed s3 URI")
)

// Location is a parsed object reference.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as an s3:// URI.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseURI resolves an input reference to a bucket and key.
//
// Rules, in order:
//   - "s3://bucket/key..." splits on the first slash after the scheme.
//   - "s3://name.ext" (host contains a dot, no path) is a convenience
//     shorthand users produce by pasting filenames: the whole host is
//     treated as a key in the default bucket.
//   - anything without the s3:// scheme is a bare key in the default
//     bucket.
//
// References needing the default bucket fail with [ErrNoBucket] when
// defaultBucket is empty.
func ParseURI(uri, defaultBucket string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("%w: empty reference", ErrBadURI)
	}

	if !strings.HasPrefix(uri, "s3://") {
		if defaultBucket == "" {
			return Location{}, fmt.Errorf("%w: key %q", ErrNoBucket, uri)
		}
		return Location{Bucket: defaultBucket, Key: strings.TrimPrefix(uri, "/")}, nil
	}

	rest := strings.TrimPrefix(uri, "s3://")
	host, key, hasPath := strings.Cut(rest, "/")
	if host == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrBadURI, uri)
	}

	if !hasPath || key == "" {
		// No key component. A dotted host is a pasted filename, not a
		// bucket name.
		if strings.Contains(host, ".") {
			if defaultBucket == "" {
				return Location{}, fmt.Errorf("%w: key %q", ErrNoBucket, host)
			}
			return Location{Bucket: defaultBucket, Key: host}, nil
		}
		return Location{}, fmt.Errorf("%w: %q has no key", ErrBadURI, uri)
	}

	return Location{Bucket: host, Key: key}, nil
}
