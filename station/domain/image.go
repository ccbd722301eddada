package domain

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
	"time"
)

// ImageRefPrefix is the path every persisted image reference starts with.
const ImageRefPrefix = "/api/stations/images/"

var imageKeyRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ImageInfo describes a blob held by an ImageStore.
type ImageInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ImageStore is a content-addressed blob store keyed by the hash of the blob bytes.
type ImageStore interface {
	// Put stores content under its hash and returns the key. Storing bytes that are
	// already present is a no-op.
	Put(ctx context.Context, content []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	// Stat fails with ErrNotFound when no blob exists under key.
	Stat(ctx context.Context, key string) (ImageInfo, error)
	// Delete fails with ErrNotFound when no blob exists under key.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ImageInfo, error)
}

// ContentKey returns the key content is stored under: the hex MD5 of its bytes.
func ContentKey(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// ValidImageKey reports whether key has the shape of a content hash.
func ValidImageKey(key string) bool {
	return imageKeyRegex.MatchString(key)
}

// NormalizeImageRef returns ref in reference form. A ref that already carries
// ImageRefPrefix is returned unchanged; a bare key is prefixed.
func NormalizeImageRef(ref string) string {
	if strings.HasPrefix(ref, ImageRefPrefix) {
		return ref
	}
	return ImageRefPrefix + ref
}

// ImageKeyFromRef extracts the storage key from a reference: the final path
// segment with any directory prefix stripped.
func ImageKeyFromRef(ref string) string {
	if ref == "" {
		return ""
	}
	return path.Base(ref)
}
