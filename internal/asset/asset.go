// Package asset stores event images outside the database. The service only
// needs two operations: put a blob and get back a durable reference, and
// delete by that reference.
package asset

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNotFound is returned by Delete when the reference is unknown.
var ErrNotFound = errors.New("asset not found")

// ErrUnsupportedType is returned by Put for blobs that are not images.
var ErrUnsupportedType = errors.New("unsupported asset type")

// Blob is an uploaded file.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store puts and deletes binary assets.
type Store interface {
	Put(ctx context.Context, blob Blob) (string, error)
	Delete(ctx context.Context, ref string) error
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniffImage detects the blob's content type from its bytes and returns the
// file extension to store it under.
func sniffImage(data []byte) (string, string, error) {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ext, ok := imageExtensions[ct]
	if !ok {
		return "", "", ErrUnsupportedType
	}
	return ct, ext, nil
}

// keyFromRef extracts the storage key (last path segment) from a reference.
func keyFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}
