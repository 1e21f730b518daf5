package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Get when no object exists under the key.
// Implementations map their backend's not-found signal to this sentinel so
// callers can tell a missing object from an infrastructure fault.
var ErrObjectNotFound = errors.New("object not found")

// Package storage contains file/object storage abstractions and utilities for object stores (S3-compatible).
// Implementations must avoid using local disk and rely on streaming I/O only.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a reusable, S3-compatible object storage client interface.
// Contract payloads live under keys derived from the contract UUID
// (contracts/{id}/original.pdf, contracts/{id}/signed.pdf); a completed Put
// is immediately visible to a subsequent Get of the same key.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}
