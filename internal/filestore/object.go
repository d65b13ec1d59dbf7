package filestore

import (
	"errors"
	"io"
	"time"
)

// ErrNotFound is wrapped by errors for a missing bucket or object.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading.
type Object interface {
	io.ReadCloser

	Info() *ObjectInfo
}

// ListOptions controls how ListObjects filters results.
type ListOptions struct {
	// Prefix restricts results to keys starting with it.
	Prefix string

	// Limit caps the number of results. 0 means no cap.
	Limit int
}
