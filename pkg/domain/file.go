package domain

import (
	"bytes"
	"encoding"
	"io"
	"os"
)

// Role tags a slot and the payload derived from it.
type Role string

const (
	RoleImage    Role = "image"
	RoleDocument Role = "document"
)

var (
	_ encoding.TextMarshaler = Role("")
)

func (r Role) MarshalText() ([]byte, error) { return []byte(string(r)), nil }

// Content is an openable handle on a file's bytes. It is opened at
// submission time, so a file that disappears after selection surfaces as a
// read error then rather than at selection.
type Content interface {
	Open() (io.ReadCloser, error)
}

type SelectedFile struct {
	Name      string  `json:"name"`
	MediaType string  `json:"mediaType"`
	Size      int64   `json:"size"`
	Content   Content `json:"-"`
}

// PathContent reads from a path on disk every time it is opened.
type PathContent string

func (p PathContent) Open() (io.ReadCloser, error) { return os.Open(string(p)) }

// BytesContent serves an in-memory buffer.
type BytesContent []byte

func (b BytesContent) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}
