// Package archive wraps CSV payloads into password-protected ZIP archives.
package archive

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"

	"github.com/funmi/casi-export/internal/apperr"
)

// Codec writes a complete archive holding one encrypted entry to w.
type Codec interface {
	WriteEncrypted(w io.Writer, name string, content []byte, password string) error
}

// Packager produces encrypted single-entry archives.
type Packager struct {
	codec Codec
}

// Option configures a Packager.
type Option func(*Packager)

// WithCodec replaces the archive codec.
func WithCodec(c Codec) Option {
	return func(p *Packager) {
		p.codec = c
	}
}

// NewPackager returns a Packager using AES-256 at best compression unless
// another codec is supplied.
func NewPackager(opts ...Option) *Packager {
	p := &Packager{codec: AESZip{Level: flate.BestCompression}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pack returns an archive with one entry named innerName holding content.
// The archive is opened again with password before it is returned; any
// codec failure or mismatch aborts the whole archive.
func (p *Packager) Pack(innerName string, content []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("archive: password is not configured: %w", apperr.ErrConfig)
	}
	if innerName == "" {
		return nil, fmt.Errorf("archive: entry name is required: %w", apperr.ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := p.codec.WriteEncrypted(&buf, innerName, content, password); err != nil {
		return nil, errors.Join(apperr.ErrPackaging, fmt.Errorf("archive: %s: %w", innerName, err))
	}

	name, got, err := Open(buf.Bytes(), password)
	if err != nil {
		return nil, errors.Join(apperr.ErrPackaging, fmt.Errorf("archive: verify %s: %w", innerName, err))
	}
	if name != innerName || !bytes.Equal(got, content) {
		return nil, errors.Join(apperr.ErrPackaging, fmt.Errorf("archive: verify %s: entry does not match input", innerName))
	}
	return buf.Bytes(), nil
}
