package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yeka/zip"
)

// Open decrypts the single entry of an archive produced by Pack and
// returns its name and content.
func Open(archive []byte, password string) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", nil, fmt.Errorf("read archive: %w", err)
	}
	if len(r.File) != 1 {
		return "", nil, fmt.Errorf("archive has %d entries, want 1", len(r.File))
	}
	f := r.File[0]
	if !f.IsEncrypted() {
		return f.Name, nil, fmt.Errorf("entry %s is not encrypted", f.Name)
	}
	f.SetPassword(password)
	rc, err := f.Open()
	if err != nil {
		return f.Name, nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return f.Name, nil, fmt.Errorf("read entry: %w", err)
	}
	return f.Name, data, nil
}
