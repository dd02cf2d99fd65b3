// Package artifact publishes export files into named folders, replacing
// any existing file of the same name so every export has a stable
// identifier across rebuilds.
package artifact

import (
	"context"
	"fmt"
)

// MIME types of the published artifacts.
const (
	MimeCSV = "text/csv"
	MimeZip = "application/zip"
)

// Ref identifies a stored file.
type Ref struct {
	ID   string
	Link string
}

// Folder is a remote or local location holding artifacts.
type Folder interface {
	// FindByName returns the first non-deleted file called name in locationID.
	FindByName(ctx context.Context, locationID, name string) (Ref, bool, error)
	// Create stores a new file called name in locationID.
	Create(ctx context.Context, locationID, name string, content []byte, mime string) (Ref, error)
	// Replace overwrites the content of an existing file, keeping its identifier.
	Replace(ctx context.Context, id string, content []byte, mime string) (Ref, error)
}

// Upsert stores content under name in locationID. An existing file with the
// same name has its content replaced in place; otherwise a new one is created.
func Upsert(ctx context.Context, f Folder, locationID, name string, content []byte, mime string) (Ref, error) {
	existing, found, err := f.FindByName(ctx, locationID, name)
	if err != nil {
		return Ref{}, fmt.Errorf("artifact: find %s: %w", name, err)
	}
	if found {
		ref, err := f.Replace(ctx, existing.ID, content, mime)
		if err != nil {
			return Ref{}, fmt.Errorf("artifact: replace %s: %w", name, err)
		}
		return ref, nil
	}
	ref, err := f.Create(ctx, locationID, name, content, mime)
	if err != nil {
		return Ref{}, fmt.Errorf("artifact: create %s: %w", name, err)
	}
	return ref, nil
}
