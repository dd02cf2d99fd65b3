package artifact

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveCredentials holds the OAuth client and the long-lived refresh token
// used to act on behalf of the export account.
type DriveCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Drive implements Folder on Google Drive. Locations are Drive folder ids.
type Drive struct {
	svc *drive.Service
}

// NewDrive authenticates with creds and returns a Drive folder.
func NewDrive(ctx context.Context, creds DriveCredentials) (*Drive, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("artifact: drive client: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// NewDriveWithService wraps an existing client, e.g. one pointed at a test server.
func NewDriveWithService(svc *drive.Service) *Drive {
	return &Drive{svc: svc}
}

// ViewLink returns the shareable view URL of a Drive file.
func ViewLink(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view?usp=drive_link"
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// FindByName implements Folder.
func (d *Drive) FindByName(ctx context.Context, locationID, name string) (Ref, bool, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		queryEscaper.Replace(locationID), queryEscaper.Replace(name))
	res, err := d.svc.Files.List().
		Q(q).
		Fields("files(id,name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Ref{}, false, fmt.Errorf("drive list: %w", err)
	}
	if len(res.Files) == 0 {
		return Ref{}, false, nil
	}
	id := res.Files[0].Id
	return Ref{ID: id, Link: ViewLink(id)}, true, nil
}

// Create implements Folder.
func (d *Drive) Create(ctx context.Context, locationID, name string, content []byte, mime string) (Ref, error) {
	meta := &drive.File{Name: name, Parents: []string{locationID}, MimeType: mime}
	f, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(content), googleapi.ContentType(mime)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Ref{}, fmt.Errorf("drive create: %w", err)
	}
	return Ref{ID: f.Id, Link: ViewLink(f.Id)}, nil
}

// Replace implements Folder.
func (d *Drive) Replace(ctx context.Context, id string, content []byte, mime string) (Ref, error) {
	f, err := d.svc.Files.Update(id, &drive.File{}).
		Media(bytes.NewReader(content), googleapi.ContentType(mime)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Ref{}, fmt.Errorf("drive update: %w", err)
	}
	return Ref{ID: f.Id, Link: ViewLink(f.Id)}, nil
}
