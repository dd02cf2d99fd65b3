package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/artifact"
	"github.com/funmi/casi-export/internal/export"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Environment variables consulted when the config file leaves a secret empty.
const (
	EnvDriveClientID     = "DRIVE_CLIENT_ID"
	EnvDriveClientSecret = "DRIVE_CLIENT_SECRET"
	EnvDriveRefreshToken = "DRIVE_REFRESH_TOKEN"
	EnvDriveRawFolderID  = "DRIVE_RAW_FOLDER_ID"
	EnvDriveZipFolderID  = "DRIVE_ZIP_FOLDER_ID"
	EnvExportPassword    = "EXPORT_CSV_PASSWORD"
	EnvExportSalt        = "EXPORT_SALT"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Drive    DriveConfig       `yaml:"drive"`
	Export   ExportConfig      `yaml:"export"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	Inbox    InboxConfig       `yaml:"inbox"`
}

// Validate validates the configuration. Secrets are checked per command by
// ValidateForRebuild.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return c.Inbox.Validate()
}

// ApplyEnv fills empty secrets from the environment.
func (c *Config) ApplyEnv() {
	for _, s := range []struct {
		dst *string
		env string
	}{
		{&c.Drive.ClientID, EnvDriveClientID},
		{&c.Drive.ClientSecret, EnvDriveClientSecret},
		{&c.Drive.RefreshToken, EnvDriveRefreshToken},
		{&c.Drive.RawFolderID, EnvDriveRawFolderID},
		{&c.Drive.ZipFolderID, EnvDriveZipFolderID},
		{&c.Export.Password, EnvExportPassword},
		{&c.Export.Salt, EnvExportSalt},
	} {
		if *s.dst == "" {
			*s.dst = os.Getenv(s.env)
		}
	}
}

// ValidateForRebuild reports every secret missing for a local or, with
// upload, a publishing rebuild. The error wraps apperr.ErrConfig.
func (c *Config) ValidateForRebuild(upload bool) error {
	var missing []string
	check := func(v, name string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check(c.Export.Salt, "export.salt ("+EnvExportSalt+")")
	check(c.Export.Password, "export.password ("+EnvExportPassword+")")
	if upload {
		check(c.Drive.ClientID, "drive.client_id ("+EnvDriveClientID+")")
		check(c.Drive.ClientSecret, "drive.client_secret ("+EnvDriveClientSecret+")")
		check(c.Drive.RefreshToken, "drive.refresh_token ("+EnvDriveRefreshToken+")")
		check(c.Drive.RawFolderID, "drive.raw_folder_id ("+EnvDriveRawFolderID+")")
		check(c.Drive.ZipFolderID, "drive.zip_folder_id ("+EnvDriveZipFolderID+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), apperr.ErrConfig)
	}
	return nil
}

// RebuildConfig returns the settings handed to the export service.
func (c *Config) RebuildConfig() export.Config {
	return export.Config{
		Prefix:          c.Export.Prefix,
		Password:        c.Export.Password,
		Salt:            c.Export.Salt,
		DefaultTemplate: c.Export.DefaultTemplate,
		RawFolderID:     c.Drive.RawFolderID,
		ZipFolderID:     c.Drive.ZipFolderID,
		LeaseTTL:        c.Export.LeaseTTL,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// DriveConfig holds the file storage credentials and the two target folders:
// plain CSVs go to the raw folder, encrypted archives to the zip folder.
type DriveConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	RawFolderID  string `yaml:"raw_folder_id"`
	ZipFolderID  string `yaml:"zip_folder_id"`
}

// Configured reports whether credentials are present.
func (c *DriveConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Credentials returns the OAuth credentials for the Drive client.
func (c *DriveConfig) Credentials() artifact.DriveCredentials {
	return artifact.DriveCredentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RefreshToken: c.RefreshToken,
	}
}

// ExportConfig holds export naming, secrets and local output.
type ExportConfig struct {
	Password        string        `yaml:"password"`
	Salt            string        `yaml:"salt"`
	Prefix          string        `yaml:"prefix"`
	OutDir          string        `yaml:"out_dir"`
	DefaultTemplate string        `yaml:"default_template"`
	LeaseTTL        time.Duration `yaml:"lease_ttl"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Prefix, validation.Required),
		validation.Field(&c.OutDir, validation.Required),
		validation.Field(&c.DefaultTemplate, validation.Required),
		validation.Field(&c.LeaseTTL, validation.Required, validation.Min(time.Second)),
	)
}

// ScheduleConfig holds the nightly safety-net rebuild settings.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hour     int    `yaml:"hour"`
	Timezone string `yaml:"timezone"`
	Recent   int    `yaml:"recent"`
}

// Validate validates the schedule configuration.
func (c *ScheduleConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Hour, validation.Min(0), validation.Max(23)),
		validation.Field(&c.Recent, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// InboxConfig holds the submission inbox watched in serve mode.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./casi.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Export: ExportConfig{
			Prefix:          "CASI",
			OutDir:          "out",
			DefaultTemplate: "v1",
			LeaseTTL:        10 * time.Minute,
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Hour:     3,
			Timezone: "America/Regina",
			Recent:   2,
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
	}
}
