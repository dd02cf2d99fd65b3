// Package export rebuilds the anonymized data file and the re-identification
// key file of a reporting period, and publishes them with encrypted copies.
package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/funmi/casi-export/internal/archive"
	"github.com/funmi/casi-export/internal/artifact"
	"github.com/funmi/casi-export/internal/enrich"
	"github.com/funmi/casi-export/internal/header"
	"github.com/funmi/casi-export/internal/models"
)

// Store is the document store the rebuild reads from and writes to.
type Store interface {
	header.Records
	header.Templates
	enrich.Source

	GetPeriod(ctx context.Context, id string) (*models.Period, error)
	SubmittedForPeriod(ctx context.Context, periodID string) ([]models.Submission, error)
	MarkExported(ctx context.Context, respondentID, periodID string, at time.Time) (bool, error)
	PutExportManifest(ctx context.Context, periodID string, files models.Manifest, rows int, runID string, at time.Time) error
	AcquireLease(ctx context.Context, periodID, holder string, now time.Time, ttl time.Duration) error
	ReleaseLease(ctx context.Context, periodID, holder string) error
}

// EmailSource resolves a respondent's account email.
type EmailSource interface {
	Email(ctx context.Context, uid string) (string, error)
}

// Config holds the secrets and naming used by a rebuild.
type Config struct {
	Prefix          string
	Password        string
	Salt            string
	DefaultTemplate string
	RawFolderID     string
	ZipFolderID     string
	LeaseTTL        time.Duration
}

// Options select the mode of one rebuild.
type Options struct {
	// Upload publishes the four artifacts and writes the manifest. Without
	// it the two CSV files are written to the local folder only.
	Upload bool
}

// Result describes a finished rebuild.
type Result struct {
	PeriodID        string
	RunID           string
	TemplateVersion string
	Header          []string
	Rows            int
	DataCSV         []byte
	KeyCSV          []byte
	// Files is the persisted manifest; nil for local rebuilds.
	Files *models.Manifest
	// Local lists the files written by a local rebuild.
	Local []models.ArtifactFile
	// Degraded counts email or enrichment lookups that failed and were
	// rendered as empty values.
	Degraded int
}

// Service runs rebuilds.
type Service struct {
	cfg      Config
	db       Store
	emails   EmailSource
	local    artifact.Folder
	remote   artifact.Folder
	packager *archive.Packager
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	locks    periodLocks
}

// periodLocks serializes rebuilds of one period within the process. Each
// waiting caller gets its own run once the previous one has finished, so
// it collects every write stored before it called Rebuild.
type periodLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func (l *periodLocks) acquire(ctx context.Context, periodID string) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	slot, ok := l.slots[periodID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[periodID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Option configures a Service.
type Option func(*Service)

// WithRemote sets the folder that publishing rebuilds upload to.
func WithRemote(f artifact.Folder) Option {
	return func(s *Service) { s.remote = f }
}

// WithLocal sets the folder that local rebuilds write to.
func WithLocal(f artifact.Folder) Option {
	return func(s *Service) { s.local = f }
}

// WithEmails overrides the email lookup. It defaults to the store.
func WithEmails(e EmailSource) Option {
	return func(s *Service) { s.emails = e }
}

// WithPackager replaces the archive packager.
func WithPackager(p *archive.Packager) Option {
	return func(s *Service) { s.packager = p }
}

// WithObserver registers a receiver for phase events.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a rebuild service. db also serves email lookups when
// it implements EmailSource.
func NewService(cfg Config, db Store, opts ...Option) *Service {
	if cfg.Prefix == "" {
		cfg.Prefix = "CASI"
	}
	if cfg.DefaultTemplate == "" {
		cfg.DefaultTemplate = "v1"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	s := &Service{
		cfg:      cfg,
		db:       db,
		packager: archive.NewPackager(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	if e, ok := db.(EmailSource); ok {
		s.emails = e
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the artifact name prefix.
func (s *Service) Prefix() string { return s.cfg.Prefix }

func (s *Service) emit(e Event) {
	if s.observer == nil {
		return
	}
	e.At = s.now().UTC()
	s.observer.Observe(e)
}
