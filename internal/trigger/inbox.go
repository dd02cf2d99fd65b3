package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Sub-directories of the inbox that receive handled documents.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const settleDelay = 200 * time.Millisecond

// WatchInbox ingests *.json submission documents dropped into dir until ctx
// is cancelled. Files already present at start are ingested first. Each file
// is handled once writes to it have settled, then moved to ProcessedDir or,
// when it cannot be applied, to FailedDir.
func WatchInbox(ctx context.Context, dir string, h *Writes, logger *slog.Logger) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("trigger: create inbox: %w", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("trigger: watch inbox: %w", err)
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	pending := make(map[string]struct{})
	existing, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	for _, p := range existing {
		pending[p] = struct{}{}
	}

	settle := time.NewTimer(settleDelay)
	defer settle.Stop()
	if len(pending) == 0 {
		settle.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("inbox: stopped")
			return nil

		case <-settle.C:
			for p := range pending {
				ingestFile(ctx, dir, p, h, logger)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			settle.Reset(settleDelay)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

func ingestFile(ctx context.Context, dir, path string, h *Writes, logger *slog.Logger) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("inbox: read failed", slog.String("file", name), slog.String("error", err.Error()))
		}
		return
	}

	dest := ProcessedDir
	if err := applyDoc(ctx, data, h); err != nil {
		logger.Warn("inbox: submission rejected", slog.String("file", name), slog.String("error", err.Error()))
		dest = FailedDir
	}
	if err := os.Rename(path, filepath.Join(dir, dest, name)); err != nil {
		logger.Warn("inbox: move failed", slog.String("file", name), slog.String("error", err.Error()))
	}
}

func applyDoc(ctx context.Context, data []byte, h *Writes) error {
	var doc SubmissionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	s, err := doc.Submission()
	if err != nil {
		return err
	}
	_, err = h.Apply(ctx, s)
	return err
}
