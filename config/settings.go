package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Settings is the hot-reloadable part of configuration. Credentials live
// here so rotating them applies to the next request without a restart.
type Settings struct {
	// InstallationID identifies this installation; it salts the bearer hash
	// and names audit log files.
	InstallationID string `json:"installationID"`

	// BearerTokenHash is hex(sha256(secret + installationID)). Empty
	// disables the bearer scheme.
	BearerTokenHash string `json:"bearerTokenHash"`

	// AccessTeamDomain and AccessAudience configure the identity-proxy
	// scheme. Both must be set for it to apply.
	AccessTeamDomain string `json:"accessTeamDomain"`
	AccessAudience   string `json:"accessAudience"`

	// WritePolicy is the tool safety tier, applied once at startup.
	WritePolicy string `json:"writePolicy"`

	// FilterNotebooks and FilterDocuments are newline-separated id lists
	// excluded from every tool.
	FilterNotebooks string `json:"filterNotebooks"`
	FilterDocuments string `json:"filterDocuments"`

	// Index service wiring. Empty IndexProviderURL disables indexing.
	IndexProviderURL string `json:"indexProviderURL"`
	IndexAPIKey      string `json:"indexAPIKey"`

	// DefaultNotebook receives daily notes and flashcard documents.
	DefaultNotebook string `json:"defaultNotebook"`
	// FlashcardDeckID is the deck new flashcards join; empty selects the
	// quick deck.
	FlashcardDeckID string `json:"flashcardDeckID"`
}

// Watcher serves the current settings value and refreshes it when the file
// changes on disk. Readers get a consistent snapshot via Current.
type Watcher struct {
	path string
	log  *slog.Logger
	cur  atomic.Pointer[Settings]
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Watch loads path and begins watching it for changes. A missing file yields
// zero-value settings and is picked up on creation.
func Watch(path string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{path: path, log: log, done: make(chan struct{})}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("settings watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch settings dir: %w", err)
	}
	w.fsw = fsw
	go w.run()
	return w, nil
}

// Current returns the latest settings snapshot.
func (w *Watcher) Current() Settings {
	return *w.cur.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := w.reload(); err != nil {
				w.log.Warn("settings.reload.fail", slog.String("err", err.Error()))
				continue
			}
			w.log.Info("settings.reload")
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings.watch.fail", slog.String("err", err.Error()))
		}
	}
}

// reload parses the file and swaps the snapshot. A malformed file keeps the
// previous snapshot.
func (w *Watcher) reload() error {
	b, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			if w.cur.Load() == nil {
				w.cur.Store(&Settings{})
			}
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	w.cur.Store(&s)
	return nil
}
