package catalog

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/toolgate/toolgate/internal/event"
	"github.com/toolgate/toolgate/internal/logging"
)

// Watcher reloads the catalog when a tool definition file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	patterns []string
	onReload func(*Catalog)
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher over the directories covered by the tool file
// patterns. Returns nil if no patterns are configured.
func NewWatcher(patterns []string, onReload func(*Catalog)) (*Watcher, error) {
	if len(patterns) == 0 {
		logging.Debug().Msg("no tool file patterns, catalog watcher disabled")
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the static base directory of each pattern plus the directories
	// of currently matched files, so new files are picked up too.
	for dir := range watchDirs(patterns) {
		if err := w.Add(dir); err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("cannot watch tool file directory")
		}
	}

	return &Watcher{
		watcher:  w,
		patterns: patterns,
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for tool file changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				if isToolFile(ev.Name) {
					w.reload(ev.Name)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("catalog watcher error")
		}
	}
}

func (w *Watcher) reload(path string) {
	c, err := LoadGlobs(w.patterns)
	if err != nil {
		// Keep serving the previous catalog.
		logging.Error().Err(err).Str("path", path).Msg("catalog reload failed")
		return
	}

	logging.Info().Str("path", path).Int("tools", c.Len()).Msg("catalog reloaded")
	if w.onReload != nil {
		w.onReload(c)
	}

	event.PublishSync(event.Event{
		Type: event.CatalogReloaded,
		Data: event.CatalogReloadedData{Path: path, Tools: c.Len()},
	})
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
		// Already stopped
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}

// watchDirs resolves the directory set covering the patterns and any files
// they currently match.
func watchDirs(patterns []string) map[string]bool {
	dirs := make(map[string]bool)
	for _, pattern := range patterns {
		base, _ := doublestar.SplitPattern(pattern)
		dirs[base] = true
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			dirs[filepath.Dir(m)] = true
		}
	}
	return dirs
}

func isToolFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".yaml", ".yml":
		return true
	}
	return false
}
