package mcpregistry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pellucid/hearth/internal/logging"
)

// overlayDebounce coalesces the burst of events a single save often
// produces (e.g. an editor's write-then-rename) into one reload.
const overlayDebounce = 200 * time.Millisecond

// WatchCatalogOverlay loads path once, then watches its parent directory
// and reloads the predefined-server overlay on every change to path, so an
// operator can add, hide, or override a predefined MCP server by editing
// <DATA_DIR>/catalog.yaml without restarting the process. Grounded on
// nexus's internal/skills.Manager watch loop (fsnotify.Watcher over a
// directory, filtered to the paths that matter, debounced before
// refreshing), narrowed from nexus's multi-directory skill-source tree to
// this domain's single overlay file. The watcher goroutine exits when ctx
// is done; a missing file at startup is not an error (LoadCatalogOverlay
// treats it as "no overlay yet").
func WatchCatalogOverlay(ctx context.Context, path string) error {
	if err := LoadCatalogOverlay(path); err != nil {
		logging.Logger.Warn().Err(err).Str("path", path).Msg("mcpregistry: loading catalog overlay")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go runCatalogWatch(ctx, watcher, path)
	return nil
}

func runCatalogWatch(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	target := filepath.Clean(path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	reload := func() {
		if err := LoadCatalogOverlay(path); err != nil {
			logging.Logger.Warn().Err(err).Str("path", path).Msg("mcpregistry: reloading catalog overlay")
			return
		}
		logging.Logger.Info().Str("path", path).Msg("mcpregistry: reloaded predefined-server catalog overlay")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(overlayDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Warn().Err(err).Msg("mcpregistry: catalog watcher error")
		}
	}
}
