package middleware

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// WatchFile reloads the key file at path whenever it changes, until ctx is
// done. The parent directory is watched so that editors and config
// management tools that replace the file by rename are picked up too. A
// reload that fails is logged and the previous keys stay in effect.
// onReload, if set, runs after every reload attempt.
func (s *KeyStore) WatchFile(ctx context.Context, path string, logger *observability.Logger, onReload func(error)) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create key file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	logger = logger.WithField("keys_file", path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				err := s.LoadFile(path)
				if err != nil {
					logger.WithError(err).Error("Failed to reload API keys, keeping previous keys")
				} else {
					logger.Infof("Reloaded API keys: %d known", s.Len())
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Key file watcher error")
			}
		}
	}()
	return nil
}
