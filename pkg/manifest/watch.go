package manifest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/radiofrance/rollo/internal/logger"
)

// debounceDelay coalesces bursts of filesystem events (editors write several times per save).
const debounceDelay = 500 * time.Millisecond

// Watch watches the manifest tree rooted at manifestsPath and sends a signal on the
// returned channel every time a manifest changes. Events are debounced.
// The watcher stops when the context is cancelled.
func Watch(ctx context.Context, manifestsPath string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(manifestsPath, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(filePath)
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer func() {
			_ = watcher.Close()
		}()

		var timer *time.Timer
		pending := make(chan time.Time)

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsManifest(event.Name) && event.Op&fsnotify.Create == 0 {
					continue
				}
				// New directories must be added to the watch list.
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
						continue
					}
					if !IsManifest(event.Name) {
						continue
					}
				}
				logger.Debugf("Manifest change detected: %s (%s)", event.Name, event.Op)
				if timer == nil {
					timer = time.AfterFunc(debounceDelay, func() {
						pending <- time.Now()
					})
				} else {
					timer.Reset(debounceDelay)
				}
			case <-pending:
				timer = nil
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("Manifest watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, nil
}
