package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs the burst of fsnotify events a single editor
// save or ConfigMap symlink swap produces (SPEC_FULL.md §4.9).
const debounceWindow = 250 * time.Millisecond

// Watch watches the directory containing path and calls onReload with
// a freshly loaded Config each time path changes and parses
// successfully. A reload that fails validation is logged and skipped;
// the previous config keeps running. Watch blocks until done is
// closed.
func Watch(path string, onReload func(*Config), done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				cfg, err := Load(path)
				if err != nil {
					log.Printf("config: reload of %s failed, keeping previous config: %v", path, err)
					return
				}
				onReload(cfg)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config: watcher error: %v", err)
		case <-done:
			return nil
		}
	}
}
