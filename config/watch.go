package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-loads the configuration whenever the file at path changes and
// hands each successfully parsed snapshot to onChange. It blocks until ctx is
// cancelled. Parse failures are logged and the previous snapshot stays in
// effect.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(Config)) error {
	if log == nil {
		log = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and config mounts
	// replace the file atomically, which unwatches a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed, keeping previous", slog.String("err", err.Error()))
				continue
			}
			log.Info("config reloaded", slog.String("path", path))
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", slog.String("err", err.Error()))
		}
	}
}
