package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle is how long the file must stay quiet before a reload.
// Editors and config-map mounts produce several events per save.
const reloadSettle = 250 * time.Millisecond

// Watch reloads path when it changes and hands the result to onChange. It
// runs until ctx is cancelled.
//
// The parent directory is watched, so saves that replace the file by rename
// are seen. Bursts of events are collapsed into one reload after
// reloadSettle of quiet. A reload that fails validation is logged and
// dropped, as is one identical to the config last delivered.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return watch(ctx, path, reloadSettle, onChange)
}

func watch(ctx context.Context, path string, settle time.Duration, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	// Seed with the current file so a touch without edits is a no-op.
	last, _ := Load(abs)

	slog.Info("config: watching for changes", "path", abs)

	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(settle)

		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			if last != nil && *cfg == *last {
				slog.Debug("config: file touched, contents unchanged", "path", abs)
				continue
			}
			last = cfg
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
