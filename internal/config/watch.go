// watch.go reloads the logging level when the config file changes on disk.
// Only logging.level is applied live; every other setting still requires a
// restart, which keeps reload semantics predictable.
package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel watches the config file at path and invokes apply with the new
// logging level whenever the file is rewritten. It blocks until ctx is
// cancelled, so callers run it in its own goroutine.
func WatchLogLevel(ctx context.Context, path string, apply func(level string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			level, err := readLogLevel(path)
			if err != nil {
				slog.Warn("config reload failed", "path", path, "error", err)
				continue
			}
			apply(level)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func readLogLevel(path string) (string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", err
	}
	level := v.GetString("logging.level")
	if level == "" {
		level = "info"
	}
	return level, nil
}
