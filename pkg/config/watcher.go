package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/racegrid/log"
)

// WatchDisplayFile reloads the display settings whenever the file is written
// and hands valid settings to onChange. Invalid files are logged and ignored.
// The watcher stops when ctx is done.
func WatchDisplayFile(
	ctx context.Context,
	path string,
	onChange func(Display),
) error {
	l := log.GetFromContext(ctx).Named("config.watch")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				l.Info("context done, stopping display config reload")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					l.Info("watcher events channel closed, stopping display config reload")
					return
				}
				l.Debug("change detected",
					log.String("file", event.Name), log.Any("event", event))
				if event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Create == fsnotify.Create {

					d, err := LoadDisplayFile(path)
					if err != nil {
						l.Error("could not reload display config", log.ErrorField(err))
						continue
					}
					l.Info("display config reloaded", log.String("file", path))
					onChange(d)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					l.Info("watcher errors channel closed, stopping display config reload")
					return
				}
				l.Error("watcher error", log.ErrorField(err))
			}
		}
	}()
	return nil
}
