package filter

import (
	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// Watch reloads the filter whenever one of its rule files changes. The
// returned stop function releases the watcher. onReload, when non-nil,
// runs after every successful reload so the caller can reset its cache.
func (f *Filter) Watch(onReload func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, path := range f.RuleFiles() {
		if err := watcher.Add(path); err != nil {
			zlog.Warn("Rule file watch failed", "path", path, "error", err.Error())
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				zlog.Info("Rule file changed, reloading", "path", event.Name)
				if err := f.Reload(); err != nil {
					zlog.Error("Rule reload failed", "error", err.Error())
					continue
				}
				if onReload != nil {
					onReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zlog.Warn("Rule file watcher error", "error", err.Error())
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
