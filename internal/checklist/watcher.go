package checklist

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Watcher re-loads checklist definitions when their files change on disk and
// hands each valid re-loaded definition to the callback, typically a rescan
// of the tracker. Invalid documents are logged and skipped; the previous
// definition stays in force.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(Checklist)
	logger   Logger
	done     chan struct{}
}

func NewWatcher(dir string, onChange func(Checklist), logger Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:  fsWatcher,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			definition, err := LoadFile(event.Name)
			if err != nil {
				w.logger.Printf("ignoring checklist change %s: %v", filepath.Base(event.Name), err)
				continue
			}
			w.onChange(definition)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("checklist watcher error: %v", err)
		}
	}
}
