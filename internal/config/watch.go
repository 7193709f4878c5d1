package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/logging"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 150 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     logrus.FieldLogger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	once sync.Once
}

// Watch calls onChange with the freshly read settings of path every time it
// is written. The directory is watched so that editors replacing the file by
// rename are seen too.
func Watch(path string, log logrus.FieldLogger, onChange func(values map[string]any)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		watcher: fw,
		path:    abs,
		log:     logging.OrDiscard(log).WithField("file", abs),
		done:    make(chan struct{}),
	}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func(map[string]any)) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(onChange)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) schedule(onChange func(map[string]any)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, func() {
		select {
		case <-w.done:
			return
		default:
		}

		values, err := readFile(w.path)
		if err != nil {
			w.log.WithError(err).Warn("config reload failed")
			return
		}
		if values == nil {
			return
		}
		w.log.Debug("config file changed")
		onChange(values)
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
