package replay

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long a file must stay quiet before it is submitted, so a
// payload still being written is not read half way.
const settle = 250 * time.Millisecond

// Watcher submits payload files as they appear in a directory.
type Watcher struct {
	dir string
	fs  *fsnotify.Watcher
}

// NewWatcher starts watching dir. Files created after it returns are seen.
func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, fs: fw}, nil
}

// Run submits each new or rewritten *.json file once it settles, until ctx is
// done. Files are submitted one at a time.
func (w *Watcher) Run(ctx context.Context, sub Submitter, report func(Outcome)) error {
	defer func() { _ = w.fs.Close() }()

	ready := make(chan string)
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(settle)
			return
		}
		timers[path] = time.AfterFunc(settle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isPayload(filepath.Base(ev.Name)) {
				continue
			}
			schedule(ev.Name)
		case path := <-ready:
			o := submit(ctx, sub, path)
			if report != nil {
				report(o)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", w.dir, err)
		}
	}
}
