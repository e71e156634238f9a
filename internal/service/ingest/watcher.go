package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 500 * time.Millisecond

// Watcher ingests supported files created or rewritten in a directory.
// Bursts of write events for one path are collapsed until the file has
// been quiet for the settle period.
type Watcher struct {
	svc     *Service
	watcher *fsnotify.Watcher
	settle  time.Duration

	// OnIngest is called after each attempt; used by tests and the CLI.
	OnIngest func(Result, error)

	closeOnce sync.Once
}

// NewWatcher creates a watcher feeding svc.
func NewWatcher(svc *Service, settle time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{svc: svc, watcher: w, settle: settle}, nil
}

// Run watches dir until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	log.Printf("[ingest] watching %s", dir)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !SupportedExtension(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[ingest] watcher error: %v", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				result, err := w.svc.IngestFile(ctx, path)
				if err != nil {
					log.Printf("[ingest] auto-ingest %s failed: %v", path, err)
				}
				if w.OnIngest != nil {
					w.OnIngest(result, err)
				}
			}
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
