package taxonomy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the current taxonomy and can reload it from disk when the
// backing file changes. Reads never block.
type Store struct {
	path     string
	current  atomic.Pointer[Taxonomy]
	debounce time.Duration
	logger   *zap.Logger
}

// NewStore loads the taxonomy at path (the built-in table when empty).
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		debounce: 250 * time.Millisecond,
		logger:   logger,
	}
	s.current.Store(t)
	return s, nil
}

// Current returns the taxonomy in effect.
func (s *Store) Current() *Taxonomy {
	return s.current.Load()
}

// Reload re-reads the backing file. On error the previous table stays.
func (s *Store) Reload() error {
	t, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(t)
	return nil
}

// Watch reloads the taxonomy whenever its file is written, until ctx is
// done. It is a no-op for the built-in table.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create taxonomy watcher: %w", err)
	}

	// Editors often replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch taxonomy: %w", err)
	}

	go s.run(ctx, watcher)
	return nil
}

func (s *Store) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(s.path)
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload = time.After(s.debounce)

		case <-reload:
			reload = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("taxonomy reload failed, keeping previous table", zap.Error(err))
				continue
			}
			s.logger.Info("taxonomy reloaded", zap.String("path", s.path))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("taxonomy watcher error", zap.Error(err))
		}
	}
}
