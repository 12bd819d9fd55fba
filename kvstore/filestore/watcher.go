package filestore

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/rs/zerolog/log"
)

// Watch starts delivering changes made to the directory by any process
// (including this one) to subscribers. It is a no-op when already watching.
func (s *Store) Watch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("[filestore Watch] new watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("[filestore Watch] watch %s: %w", s.dir, err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})

	// Capture channels before releasing the lock so Close cannot race the reader.
	go s.processEvents(watcher.Events, watcher.Errors, s.stopCh)

	log.Debug().Str("dir", s.dir).Msg("watching store directory for changes")
	return nil
}

func (s *Store) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			log.Err(err).Str("dir", s.dir).Msg("store watcher error")
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	key, ok := keyFromFileName(filepath.Base(event.Name))
	if !ok {
		return
	}
	s.Emit(kvstore.Change{Key: key, Origin: "fs", At: s.nowTime()})
}

// Close stops watching. The store remains usable.
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher == nil {
		return nil
	}
	close(s.stopCh)
	err := s.watcher.Close()
	s.watcher = nil
	if err != nil && !errors.Is(err, fsnotify.ErrClosed) {
		return err
	}
	return nil
}
