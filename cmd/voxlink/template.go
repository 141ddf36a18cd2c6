package main

import (
	"sync"

	"github.com/MrWong99/voxlink/internal/app"
	"github.com/MrWong99/voxlink/internal/config"
)

// templateStore holds the session template read by App.Connect and swapped by
// the config watcher.
type templateStore struct {
	mu  sync.RWMutex
	cur app.Template
	err error // initial build error
}

func newTemplateStore(cfg *config.Config) *templateStore {
	s := &templateStore{}
	s.err = s.update(cfg)
	return s
}

func (s *templateStore) update(cfg *config.Config) error {
	sc, err := cfg.LiveSession()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = app.Template{Session: sc, Greeting: cfg.Session.Greeting}
	s.mu.Unlock()
	return nil
}

func (s *templateStore) get() app.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
