package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"gopkg.in/yaml.v3"
)

var log = logger.GetLogger()

// Store is a string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

type MemoryStore struct {
	mutex  sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.values, key)
	return nil
}

// FileStore keeps values in a YAML document, every change is written to disk immediately.
type FileStore struct {
	path   string
	mutex  sync.Mutex
	values map[string]string
}

// NewFileStore loads the store from path. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}
	err := s.Reload()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces in-memory values with the file content.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	values := make(map[string]string)
	err = yaml.Unmarshal(data, &values)
	if err != nil {
		return fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}

	s.mutex.Lock()
	s.values = values
	s.mutex.Unlock()
	return nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.values[key] = value
	return s.flush()
}

func (s *FileStore) Remove(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

func (s *FileStore) flush() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(s.path), 0755)
	if err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp := s.path + ".tmp"
	err = os.WriteFile(tmp, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Watch reloads the store whenever the file is changed by another process and reports
// every successful reload on the returned channel. The channel is closed when ctx is done.
func (s *FileStore) Watch(ctx context.Context) <-chan bool {
	var change = make(chan bool)

	go func() {
		defer close(change)
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Info(fmt.Sprintf("preferences watcher failed: %v", err), logger.Warning)
			return
		}

		go func() {
			<-ctx.Done()
			err := watcher.Close()
			if err != nil {
				log.Info(fmt.Sprintf("closing watcher failed: %v", err), logger.Warning)
			}
		}()

		// the file is replaced on every write, so its directory is watched
		err = watcher.Add(filepath.Dir(s.path))
		if err != nil {
			log.Info(fmt.Sprintf("preferences watcher failed: %v", err), logger.Warning)
			return
		}

		name := filepath.Clean(s.path)
		for event := range watcher.Events {
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			err := s.Reload()
			if err != nil {
				log.Info(fmt.Sprintf("preferences reload failed: %v", err), logger.Warning)
				continue
			}
			log.Info(fmt.Sprintf("preferences change detected: %s", event.Name), logger.Debug)
			select {
			case change <- true:
			case <-ctx.Done():
				return
			}
		}
	}()

	return change
}
