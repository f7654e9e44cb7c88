package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/luki/nutetra/internal/sensor"
)

const (
	bucket     = "settings"
	currentKey = "current"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("settings: not found")

// Store persists settings in a bbolt database and keeps the current value
// in memory so the engine can read ranges on every update.
type Store struct {
	db *bolt.DB

	mu  sync.RWMutex
	cur Settings
}

// Open opens (or creates) the settings database at path and loads the
// stored settings, falling back to Defaults.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	s := &Store{db: db}
	cur, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.cur = cur
	return s, nil
}

func (s *Store) load() (Settings, error) {
	cur := Defaults()
	err := s.Get(currentKey, &cur)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return cur, nil
}

// Get decodes the JSON value stored under key into v.
func (s *Store) Get(key string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

// Put stores v as JSON under key.
func (s *Store) Put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

// Current returns the settings in effect.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Ranges returns the target ranges derived from the current settings.
func (s *Store) Ranges() map[sensor.Channel]sensor.TargetRange {
	return s.Current().Ranges()
}

// Save validates and persists new settings.
func (s *Store) Save(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if err := s.Put(currentKey, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = next.clone()
	s.mu.Unlock()
	return nil
}

// ApplyProfile switches the active plant profile and persists it.
func (s *Store) ApplyProfile(name string) (Settings, error) {
	next := s.Current()
	if err := next.ApplyProfile(name); err != nil {
		return Settings{}, err
	}
	if err := s.Save(next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
