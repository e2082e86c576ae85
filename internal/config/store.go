package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dshills/svnsync/internal/config/loader"
	"github.com/dshills/svnsync/internal/config/notify"
)

// Change is a configuration update delivered to OnChange observers.
type Change = notify.Change

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "SVNSYNC_"

// Reader is read access to the current settings.
type Reader interface {
	// Settings returns a snapshot; callers may keep it.
	Settings() Settings

	// OnChange registers fn for every subsequent change and returns a
	// function that removes it.
	OnChange(fn func(Change)) (unsubscribe func())
}

// Store holds the live settings.
//
// Thread-safety: All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	current  Settings
	path     string
	fs       loader.FileSystem
	env      *loader.EnvLoader
	notifier *notify.Notifier
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFile makes the store load path on Load and Reload.
func WithFile(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

// WithFileSystem replaces the OS file system.
func WithFileSystem(fsys loader.FileSystem) StoreOption {
	return func(s *Store) {
		s.fs = fsys
	}
}

// WithEnv enables SVNSYNC_* overrides.
func WithEnv() StoreOption {
	return func(s *Store) {
		s.env = loader.NewEnvLoader(EnvPrefix, Keys())
	}
}

// WithLogger sets the logger used for ignored keys.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store holding Defaults. Nothing is read until Load.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		current:  Defaults(),
		fs:       loader.OSFS{},
		notifier: notify.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load creates a store and reads its sources once.
func Load(opts ...StoreOption) (*Store, error) {
	s := NewStore(opts...)
	settings, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current = settings
	return s, nil
}

// Settings returns the current snapshot.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Path returns the configuration file path, if any.
func (s *Store) Path() string {
	return s.path
}

// OnChange implements Reader.
func (s *Store) OnChange(fn func(Change)) func() {
	sub := s.notifier.Subscribe(fn)
	return sub.Unsubscribe
}

// Reload re-reads every source. On error the current settings stay.
func (s *Store) Reload() error {
	next, err := s.read()
	if err != nil {
		return err
	}
	s.replace(next, "file")
	return nil
}

// Update applies fn to a copy of the current settings and publishes the
// result. Used for command-line overrides and tests.
func (s *Store) Update(fn func(*Settings)) {
	s.mu.RLock()
	next := s.current.Clone()
	s.mu.RUnlock()

	fn(&next)
	s.replace(next, "set")
}

// Set assigns one key from a loosely typed value.
func (s *Store) Set(key string, raw any) error {
	s.mu.RLock()
	next := s.current.Clone()
	s.mu.RUnlock()

	if err := next.Set(key, raw); err != nil {
		return err
	}
	s.replace(next, "set")
	return nil
}

// Close stops change delivery.
func (s *Store) Close() {
	s.notifier.Close()
}

func (s *Store) replace(next Settings, source string) {
	s.mu.Lock()
	changed := s.current.Diff(next)
	s.current = next
	s.mu.Unlock()

	if len(changed) > 0 {
		s.logger.Debug("configuration changed",
			slog.String("source", source),
			slog.Any("keys", changed))
	}
	s.notifier.Notify(Change{Keys: changed, Source: source})
}

// read builds settings from defaults, the file and the environment.
// Unknown keys are logged and skipped; invalid values fail the read.
func (s *Store) read() (Settings, error) {
	settings := Defaults()
	flat := make(map[string]any)

	if s.path != "" {
		doc, err := loader.Load(s.fs, s.path)
		if err != nil {
			return Settings{}, err
		}
		flat = loader.Merge(flat, loader.Flatten(doc))
	}
	if s.env != nil {
		flat = loader.Merge(flat, s.env.Load())
	}

	var errs []error
	for _, key := range loader.Keys(flat) {
		err := settings.Set(key, flat[key])
		if errors.Is(err, ErrUnknownSetting) {
			s.logger.Warn("ignoring unknown setting", slog.String("key", key))
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("config %s: %w", s.path, errors.Join(errs...))
	}

	return settings, nil
}
