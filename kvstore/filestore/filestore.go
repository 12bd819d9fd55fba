// Package filestore keeps each key in its own file under a directory. Writes
// are atomic (temp file + rename) and other processes sharing the directory
// observe them through Watch.
package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-auth-link/kvstore"
)

const (
	evictLockName = ".evict.lock"
	fileSuffix    = ".json"
	dirMode       = 0o700
	fileMode      = 0o600
)

var _ kvstore.NotifyingStore = (*Store)(nil)

type envelope struct {
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	Sealed    bool       `json:"sealed,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Store struct {
	*kvstore.Broadcaster

	dir     string
	sealer  *kvstore.Sealer
	nowTime func() time.Time

	// mu serialises create-if-absent within this process; os.Link and the
	// evict lock cover other processes.
	mu sync.Mutex

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

type Option func(*Store)

// WithSealer encrypts every value at rest.
func WithSealer(s *kvstore.Sealer) Option {
	return func(st *Store) {
		st.sealer = s
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(st *Store) {
		st.nowTime = nowFunc
	}
}

func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[filestore New] directory is required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("[filestore New] create directory: %w", err)
	}
	s := &Store{
		Broadcaster: kvstore.NewBroadcaster(),
		dir:         dir,
		nowTime:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + fileSuffix
}

func keyFromFileName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func (s *Store) encode(key string, value []byte, ttl time.Duration) ([]byte, error) {
	env := envelope{Key: key, Value: value}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(key, value)
		if err != nil {
			return nil, err
		}
		env.Value = sealed
		env.Sealed = true
	}
	if ttl > 0 {
		exp := s.nowTime().Add(ttl)
		env.ExpiresAt = &exp
	}
	return json.Marshal(env)
}

// read returns the live value at key, ErrNotFound if absent or expired.
func (s *Store) read(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.ExpiresAt != nil && !s.nowTime().Before(*env.ExpiresAt) {
		return nil, kvstore.ErrNotFound
	}
	if env.Sealed {
		if s.sealer == nil {
			return nil, fmt.Errorf("read %s: value is encrypted and no key is configured", key)
		}
		return s.sealer.Open(key, env.Value)
	}
	return env.Value, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	return s.read(key)
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := s.encode(key, value, ttl)
	if err != nil {
		return err
	}
	tmp, err := s.writeTemp(data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	data, err := s.encode(key, value, ttl)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := s.writeTemp(data)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	for attempt := 0; attempt < 3; attempt++ {
		err = os.Link(tmp, s.path(key))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("link %s: %w", key, err)
		}
		// An expired entry does not count as present.
		evicted, evictErr := s.evictExpired(key)
		if evictErr != nil {
			return false, evictErr
		}
		if !evicted {
			return false, nil
		}
	}
	return false, nil
}

// evictExpired removes the entry at key if it has expired, reporting whether
// the key may now be claimed. Evictions hold a lock shared by every process
// using the directory, so an entry is only removed by the process that saw it
// expire; a fresh claim linked in the meantime cannot be removed by mistake.
func (s *Store) evictExpired(key string) (bool, error) {
	lf, err := os.OpenFile(filepath.Join(s.dir, evictLockName), os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return false, fmt.Errorf("open evict lock: %w", err)
	}
	defer lf.Close()
	if err := lockFile(lf); err != nil {
		return false, fmt.Errorf("lock evict: %w", err)
	}
	defer unlockFile(lf)

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, nil
	}
	if env.ExpiresAt == nil || s.nowTime().Before(*env.ExpiresAt) {
		return false, nil
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove expired %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Publish(_ context.Context, change kvstore.Change) error {
	if change.Origin == "" {
		change.Origin = s.Origin()
	}
	if change.At.IsZero() {
		change.At = s.nowTime()
	}
	s.Emit(change)
	return nil
}

func (s *Store) writeTemp(data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(name, fileMode)
	return name, nil
}
