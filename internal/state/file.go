package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

var ErrLocked = errors.New("state file is locked by another run")

// document is the on-disk layout.
type document struct {
	ProcessedIDs []string    `json:"processed_ids"`
	LastTS       json.Number `json:"last_ts"`
}

// FileStore keeps RunState in a single JSON file. Saves go through a temp
// file and rename; the previous version is kept as <path>.bak.
type FileStore struct {
	path string
	lock *flock.Flock
	log  *zap.Logger
}

func NewFileStore(path string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log.Named("state"),
	}
}

func (f *FileStore) Path() string { return f.path }

// Lock takes an exclusive, non-blocking lock on <path>.lock.
func (f *FileStore) Lock() (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	ok, err := f.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return f.lock.Unlock, nil
}

// Load never fails: a missing file means first run, and an unreadable or
// corrupt one is logged and treated the same way.
func (f *FileStore) Load() RunState {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		// a crash between the two renames in Save leaves only the backup
		b, err = os.ReadFile(f.path + ".bak")
		if errors.Is(err, os.ErrNotExist) {
			return New()
		}
	}
	if err != nil {
		f.log.Warn("state unreadable; starting from empty state", zap.String("path", f.path), zap.Error(err))
		return New()
	}

	s, err := decode(b)
	if err != nil {
		f.log.Warn("state corrupt; starting from empty state", zap.String("path", f.path), zap.Error(err))
		return New()
	}
	return s
}

func decode(b []byte) (RunState, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return RunState{}, err
	}

	s := New()
	for _, id := range doc.ProcessedIDs {
		if id != "" {
			s.Mark(id)
		}
	}
	if doc.LastTS != "" {
		ts, err := doc.LastTS.Int64()
		if err != nil {
			fl, ferr := doc.LastTS.Float64()
			if ferr != nil || fl < 0 || fl > math.MaxInt64 {
				return RunState{}, fmt.Errorf("last_ts %q: %w", doc.LastTS, err)
			}
			ts = int64(fl)
		}
		if ts > 0 {
			s.LastSeenTS = ts
		}
	}
	return s, nil
}

func (f *FileStore) Save(s RunState) error {
	b, err := json.MarshalIndent(struct {
		ProcessedIDs []string `json:"processed_ids"`
		LastTS       int64    `json:"last_ts"`
	}{s.IDs(), s.LastSeenTS}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	bak := f.path + ".bak"

	if err := writeSync(tmp, append(b, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	_ = os.Remove(bak)
	if err := os.Rename(f.path, bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backup %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func writeSync(path string, b []byte) error {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(b); err != nil {
		_ = fh.Close()
		return err
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
