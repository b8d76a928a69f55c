package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/japaniel/contractsort/pkg/metadata"
)

// Commit is one durable state transition: the full snapshot after the
// change plus the records that changed in it.
type Commit struct {
	Snapshot map[string]metadata.Record
	Changed  []metadata.Record
}

// Store persists registry state. Commit must be atomic: after it returns
// either the whole commit is durable or the prior state is.
type Store interface {
	Load(ctx context.Context) ([]metadata.Record, error)
	Commit(ctx context.Context, c Commit) error
}

// DefaultFileName is the registry document name used inside an output folder.
const DefaultFileName = "_backend_tracking_registry.json"

const fileVersion = 1

// fileData is the on-disk layout of the JSON store.
type fileData struct {
	Version                 int                        `json:"version"`
	UpdatedAt               time.Time                  `json:"updated_at"`
	TotalDocuments          int                        `json:"total_documents"`
	DocumentsWithExpiration int                        `json:"documents_with_expiration"`
	Records                 map[string]metadata.Record `json:"records"`
}

// JSONStore keeps the registry as a single JSON document rewritten in full
// on every commit.
type JSONStore struct {
	path string
	now  func() time.Time
}

// NewJSONStore returns a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, now: time.Now}
}

// Path returns the registry file location.
func (s *JSONStore) Path() string { return s.path }

// Load reads every record. A missing file is an empty registry.
func (s *JSONStore) Load(ctx context.Context) ([]metadata.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if fd.Version > fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, fd.Version)
	}
	out := make([]metadata.Record, 0, len(fd.Records))
	for id, rec := range fd.Records {
		if rec.TrackingID != id {
			return nil, fmt.Errorf("%w: key %q holds record %q", ErrCorrupt, id, rec.TrackingID)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Commit rewrites the whole document through a temp file, fsync and rename.
func (s *JSONStore) Commit(ctx context.Context, c Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fd := fileData{
		Version:        fileVersion,
		UpdatedAt:      s.now().UTC(),
		TotalDocuments: len(c.Snapshot),
		Records:        c.Snapshot,
	}
	for _, rec := range c.Snapshot {
		if _, ok := rec.Expiration(); ok {
			fd.DocumentsWithExpiration++
		}
	}
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return writeFileAtomicDurable(s.path, data, 0o600)
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// MemoryStore is a Store kept in process memory. FailNext makes the next
// commit fail, which lets callers exercise durability handling.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]metadata.Record
	commits  int
	failNext error
}

// NewMemoryStore returns a store preloaded with records.
func NewMemoryStore(records ...metadata.Record) *MemoryStore {
	m := &MemoryStore{records: make(map[string]metadata.Record, len(records))}
	for _, r := range records {
		m.records[r.TrackingID] = r.Clone()
	}
	return m
}

func (m *MemoryStore) Load(ctx context.Context) ([]metadata.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]metadata.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Commit(ctx context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	m.records = make(map[string]metadata.Record, len(c.Snapshot))
	for id, r := range c.Snapshot {
		m.records[id] = r.Clone()
	}
	m.commits++
	return nil
}

// FailNext makes the next Commit return err.
func (m *MemoryStore) FailNext(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

// Commits returns the number of successful commits.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
