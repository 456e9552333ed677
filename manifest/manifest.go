// Package manifest tracks the engine's durable state: the set of flushed
// runs and the snapshot frontier.
//
// Manifests are immutable JSON blobs named MANIFEST-<id>; the CURRENT blob
// points at the live one. A commit writes the new manifest first and then
// swings CURRENT, so a crash between the two leaves the previous state
// intact. On backends that can compare-and-swap CURRENT (see
// blobstore/s3.DDBCommitStore), concurrent committers are rejected rather
// than lost.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/lsmgo/blobstore"
	"github.com/hupe1980/lsmgo/model"
)

const (
	// CurrentName is the blob holding the live manifest's name.
	CurrentName = "CURRENT"

	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
)

// Manifest describes the engine state at a single commit.
type Manifest struct {
	Version      int            `json:"version"`
	ID           uint64         `json:"id"`
	NextRunID    model.RunID    `json:"next_run_id"`
	LastSnapshot model.Snapshot `json:"last_snapshot"`
	Runs         []RunInfo      `json:"runs"`
}

// RunInfo describes a single flushed run.
type RunInfo struct {
	ID          model.RunID    `json:"id"`
	Level       model.Level    `json:"level"`
	Records     int            `json:"records"`
	Tombstones  int            `json:"tombstones"`
	SnapshotMin model.Snapshot `json:"snapshot_min"`
}

// Ref returns the run's RunRef.
func (ri RunInfo) Ref() model.RunRef {
	return model.RunRef{ID: ri.ID, Level: ri.Level}
}

// Store manages manifest blobs and atomic CURRENT updates.
type Store struct {
	blobs blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a manifest store on top of a blob store.
func NewStore(blobs blobstore.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Load returns the current manifest, or an empty one if none has been
// committed yet.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx, CurrentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return &Manifest{Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := s.read(ctx, string(current))
	if err != nil {
		return nil, fmt.Errorf("manifest %q: %w", current, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", current, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save commits a new manifest: the manifest blob is written first, CURRENT
// swings after. The manifest's ID is bumped in place.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++

	name := fmt.Sprintf("MANIFEST-%06d.json", m.ID)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if err := s.blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write manifest %q: %w", name, err)
	}
	if err := s.blobs.Put(ctx, CurrentName, []byte(name)); err != nil {
		return fmt.Errorf("commit CURRENT: %w", err)
	}

	return nil
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	blob, err := s.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := blob.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}
