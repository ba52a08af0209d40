package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrNotFound is returned when no snapshot exists for an ID.
	ErrNotFound  = errors.New("snapshot not found")
	ErrInvalidID = errors.New("invalid snapshot id")
)

// SnapshotMeta describes a page capture taken when a run aborted.
type SnapshotMeta struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	TargetID  string    `json:"target_id"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message,omitempty"`
	Format    string    `json:"format"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// NewID returns a fresh snapshot ID.
func NewID() string {
	return uuid.NewString()
}

// Store keeps snapshot images next to a JSON sidecar per snapshot.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *Store) paths(meta SnapshotMeta) (img, sidecar string) {
	return filepath.Join(s.dir, meta.ID+"."+meta.Format), filepath.Join(s.dir, meta.ID+".json")
}

// Save writes the image and its metadata. SizeBytes is filled from imageData.
func (s *Store) Save(meta SnapshotMeta, imageData []byte) (SnapshotMeta, error) {
	if err := s.validateID(meta.ID); err != nil {
		return SnapshotMeta{}, err
	}
	if meta.Format == "" {
		meta.Format = "png"
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.SizeBytes = len(imageData)

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath, jsonPath := s.paths(meta)
	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return SnapshotMeta{}, fmt.Errorf("snapshot store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(jsonPath, data, 0o644)
	}
	if err != nil {
		if rmErr := os.Remove(imgPath); rmErr != nil {
			slog.Debug("snapshot image cleanup failed", "id", meta.ID, "error", rmErr)
		}
		return SnapshotMeta{}, fmt.Errorf("snapshot store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads snapshot metadata by ID.
func (s *Store) Get(id string) (SnapshotMeta, error) {
	if err := s.validateID(id); err != nil {
		return SnapshotMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(filepath.Join(s.dir, id+".json"), id)
}

func (s *Store) readMeta(path, id string) (SnapshotMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return SnapshotMeta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}
	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SnapshotMeta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns snapshots newest first. When runID is non-empty only that
// run's snapshots are returned.
func (s *Store) List(runID string) ([]SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}

	metas := make([]SnapshotMeta, 0, len(matches))
	for _, path := range matches {
		meta, err := s.readMeta(path, filepath.Base(path))
		if err != nil {
			slog.Debug("snapshot list skipped unreadable sidecar", "path", path, "error", err)
			continue
		}
		if runID != "" && meta.RunID != runID {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage returns the raw image bytes and their format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	imgPath, _ := s.paths(meta)
	data, err := os.ReadFile(imgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: image for %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes both the image and the metadata file.
func (s *Store) Delete(id string) error {
	meta, err := s.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath, jsonPath := s.paths(meta)
	if err := os.Remove(imgPath); err != nil {
		slog.Debug("snapshot image cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(jsonPath); err != nil {
		return fmt.Errorf("snapshot store: remove meta: %w", err)
	}
	return nil
}
