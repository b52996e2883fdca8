package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// Snapshot is the on-disk form of the registry
type Snapshot struct {
	UserTopics   map[domain.UserID]domain.ThreadID `json:"user_topics"`
	G2U          map[domain.MessageID]LinkValue    `json:"g2u"`
	U2G          map[domain.MessageID]LinkValue    `json:"u2g"`
	LastActivity map[domain.ThreadID]float64       `json:"last_activity"` // Epoch seconds
}

// LinkValue is one link table value. Older files stored a bare message id;
// those decode with Thread == 0.
type LinkValue struct {
	Msg    domain.MessageID `json:"msg"`
	Thread domain.ThreadID  `json:"thread"`
}

func (v *LinkValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		var id domain.MessageID
		if err := json.Unmarshal(b, &id); err != nil {
			return fmt.Errorf("invalid legacy link value %s: %w", b, err)
		}
		*v = LinkValue{Msg: id}
		return nil
	}

	type plain LinkValue
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*v = LinkValue(p)
	return nil
}

// NewSnapshot returns a snapshot with all maps allocated
func NewSnapshot() *Snapshot {
	return &Snapshot{
		UserTopics:   make(map[domain.UserID]domain.ThreadID),
		G2U:          make(map[domain.MessageID]LinkValue),
		U2G:          make(map[domain.MessageID]LinkValue),
		LastActivity: make(map[domain.ThreadID]float64),
	}
}

// SnapshotFile reads and writes a snapshot at Path, keeping the previous
// version at Path + ".bak"
type SnapshotFile struct {
	Path string
}

// NewSnapshotFile creates a snapshot file handle
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{Path: path}
}

func (f *SnapshotFile) backupPath() string {
	return f.Path + ".bak"
}

// Load reads the snapshot. When the main file is missing or unreadable the
// backup is tried. If neither exists the returned error wraps os.ErrNotExist.
func (f *SnapshotFile) Load() (*Snapshot, error) {
	snap, err := readSnapshot(f.Path)
	if err == nil {
		return snap, nil
	}

	backup, backupErr := readSnapshot(f.backupPath())
	if backupErr == nil {
		return backup, nil
	}
	if errors.Is(err, os.ErrNotExist) && errors.Is(backupErr, os.ErrNotExist) {
		return nil, err
	}
	return nil, fmt.Errorf("failed to load snapshot: %w (backup: %v)", err, backupErr)
}

// Save writes the snapshot atomically. The current file, if any, becomes
// the backup.
func (f *SnapshotFile) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmpPath := f.Path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if _, err := os.Stat(f.Path); err == nil {
		if err := os.Rename(f.Path, f.backupPath()); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to back up snapshot: %w", err)
		}
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

func readSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("snapshot %s is empty", path)
	}

	snap := NewSnapshot()
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	// An explicit null decodes to a nil map
	if snap.UserTopics == nil {
		snap.UserTopics = make(map[domain.UserID]domain.ThreadID)
	}
	if snap.G2U == nil {
		snap.G2U = make(map[domain.MessageID]LinkValue)
	}
	if snap.U2G == nil {
		snap.U2G = make(map[domain.MessageID]LinkValue)
	}
	if snap.LastActivity == nil {
		snap.LastActivity = make(map[domain.ThreadID]float64)
	}
	return snap, nil
}
