// Package snapshot caches rendered tree drawings between pipeline stages.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentscope/internal/utils"
)

const (
	snapshotFilePrefix = "tree_"
	snapshotFileSuffix = ".txt"

	errorCreateDirectoryFormat = "creating snapshot directory %s: %w"
	errorWriteSnapshotFormat   = "writing snapshot %s: %w"
)

// Store persists one snapshot file per focus directory, keyed by the
// directory's base name. Snapshots carry no expiry; each run overwrites them.
type Store struct {
	directory string
}

// NewStore constructs a Store rooted in the snapshot subdirectory of configDirectory.
func NewStore(configDirectory string) *Store {
	return &Store{directory: filepath.Join(configDirectory, utils.SnapshotDirectoryName)}
}

// Path returns the snapshot file path for a directory base name.
func (snapshotStore *Store) Path(directoryName string) string {
	return filepath.Join(snapshotStore.directory, snapshotFilePrefix+directoryName+snapshotFileSuffix)
}

// Write stores the rendered tree lines for a directory, creating the
// snapshot directory on first use.
func (snapshotStore *Store) Write(directoryName string, treeLines []string) error {
	if makeDirectoryError := os.MkdirAll(snapshotStore.directory, 0o755); makeDirectoryError != nil {
		return fmt.Errorf(errorCreateDirectoryFormat, snapshotStore.directory, makeDirectoryError)
	}
	snapshotPath := snapshotStore.Path(directoryName)
	snapshotContent := strings.Join(treeLines, "\n")
	if writeError := os.WriteFile(snapshotPath, []byte(snapshotContent), 0o644); writeError != nil {
		return fmt.Errorf(errorWriteSnapshotFormat, snapshotPath, writeError)
	}
	return nil
}

// Read returns the cached snapshot content for a directory base name.
// The boolean result reports whether a snapshot file was found.
func (snapshotStore *Store) Read(directoryName string) (string, bool) {
	snapshotContent, readError := os.ReadFile(snapshotStore.Path(directoryName))
	if readError != nil {
		return "", false
	}
	return string(snapshotContent), true
}
