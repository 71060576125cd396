// Package store implements the snapshot backends behind index.SnapshotStore:
// plain JSON files (the default), a single-file SQLite database, and a
// shared Postgres schema keyed by workspace.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SchemaVersion is bumped on incompatible snapshot format changes.
// Loading a different version is an error, never a silent reinterpretation.
const SchemaVersion = 1

// checksumJSON returns the hex sha256 of v's canonical JSON encoding.
func checksumJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// hashWorkspace derives a short stable identifier from a workspace root,
// used to scope rows in shared databases.
func hashWorkspace(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:12]
}

func checkSchemaVersion(got int) error {
	if got != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (expected %d)", got, SchemaVersion)
	}
	return nil
}
