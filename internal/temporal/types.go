// Package temporal defines the hash-chained state log and conflict records
// that the synchronization protocol maintains per remote instance.
package temporal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resolution describes how a sync conflict was settled
type Resolution string

const (
	// ResolutionUnresolved means no resolution has been recorded yet
	ResolutionUnresolved Resolution = ""

	// ResolutionSourceWins accepts the incoming write and supersedes the
	// existing unresolved entry
	ResolutionSourceWins Resolution = "source_wins"

	// ResolutionTargetWins keeps the existing state and rejects the
	// incoming write
	ResolutionTargetWins Resolution = "target_wins"

	// ResolutionMerge combines both states
	ResolutionMerge Resolution = "merge"

	// ResolutionManual defers the decision to an operator
	ResolutionManual Resolution = "manual"
)

// ConflictType categorizes a detected divergence. The core ships value
// detection; the remaining types are reserved for richer resolution policies.
type ConflictType string

const (
	// ConflictTypeValue is a plain hash mismatch between states
	ConflictTypeValue ConflictType = "value"

	// ConflictTypeStructure is a divergence in state shape
	ConflictTypeStructure ConflictType = "structure"

	// ConflictTypeTimestamp is a divergence in time ordering
	ConflictTypeTimestamp ConflictType = "timestamp"

	// ConflictTypeVersion is a divergence in schema or data version
	ConflictTypeVersion ConflictType = "version"
)

// OperationStatus is the lifecycle state of a sync operation. An operation
// is terminal once its status leaves OperationSyncing.
type OperationStatus string

const (
	// OperationSyncing means the push is in flight
	OperationSyncing OperationStatus = "syncing"

	// OperationSynced means the push completed, with at most an
	// automatically resolved conflict
	OperationSynced OperationStatus = "synced"

	// OperationConflict means the push completed but requires manual
	// conflict resolution
	OperationConflict OperationStatus = "conflict"
)

// SyncInstance is a remote peer participating in synchronization
type SyncInstance struct {
	// ID is the unique identifier for this instance
	ID string `json:"id"`

	// EndpointID references the endpoint this instance is reached through
	EndpointID string `json:"endpointId,omitempty"`

	// LastSyncAt is the timestamp of the last completed sync toward this instance
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	// SyncCount is the total number of completed sync operations
	SyncCount int64 `json:"syncCount"`

	// ConflictCount is the total number of conflicts detected
	ConflictCount int64 `json:"conflictCount"`
}

// StateEntry is one append-only node in an instance's temporal chain.
// Entries are never mutated or removed once committed; resolution appends
// a new entry rather than editing history.
type StateEntry struct {
	// ID is the unique identifier for this entry
	ID uuid.UUID `json:"id"`

	// InstanceID is the instance whose chain this entry belongs to
	InstanceID string `json:"instanceId"`

	// Timestamp orders entries within a chain
	Timestamp time.Time `json:"timestamp"`

	// StateHash is the hash of the state this entry records
	StateHash string `json:"stateHash"`

	// PreviousStateHash links to the preceding entry's StateHash,
	// nil for the first entry of an instance
	PreviousStateHash *string `json:"previousStateHash,omitempty"`

	// UnresolvedConflictIDs references conflicts still requiring manual
	// resolution when this entry was appended
	UnresolvedConflictIDs []uuid.UUID `json:"unresolvedConflictIds,omitempty"`

	// Resolved is false only while a manual resolution is outstanding
	Resolved bool `json:"resolved"`
}

// Conflict records one detected divergence between an incoming state and
// the chain head. Resolution is set exactly once and is thereafter immutable.
type Conflict struct {
	// ID is the unique identifier for this conflict
	ID uuid.UUID `json:"id"`

	// OperationID references the sync operation that detected the conflict
	OperationID uuid.UUID `json:"operationId"`

	// InstanceID is the target instance the conflict occurred on
	InstanceID string `json:"instanceId"`

	// Type categorizes the divergence
	Type ConflictType `json:"type"`

	// SourceHash is the incoming state's hash
	SourceHash string `json:"sourceHash"`

	// TargetHash is the existing chain head's hash
	TargetHash string `json:"targetHash"`

	// Resolution is how the conflict was settled, empty while unresolved
	Resolution Resolution `json:"resolution,omitempty"`

	// DetectedAt is when the conflict was created
	DetectedAt time.Time `json:"detectedAt"`

	// ResolvedAt is when the resolution was recorded
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Operation is a single push attempt from a source toward a target instance
type Operation struct {
	// ID is the unique identifier for this operation
	ID uuid.UUID `json:"id"`

	// SourceInstanceID is the instance the payload originates from
	SourceInstanceID string `json:"sourceInstanceId"`

	// TargetInstanceID is the instance the payload is pushed toward
	TargetInstanceID string `json:"targetInstanceId"`

	// SyncType labels the kind of data being synchronized
	SyncType string `json:"syncType"`

	// Payload is the data being pushed
	Payload json.RawMessage `json:"payload"`

	// Timestamp is when the operation started
	Timestamp time.Time `json:"timestamp"`

	// Status is the operation's lifecycle state
	Status OperationStatus `json:"status"`
}

// HashPayload computes the canonical hash of a sync payload: sha256 over
// the payload bytes, hex encoded.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks forward-append integrity of entries ordered oldest
// first: the first entry must have no predecessor and every subsequent
// entry's PreviousStateHash must equal the preceding entry's StateHash.
func VerifyChain(entries []*StateEntry) error {
	for i, entry := range entries {
		if i == 0 {
			if entry.PreviousStateHash != nil {
				return fmt.Errorf("entry %s: first entry has a previous state hash", entry.ID)
			}
			continue
		}
		prev := entries[i-1]
		if entry.PreviousStateHash == nil {
			return fmt.Errorf("entry %s: missing link to previous entry %s", entry.ID, prev.ID)
		}
		if *entry.PreviousStateHash != prev.StateHash {
			return fmt.Errorf("entry %s: previous state hash %s does not match entry %s hash %s",
				entry.ID, *entry.PreviousStateHash, prev.ID, prev.StateHash)
		}
	}
	return nil
}
