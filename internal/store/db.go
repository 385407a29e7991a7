package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
)

// uniqueViolation is the Postgres error code for duplicate keys
const uniqueViolation = "23505"

// dbStore is the Postgres-backed implementation of EndpointStore and
// TemporalStore. Single-entity mutation runs inside a transaction holding a
// row lock on the entity, so no cross-entity lock is ever taken.
type dbStore struct {
	pool *pgxpool.Pool
}

// NewDBStore creates a Postgres-backed store serving both the endpoint and
// temporal interfaces
func NewDBStore(pool *pgxpool.Pool) interface {
	EndpointStore
	TemporalStore
} {
	return &dbStore{pool: pool}
}

func (d *dbStore) CreateEndpoint(ctx context.Context, id string) (*status.Endpoint, error) {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO endpoints (id, status, consecutive_failures) VALUES ($1, $2, 0)`,
		id, string(status.EndpointDisconnected))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEndpointExists
		}
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}
	return &status.Endpoint{ID: id, Status: status.EndpointDisconnected}, nil
}

func (d *dbStore) GetEndpoint(ctx context.Context, id string) (*status.Endpoint, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, status, last_checked_at, consecutive_failures, last_error
		 FROM endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

func (d *dbStore) ListEndpoints(ctx context.Context) ([]*status.Endpoint, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, status, last_checked_at, consecutive_failures, last_error
		 FROM endpoints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var result []*status.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, rows.Err()
}

func (d *dbStore) UpdateEndpoint(
	ctx context.Context, id string, updateFn func(*status.Endpoint),
) (*status.Endpoint, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, status, last_checked_at, consecutive_failures, last_error
		 FROM endpoints WHERE id = $1 FOR UPDATE`, id)
	endpoint, err := scanEndpoint(row)
	if err != nil {
		return nil, err
	}

	updateFn(endpoint)

	var lastError *string
	if endpoint.LastError != "" {
		lastError = &endpoint.LastError
	}
	_, err = tx.Exec(ctx,
		`UPDATE endpoints
		 SET status = $2, last_checked_at = $3, consecutive_failures = $4, last_error = $5
		 WHERE id = $1`,
		id, string(endpoint.Status), endpoint.LastCheckedAt, endpoint.ConsecutiveFailures, lastError)
	if err != nil {
		return nil, fmt.Errorf("failed to update endpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (d *dbStore) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func (d *dbStore) CreateInstance(ctx context.Context, id, endpointID string) (*temporal.SyncInstance, error) {
	var epID *string
	if endpointID != "" {
		epID = &endpointID
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO sync_instances (id, endpoint_id, sync_count, conflict_count) VALUES ($1, $2, 0, 0)`,
		id, epID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrInstanceExists
		}
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	return &temporal.SyncInstance{ID: id, EndpointID: endpointID}, nil
}

func (d *dbStore) GetInstance(ctx context.Context, id string) (*temporal.SyncInstance, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, endpoint_id, last_sync_at, sync_count, conflict_count
		 FROM sync_instances WHERE id = $1`, id)
	return scanInstance(row)
}

func (d *dbStore) ListInstances(ctx context.Context) ([]*temporal.SyncInstance, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, endpoint_id, last_sync_at, sync_count, conflict_count
		 FROM sync_instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var result []*temporal.SyncInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (d *dbStore) RecordSyncResult(ctx context.Context, instanceID string, syncedAt time.Time, conflict bool) error {
	conflictDelta := 0
	if conflict {
		conflictDelta = 1
	}
	tag, err := d.pool.Exec(ctx,
		`UPDATE sync_instances
		 SET sync_count = sync_count + 1, conflict_count = conflict_count + $3, last_sync_at = $2
		 WHERE id = $1`,
		instanceID, syncedAt, conflictDelta)
	if err != nil {
		return fmt.Errorf("failed to record sync result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (d *dbStore) LatestEntry(ctx context.Context, instanceID string) (*temporal.StateEntry, error) {
	if err := d.instanceExists(ctx, instanceID); err != nil {
		return nil, err
	}

	row := d.pool.QueryRow(ctx,
		`SELECT id, instance_id, ts, state_hash, previous_state_hash, unresolved_conflict_ids, resolved
		 FROM temporal_state_entries
		 WHERE instance_id = $1
		 ORDER BY ts DESC, seq DESC
		 LIMIT 1`, instanceID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (d *dbStore) AppendEntry(ctx context.Context, entry *temporal.StateEntry, expectedHead *string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the instance row so concurrent appends for the same chain
	// serialize; appends to other instances proceed in parallel.
	var instanceID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM sync_instances WHERE id = $1 FOR UPDATE`, entry.InstanceID,
	).Scan(&instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("failed to lock instance: %w", err)
	}

	var head *string
	err = tx.QueryRow(ctx,
		`SELECT state_hash FROM temporal_state_entries
		 WHERE instance_id = $1
		 ORDER BY ts DESC, seq DESC
		 LIMIT 1`, entry.InstanceID,
	).Scan(&head)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to read chain head: %w", err)
	}

	if !hashesEqual(head, expectedHead) {
		return ErrChainHeadChanged
	}

	conflictIDs := entry.UnresolvedConflictIDs
	if conflictIDs == nil {
		conflictIDs = []uuid.UUID{}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO temporal_state_entries
		 (id, instance_id, ts, state_hash, previous_state_hash, unresolved_conflict_ids, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.InstanceID, entry.Timestamp, entry.StateHash,
		entry.PreviousStateHash, conflictIDs, entry.Resolved)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (d *dbStore) ListEntries(ctx context.Context, instanceID string, limit int) ([]*temporal.StateEntry, error) {
	if err := d.instanceExists(ctx, instanceID); err != nil {
		return nil, err
	}

	query := `SELECT id, instance_id, ts, state_hash, previous_state_hash, unresolved_conflict_ids, resolved
		 FROM temporal_state_entries
		 WHERE instance_id = $1
		 ORDER BY ts DESC, seq DESC`
	args := []any{instanceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var result []*temporal.StateEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (d *dbStore) CreateConflict(ctx context.Context, conflict *temporal.Conflict) error {
	var resolution *string
	if conflict.Resolution != temporal.ResolutionUnresolved {
		s := string(conflict.Resolution)
		resolution = &s
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO sync_conflicts
		 (id, operation_id, instance_id, conflict_type, source_hash, target_hash, resolution, detected_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		conflict.ID, conflict.OperationID, conflict.InstanceID, string(conflict.Type),
		conflict.SourceHash, conflict.TargetHash, resolution, conflict.DetectedAt, conflict.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

func (d *dbStore) ResolveConflict(
	ctx context.Context, id uuid.UUID, resolution temporal.Resolution, resolvedAt time.Time,
) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE sync_conflicts SET resolution = $2, resolved_at = $3
		 WHERE id = $1 AND resolution IS NULL`,
		id, string(resolution), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already resolved; distinguish for the caller
		var exists bool
		if err := d.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sync_conflicts WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check conflict: %w", err)
		}
		if !exists {
			return ErrConflictNotFound
		}
		return ErrConflictResolved
	}
	return nil
}

func (d *dbStore) GetConflict(ctx context.Context, id uuid.UUID) (*temporal.Conflict, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, operation_id, instance_id, conflict_type, source_hash, target_hash, resolution, detected_at, resolved_at
		 FROM sync_conflicts WHERE id = $1`, id)

	var conflict temporal.Conflict
	var conflictType string
	var resolution *string
	err := row.Scan(&conflict.ID, &conflict.OperationID, &conflict.InstanceID, &conflictType,
		&conflict.SourceHash, &conflict.TargetHash, &resolution, &conflict.DetectedAt, &conflict.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	conflict.Type = temporal.ConflictType(conflictType)
	if resolution != nil {
		conflict.Resolution = temporal.Resolution(*resolution)
	}
	return &conflict, nil
}

func (d *dbStore) CreateOperation(ctx context.Context, op *temporal.Operation) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO sync_operations (id, source_instance_id, target_instance_id, sync_type, payload, ts, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op.ID, op.SourceInstanceID, op.TargetInstanceID, op.SyncType, []byte(op.Payload), op.Timestamp, string(op.Status))
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

func (d *dbStore) CompleteOperation(ctx context.Context, id uuid.UUID, opStatus temporal.OperationStatus) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE sync_operations SET status = $2 WHERE id = $1`,
		id, string(opStatus))
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}
	return nil
}

func (d *dbStore) GetOperation(ctx context.Context, id uuid.UUID) (*temporal.Operation, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, source_instance_id, target_instance_id, sync_type, payload, ts, status
		 FROM sync_operations WHERE id = $1`, id)

	var op temporal.Operation
	var opStatus string
	var payload []byte
	err := row.Scan(&op.ID, &op.SourceInstanceID, &op.TargetInstanceID, &op.SyncType,
		&payload, &op.Timestamp, &opStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	op.Payload = payload
	op.Status = temporal.OperationStatus(opStatus)
	return &op, nil
}

func (d *dbStore) instanceExists(ctx context.Context, id string) error {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sync_instances WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check instance: %w", err)
	}
	if !exists {
		return ErrInstanceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*status.Endpoint, error) {
	var ep status.Endpoint
	var epStatus string
	var lastError *string
	err := row.Scan(&ep.ID, &epStatus, &ep.LastCheckedAt, &ep.ConsecutiveFailures, &lastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to scan endpoint: %w", err)
	}
	ep.Status = status.EndpointStatus(epStatus)
	if lastError != nil {
		ep.LastError = *lastError
	}
	return &ep, nil
}

func scanInstance(row rowScanner) (*temporal.SyncInstance, error) {
	var inst temporal.SyncInstance
	var endpointID *string
	err := row.Scan(&inst.ID, &endpointID, &inst.LastSyncAt, &inst.SyncCount, &inst.ConflictCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}
	if endpointID != nil {
		inst.EndpointID = *endpointID
	}
	return &inst, nil
}

func scanEntry(row rowScanner) (*temporal.StateEntry, error) {
	var entry temporal.StateEntry
	var conflictIDs []uuid.UUID
	err := row.Scan(&entry.ID, &entry.InstanceID, &entry.Timestamp, &entry.StateHash,
		&entry.PreviousStateHash, &conflictIDs, &entry.Resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	entry.UnresolvedConflictIDs = conflictIDs
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
