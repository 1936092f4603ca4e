package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/cairndb/cairn/catalog"
)

type partitionRepo struct {
	s *Session
}

var _ catalog.PartitionRepo = (*partitionRepo)(nil)

func scanPartition(row rowScanner) (*catalog.Partition, error) {
	var (
		p         catalog.Partition
		sortKey   string
		newFileAt sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.TableID, &p.PartitionKey, &sortKey, &newFileAt); err != nil {
		return nil, err
	}
	key, err := catalog.DecodeSortKey(sortKey)
	if err != nil {
		return nil, err
	}
	p.SortKey = key
	if newFileAt.Valid {
		ts := catalog.Timestamp(newFileAt.Int64)
		p.NewFileAt = &ts
	}
	return &p, nil
}

func scanSkippedCompaction(row rowScanner) (*catalog.SkippedCompaction, error) {
	var sc catalog.SkippedCompaction
	err := row.Scan(&sc.PartitionID, &sc.Reason, &sc.NumFiles, &sc.LimitNumFiles,
		&sc.LimitNumFilesFirstInPartition, &sc.EstimatedBytes, &sc.LimitBytes, &sc.SkippedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *partitionRepo) CreateOrGet(ctx context.Context, key string, tableID catalog.TableID) (*catalog.Partition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// The conflict clause is a no-op update so an existing partition
	// comes back unchanged through RETURNING. The sort key always starts
	// empty and only evolves through CasSortKey.
	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		INSERT INTO partition (partition_key, table_id, sort_key)
		VALUES (?, ?, '[]')
		ON CONFLICT (table_id, partition_key) DO UPDATE SET partition_key = partition.partition_key
		RETURNING id, table_id, partition_key, sort_key, new_file_at
	`, key, int64(tableID))

	p, err := scanPartition(row)
	if err != nil {
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "partition create", Err: err}
		}
		return nil, fmt.Errorf("partition create failed: %w", err)
	}
	return p, nil
}

func (r *partitionRepo) GetByID(ctx context.Context, id catalog.PartitionID) (*catalog.Partition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getByID(ctx, id)
}

// getByID is the lock-free variant shared with CasSortKey's diagnostic
// read; callers hold s.mu.
func (r *partitionRepo) getByID(ctx context.Context, id catalog.PartitionID) (*catalog.Partition, error) {
	query, args, err := dialect.From("partition").
		Select("id", "table_id", "partition_key", "sort_key", "new_file_at").
		Where(goqu.C("id").Eq(int64(id))).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("partition get query: %w", err)
	}

	p, err := scanPartition(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("partition get by id failed: %w", err)
	}
	return p, nil
}

func (r *partitionRepo) ListByTableID(ctx context.Context, tableID catalog.TableID) ([]catalog.Partition, error) {
	query, args, err := dialect.From("partition").
		Select("id", "table_id", "partition_key", "sort_key", "new_file_at").
		Where(goqu.C("table_id").Eq(int64(tableID))).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("partition list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *partitionRepo) ListIDs(ctx context.Context) ([]catalog.PartitionID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("partition").
		Select("id").
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("partition ids query: %w", err)
	}

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("partition ids failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.PartitionID
	for rows.Next() {
		var id catalog.PartitionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *partitionRepo) CasSortKey(ctx context.Context, partitionID catalog.PartitionID, old, new []string) (*catalog.Partition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		UPDATE partition SET sort_key = ? WHERE id = ? AND sort_key = ?
		RETURNING id, table_id, partition_key, sort_key, new_file_at
	`, catalog.EncodeSortKey(new), int64(partitionID), catalog.EncodeSortKey(old))

	p, err := scanPartition(row)
	if errors.Is(err, sql.ErrNoRows) {
		// The swap lost. Read the current key so the caller can rebase;
		// this read races other writers and may itself be stale by the
		// time the caller sees it.
		current, err := r.getByID(ctx, partitionID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, &catalog.PartitionNotFoundError{ID: partitionID}
		}
		return nil, &catalog.CasMismatchError{PartitionID: partitionID, Current: current.SortKey}
	}
	if err != nil {
		return nil, fmt.Errorf("partition sort key cas failed: %w", err)
	}

	log.Debug().Int64("partition_id", int64(partitionID)).Strs("sort_key", new).Msg("Partition sort key updated")
	return p, nil
}

func (r *partitionRepo) RecordSkippedCompaction(ctx context.Context, partitionID catalog.PartitionID, reason string, numFiles, limitNumFiles, limitNumFilesFirstInPartition, estimatedBytes, limitBytes int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := catalog.TimestampFromTime(r.s.cat.clock.Now())
	_, err := r.s.cat.writeDB.ExecContext(ctx, `
		INSERT INTO skipped_compactions (partition_id, reason, num_files, limit_num_files, limit_num_files_first_in_partition, estimated_bytes, limit_bytes, skipped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_id) DO UPDATE
		SET reason = EXCLUDED.reason,
			num_files = EXCLUDED.num_files,
			limit_num_files = EXCLUDED.limit_num_files,
			limit_num_files_first_in_partition = EXCLUDED.limit_num_files_first_in_partition,
			estimated_bytes = EXCLUDED.estimated_bytes,
			limit_bytes = EXCLUDED.limit_bytes,
			skipped_at = EXCLUDED.skipped_at
	`, int64(partitionID), reason, numFiles, limitNumFiles, limitNumFilesFirstInPartition, estimatedBytes, limitBytes, int64(now))
	if err != nil {
		if catalog.IsFKViolation(err) {
			return &catalog.ForeignKeyError{Op: "skipped compaction record", Err: err}
		}
		return fmt.Errorf("skipped compaction record failed: %w", err)
	}
	return nil
}

func (r *partitionRepo) GetInSkippedCompaction(ctx context.Context, partitionID catalog.PartitionID) (*catalog.SkippedCompaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("skipped_compactions").
		Select("partition_id", "reason", "num_files", "limit_num_files",
			"limit_num_files_first_in_partition", "estimated_bytes", "limit_bytes", "skipped_at").
		Where(goqu.C("partition_id").Eq(int64(partitionID))).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("skipped compaction get query: %w", err)
	}

	sc, err := scanSkippedCompaction(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skipped compaction get failed: %w", err)
	}
	return sc, nil
}

func (r *partitionRepo) ListSkippedCompactions(ctx context.Context) ([]catalog.SkippedCompaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("skipped_compactions").
		Select("partition_id", "reason", "num_files", "limit_num_files",
			"limit_num_files_first_in_partition", "estimated_bytes", "limit_bytes", "skipped_at").
		Order(goqu.I("partition_id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("skipped compaction list query: %w", err)
	}

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("skipped compaction list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.SkippedCompaction
	for rows.Next() {
		sc, err := scanSkippedCompaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (r *partitionRepo) DeleteSkippedCompactions(ctx context.Context, partitionID catalog.PartitionID) (*catalog.SkippedCompaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		DELETE FROM skipped_compactions WHERE partition_id = ?
		RETURNING partition_id, reason, num_files, limit_num_files, limit_num_files_first_in_partition, estimated_bytes, limit_bytes, skipped_at
	`, int64(partitionID))

	sc, err := scanSkippedCompaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skipped compaction delete failed: %w", err)
	}
	return sc, nil
}

func (r *partitionRepo) MostRecentN(ctx context.Context, n int) ([]catalog.Partition, error) {
	// goqu drops the LIMIT clause for Limit(0), which would return
	// everything instead of nothing.
	if n <= 0 {
		return nil, nil
	}

	query, args, err := dialect.From("partition").
		Select("id", "table_id", "partition_key", "sort_key", "new_file_at").
		Order(goqu.I("id").Desc()).
		Limit(uint(n)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("partition recent query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *partitionRepo) NewFileBetween(ctx context.Context, min catalog.Timestamp, max *catalog.Timestamp) ([]catalog.PartitionID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ds := dialect.From("partition").
		Select("id").
		Where(goqu.C("new_file_at").Gt(int64(min)))
	if max != nil {
		ds = ds.Where(goqu.C("new_file_at").Lt(int64(*max)))
	}

	query, args, err := ds.Order(goqu.I("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("partition new file query: %w", err)
	}

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("partition new file between failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.PartitionID
	for rows.Next() {
		var id catalog.PartitionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *partitionRepo) list(ctx context.Context, query string, args []any) ([]catalog.Partition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("partition list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.Partition
	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
