package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cairndb/cairn/catalog"
)

type parquetFileRepo struct {
	s *Session
}

var _ catalog.ParquetFileRepo = (*parquetFileRepo)(nil)

var parquetFileColumns = []any{
	"id", "namespace_id", "table_id", "partition_id", "object_store_id",
	"min_time", "max_time", "to_delete", "file_size_bytes", "row_count",
	"compaction_level", "created_at", "column_set", "max_l0_created_at",
}

func (r *parquetFileRepo) Create(ctx context.Context, params catalog.ParquetFileParams) (*catalog.ParquetFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return createParquetFile(ctx, r.s.cat.writeDB, params)
}

func (r *parquetFileRepo) ListAll(ctx context.Context) ([]catalog.ParquetFile, error) {
	query, args, err := dialect.From("parquet_file").
		Select(parquetFileColumns...).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("parquet file list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *parquetFileRepo) FlagForDelete(ctx context.Context, id catalog.ParquetFileID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := catalog.TimestampFromTime(r.s.cat.clock.Now())
	return flagForDelete(ctx, r.s.cat.writeDB, []catalog.ParquetFileID{id}, now)
}

func (r *parquetFileRepo) FlagForDeleteByRetention(ctx context.Context) ([]catalog.ParquetFileID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// The CTE bounds the sweep so one call never stalls the single write
	// connection on a huge backlog; callers loop until empty.
	now := catalog.TimestampFromTime(r.s.cat.clock.Now())
	rows, err := r.s.cat.writeDB.QueryContext(ctx, `
		WITH parquet_file_ids AS (
			SELECT parquet_file.id
			FROM namespace, parquet_file
			WHERE namespace.retention_period_ns IS NOT NULL
			AND parquet_file.to_delete IS NULL
			AND parquet_file.namespace_id = namespace.id
			AND parquet_file.max_time < ? - namespace.retention_period_ns
			LIMIT ?
		)
		UPDATE parquet_file SET to_delete = ?
		WHERE id IN (SELECT id FROM parquet_file_ids)
		RETURNING id
	`, int64(now), r.s.cat.opts.MaxFilesSelectedOnce, int64(now))
	if err != nil {
		return nil, fmt.Errorf("parquet file retention flag failed: %w", err)
	}
	defer rows.Close()

	out, err := scanFileIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		log.Info().Int("files", len(out)).Msg("Flagged parquet files past retention")
	}
	return out, nil
}

func (r *parquetFileRepo) ListByNamespaceNotToDelete(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.ParquetFile, error) {
	query, args, err := dialect.From("parquet_file").
		Select(parquetFileColumns...).
		Where(goqu.C("namespace_id").Eq(int64(namespaceID)), goqu.C("to_delete").IsNull()).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("parquet file list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *parquetFileRepo) ListByTableNotToDelete(ctx context.Context, tableID catalog.TableID) ([]catalog.ParquetFile, error) {
	query, args, err := dialect.From("parquet_file").
		Select(parquetFileColumns...).
		Where(goqu.C("table_id").Eq(int64(tableID)), goqu.C("to_delete").IsNull()).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("parquet file list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *parquetFileRepo) ListByPartitionNotToDelete(ctx context.Context, partitionID catalog.PartitionID) ([]catalog.ParquetFile, error) {
	query, args, err := dialect.From("parquet_file").
		Select(parquetFileColumns...).
		Where(goqu.C("partition_id").Eq(int64(partitionID)), goqu.C("to_delete").IsNull()).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("parquet file list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *parquetFileRepo) GetByObjectStoreID(ctx context.Context, objectStoreID uuid.UUID) (*catalog.ParquetFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("parquet_file").
		Select(parquetFileColumns...).
		Where(goqu.C("object_store_id").Eq(objectStoreID.String())).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("parquet file get query: %w", err)
	}

	f, err := scanParquetFile(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parquet file get by object store id failed: %w", err)
	}
	return f, nil
}

func (r *parquetFileRepo) DeleteOldIDsOnly(ctx context.Context, olderThan catalog.Timestamp) ([]catalog.ParquetFileID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.cat.writeDB.QueryContext(ctx, `
		WITH parquet_file_ids AS (
			SELECT id FROM parquet_file WHERE to_delete < ? LIMIT ?
		)
		DELETE FROM parquet_file
		WHERE id IN (SELECT id FROM parquet_file_ids)
		RETURNING id
	`, int64(olderThan), r.s.cat.opts.MaxFilesSelectedOnce)
	if err != nil {
		return nil, fmt.Errorf("parquet file delete old failed: %w", err)
	}
	defer rows.Close()

	out, err := scanFileIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		log.Info().Int("files", len(out)).Msg("Deleted old parquet file records")
	}
	return out, nil
}

func (r *parquetFileRepo) CreateUpgradeDelete(ctx context.Context, deleteIDs, upgradeIDs []catalog.ParquetFileID, create []catalog.ParquetFileParams, targetLevel catalog.CompactionLevel) ([]catalog.ParquetFileID, error) {
	// A file being both deleted and upgraded means the compactor built
	// nonsense; failing loudly beats persisting it.
	deleteSet := make(map[catalog.ParquetFileID]bool, len(deleteIDs))
	for _, id := range deleteIDs {
		deleteSet[id] = true
	}
	for _, id := range upgradeIDs {
		if deleteSet[id] {
			panic(fmt.Sprintf("parquet file %d appears in both delete and upgrade sets", id))
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, err := r.s.cat.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &catalog.TransactionError{Op: "create_upgrade_delete", Err: err}
	}
	defer tx.Rollback()

	now := catalog.TimestampFromTime(r.s.cat.clock.Now())
	if err := flagForDelete(ctx, tx, deleteIDs, now); err != nil {
		return nil, &catalog.TransactionError{Op: "create_upgrade_delete", Err: err}
	}
	if err := updateCompactionLevel(ctx, tx, upgradeIDs, targetLevel); err != nil {
		return nil, &catalog.TransactionError{Op: "create_upgrade_delete", Err: err}
	}

	ids := make([]catalog.ParquetFileID, 0, len(create))
	for _, params := range create {
		f, err := createParquetFile(ctx, tx, params)
		if err != nil {
			return nil, &catalog.TransactionError{Op: "create_upgrade_delete", Err: err}
		}
		ids = append(ids, f.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, &catalog.TransactionError{Op: "create_upgrade_delete", Err: err}
	}

	log.Debug().
		Int("deleted", len(deleteIDs)).
		Int("upgraded", len(upgradeIDs)).
		Int("created", len(ids)).
		Msg("Compaction transition applied")
	return ids, nil
}

func (r *parquetFileRepo) list(ctx context.Context, query string, args []any) ([]catalog.ParquetFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("parquet file list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.ParquetFile
	for rows.Next() {
		f, err := scanParquetFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFileIDs(rows *sql.Rows) ([]catalog.ParquetFileID, error) {
	var out []catalog.ParquetFileID
	for rows.Next() {
		var id catalog.ParquetFileID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
