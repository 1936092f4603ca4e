package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cairndb/cairn/catalog"
)

// execer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the parquet file write helpers run both standalone and inside the
// compaction transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanParquetFile(row rowScanner) (*catalog.ParquetFile, error) {
	var (
		f             catalog.ParquetFile
		objectStoreID string
		toDelete      sql.NullInt64
		columnSet     string
	)
	err := row.Scan(&f.ID, &f.NamespaceID, &f.TableID, &f.PartitionID, &objectStoreID,
		&f.MinTime, &f.MaxTime, &toDelete, &f.FileSizeBytes, &f.RowCount,
		&f.CompactionLevel, &f.CreatedAt, &columnSet, &f.MaxL0CreatedAt)
	if err != nil {
		return nil, err
	}
	if f.ObjectStoreID, err = uuid.Parse(objectStoreID); err != nil {
		return nil, fmt.Errorf("malformed object store id %q: %w", objectStoreID, err)
	}
	if toDelete.Valid {
		ts := catalog.Timestamp(toDelete.Int64)
		f.ToDelete = &ts
	}
	if f.ColumnSet, err = catalog.DecodeColumnSet(columnSet); err != nil {
		return nil, err
	}
	return &f, nil
}

// createParquetFile registers one file against ex.
func createParquetFile(ctx context.Context, ex execer, params catalog.ParquetFileParams) (*catalog.ParquetFile, error) {
	row := ex.QueryRowContext(ctx, `
		INSERT INTO parquet_file (namespace_id, table_id, partition_id, object_store_id, min_time, max_time, file_size_bytes, row_count, compaction_level, created_at, column_set, max_l0_created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, namespace_id, table_id, partition_id, object_store_id, min_time, max_time, to_delete, file_size_bytes, row_count, compaction_level, created_at, column_set, max_l0_created_at
	`, int64(params.NamespaceID), int64(params.TableID), int64(params.PartitionID),
		params.ObjectStoreID.String(), int64(params.MinTime), int64(params.MaxTime),
		params.FileSizeBytes, params.RowCount, params.CompactionLevel,
		int64(params.CreatedAt), catalog.EncodeColumnSet(params.ColumnSet), int64(params.MaxL0CreatedAt))

	f, err := scanParquetFile(row)
	if err != nil {
		if catalog.IsUniqueViolation(err) {
			return nil, &catalog.FileExistsError{ObjectStoreID: params.ObjectStoreID.String()}
		}
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "parquet file create", Err: err}
		}
		return nil, fmt.Errorf("parquet file create failed: %w", err)
	}
	return f, nil
}

// flagForDelete stamps to_delete on the given rows with one shared
// timestamp. Missing ids are silently skipped.
func flagForDelete(ctx context.Context, ex execer, ids []catalog.ParquetFileID, ts catalog.Timestamp) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE parquet_file SET to_delete = ? WHERE id IN (%s)`, placeholders(len(ids)))
	args := make([]any, 0, len(ids)+1)
	args = append(args, int64(ts))
	for _, id := range ids {
		args = append(args, int64(id))
	}

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("parquet file flag for delete failed: %w", err)
	}
	return nil
}

// updateCompactionLevel promotes the given rows to level.
func updateCompactionLevel(ctx context.Context, ex execer, ids []catalog.ParquetFileID, level catalog.CompactionLevel) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE parquet_file SET compaction_level = ? WHERE id IN (%s)`, placeholders(len(ids)))
	args := make([]any, 0, len(ids)+1)
	args = append(args, level)
	for _, id := range ids {
		args = append(args, int64(id))
	}

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("parquet file compaction level update failed: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
