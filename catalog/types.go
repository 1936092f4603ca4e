package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID types for the catalog entity hierarchy. All are store-assigned
// surrogate keys.
type (
	NamespaceID   int64
	TableID       int64
	ColumnID      int64
	PartitionID   int64
	ParquetFileID int64
)

// Timestamp is a catalog timestamp in nanoseconds since the Unix epoch.
// All persisted time columns (created_at, to_delete, new_file_at, ...) use
// this representation.
type Timestamp int64

// TimestampFromTime converts a wall-clock time into a catalog timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Time returns the wall-clock representation of the timestamp.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

// ColumnType is the fixed set of value types a column can hold.
type ColumnType int16

const (
	ColumnTypeI64    ColumnType = 1
	ColumnTypeU64    ColumnType = 2
	ColumnTypeF64    ColumnType = 3
	ColumnTypeBool   ColumnType = 4
	ColumnTypeString ColumnType = 5
	ColumnTypeTime   ColumnType = 6
	ColumnTypeTag    ColumnType = 7
)

// Valid reports whether t is one of the defined column types.
func (t ColumnType) Valid() bool {
	return t >= ColumnTypeI64 && t <= ColumnTypeTag
}

func (t ColumnType) String() string {
	switch t {
	case ColumnTypeI64:
		return "i64"
	case ColumnTypeU64:
		return "u64"
	case ColumnTypeF64:
		return "f64"
	case ColumnTypeBool:
		return "bool"
	case ColumnTypeString:
		return "string"
	case ColumnTypeTime:
		return "time"
	case ColumnTypeTag:
		return "tag"
	default:
		return fmt.Sprintf("unknown(%d)", int16(t))
	}
}

// CompactionLevel classifies a parquet file's position in the merge
// pipeline. Levels only move upward (see ParquetFileRepo.CreateUpgradeDelete).
type CompactionLevel int16

const (
	// CompactionLevelInitial is a freshly ingested file.
	CompactionLevelInitial CompactionLevel = 0
	// CompactionLevelFileNonOverlapped is an intermediate merged file.
	CompactionLevelFileNonOverlapped CompactionLevel = 1
	// CompactionLevelFinal is a fully compacted file.
	CompactionLevelFinal CompactionLevel = 2
)

// SoftDeletedRows selects which rows a namespace read should see with
// respect to the deleted_at marker.
type SoftDeletedRows int

const (
	// ExcludeDeleted returns only rows that are not soft-deleted.
	ExcludeDeleted SoftDeletedRows = iota
	// OnlyDeleted returns only rows that are soft-deleted.
	OnlyDeleted
	// AllRows ignores the soft-delete marker entirely.
	AllRows
)

// SQLPredicate returns the WHERE fragment implementing the selector.
func (s SoftDeletedRows) SQLPredicate() string {
	switch s {
	case OnlyDeleted:
		return "deleted_at IS NOT NULL"
	case AllRows:
		return "1=1"
	default:
		return "deleted_at IS NULL"
	}
}

// Namespace is the top of the schema hierarchy. Its name is unique across
// all rows, soft-deleted ones included, so a deleted name cannot be reused.
type Namespace struct {
	ID                 NamespaceID
	Name               string
	RetentionPeriodNs  *int64
	MaxTables          int32
	MaxColumnsPerTable int32
	DeletedAt          *Timestamp
	PartitionTemplate  *string
}

// Table belongs to exactly one namespace; (namespace_id, name) is unique.
type Table struct {
	ID          TableID
	NamespaceID NamespaceID
	Name        string
}

// Column belongs to exactly one table; (table_id, name) is unique and its
// type never changes once created.
type Column struct {
	ID         ColumnID
	TableID    TableID
	Name       string
	ColumnType ColumnType
}

// Partition is created lazily on the first file write to a
// (table, partition key) pair and persists indefinitely. Its sort key only
// evolves through compare-and-swap.
type Partition struct {
	ID           PartitionID
	TableID      TableID
	PartitionKey string
	SortKey      []string
	NewFileAt    *Timestamp
}

// SkippedCompaction records why the compactor last skipped a partition.
// At most one row exists per partition; re-recording overwrites in place.
type SkippedCompaction struct {
	PartitionID                   PartitionID
	Reason                        string
	NumFiles                      int64
	LimitNumFiles                 int64
	LimitNumFilesFirstInPartition int64
	EstimatedBytes                int64
	LimitBytes                    int64
	SkippedAt                     Timestamp
}

// ParquetFile is one immutable data file in a partition. Rows are never
// mutated in place: lifecycle changes are soft delete (to_delete) and
// compaction-level promotion.
type ParquetFile struct {
	ID              ParquetFileID
	NamespaceID     NamespaceID
	TableID         TableID
	PartitionID     PartitionID
	ObjectStoreID   uuid.UUID
	MinTime         Timestamp
	MaxTime         Timestamp
	ToDelete        *Timestamp
	FileSizeBytes   int64
	RowCount        int64
	CompactionLevel CompactionLevel
	CreatedAt       Timestamp
	ColumnSet       []ColumnID
	MaxL0CreatedAt  Timestamp
}

// ParquetFileParams carries everything needed to register a new file.
// ColumnSet must equal the set of columns actually present in the file at
// write time; the catalog stores it verbatim for query pruning.
type ParquetFileParams struct {
	NamespaceID     NamespaceID
	TableID         TableID
	PartitionID     PartitionID
	ObjectStoreID   uuid.UUID
	MinTime         Timestamp
	MaxTime         Timestamp
	FileSizeBytes   int64
	RowCount        int64
	CompactionLevel CompactionLevel
	CreatedAt       Timestamp
	ColumnSet       []ColumnID
	MaxL0CreatedAt  Timestamp
}

// EncodeSortKey renders a sort key as the canonical JSON text persisted in
// the partition.sort_key column. The empty key encodes as "[]", never NULL.
func EncodeSortKey(key []string) string {
	if len(key) == 0 {
		return "[]"
	}
	b, err := json.Marshal(key)
	if err != nil {
		// []string cannot fail to marshal
		panic(err)
	}
	return string(b)
}

// DecodeSortKey parses the persisted JSON sort key.
func DecodeSortKey(raw string) ([]string, error) {
	var key []string
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("malformed sort key %q: %w", raw, err)
	}
	return key, nil
}

// EncodeColumnSet renders a column set as the canonical JSON text persisted
// in the parquet_file.column_set column.
func EncodeColumnSet(set []ColumnID) string {
	if len(set) == 0 {
		return "[]"
	}
	b, err := json.Marshal(set)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// DecodeColumnSet parses the persisted JSON column set.
func DecodeColumnSet(raw string) ([]ColumnID, error) {
	var set []ColumnID
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("malformed column set %q: %w", raw, err)
	}
	return set, nil
}
