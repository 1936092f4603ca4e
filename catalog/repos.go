package catalog

import (
	"context"

	"github.com/google/uuid"
)

// NamespaceRepo manages the top-level namespace records.
type NamespaceRepo interface {
	// Create inserts a new namespace with the configured default limits.
	// Returns NameExistsError when the name is taken, soft-deleted rows
	// included.
	Create(ctx context.Context, name string, partitionTemplate *string, retentionPeriodNs *int64) (*Namespace, error)

	// List returns namespaces matching the soft-delete selector.
	List(ctx context.Context, deleted SoftDeletedRows) ([]Namespace, error)

	// GetByID returns the namespace, or nil when no row matches the
	// selector.
	GetByID(ctx context.Context, id NamespaceID, deleted SoftDeletedRows) (*Namespace, error)

	// GetByName returns the namespace, or nil when no row matches the
	// selector.
	GetByName(ctx context.Context, name string, deleted SoftDeletedRows) (*Namespace, error)

	// SoftDelete marks the namespace deleted at the current time. Returns
	// NamespaceNotFoundError when no live row carries the name.
	SoftDelete(ctx context.Context, name string) error

	// UpdateTableLimit sets max_tables and returns the updated row.
	UpdateTableLimit(ctx context.Context, name string, newMax int32) (*Namespace, error)

	// UpdateColumnLimit sets max_columns_per_table and returns the updated
	// row.
	UpdateColumnLimit(ctx context.Context, name string, newMax int32) (*Namespace, error)

	// UpdateRetentionPeriod sets the retention window in nanoseconds; nil
	// means infinite retention.
	UpdateRetentionPeriod(ctx context.Context, name string, retentionPeriodNs *int64) (*Namespace, error)
}

// TableRepo manages table records inside a namespace.
type TableRepo interface {
	// Create inserts a table, enforcing the namespace's max_tables limit
	// atomically with the insert. Returns TableLimitError at capacity and
	// TableNameExistsError on a duplicate name.
	Create(ctx context.Context, name string, namespaceID NamespaceID) (*Table, error)

	// GetByID returns the table, or nil when it does not exist.
	GetByID(ctx context.Context, id TableID) (*Table, error)

	// GetByNamespaceAndName returns the table, or nil when it does not
	// exist.
	GetByNamespaceAndName(ctx context.Context, namespaceID NamespaceID, name string) (*Table, error)

	// ListByNamespaceID returns all tables in the namespace.
	ListByNamespaceID(ctx context.Context, namespaceID NamespaceID) ([]Table, error)

	// List returns every table in the catalog.
	List(ctx context.Context) ([]Table, error)
}

// ColumnRepo manages column records inside a table.
type ColumnRepo interface {
	// CreateOrGet inserts the column or returns the existing one,
	// enforcing the namespace's max_columns_per_table limit atomically
	// with the insert. A type conflict with the existing column returns
	// ColumnTypeMismatchError.
	CreateOrGet(ctx context.Context, name string, tableID TableID, columnType ColumnType) (*Column, error)

	// CreateOrGetManyUnchecked upserts a batch of columns in one
	// statement, bypassing the per-table column limit. Callers own
	// pre-validation. A type conflict on any column aborts the call with
	// ColumnTypeMismatchError; columns upserted before the conflict was
	// detected are not rolled back.
	CreateOrGetManyUnchecked(ctx context.Context, tableID TableID, columns map[string]ColumnType) ([]Column, error)

	// ListByNamespaceID returns all columns of all tables in the
	// namespace.
	ListByNamespaceID(ctx context.Context, namespaceID NamespaceID) ([]Column, error)

	// ListByTableID returns all columns of the table.
	ListByTableID(ctx context.Context, tableID TableID) ([]Column, error)

	// List returns every column in the catalog.
	List(ctx context.Context) ([]Column, error)
}

// PartitionRepo manages partition records and the compactor's skip
// bookkeeping.
type PartitionRepo interface {
	// CreateOrGet inserts the partition with an empty sort key or returns
	// the existing row unchanged. Idempotent.
	CreateOrGet(ctx context.Context, key string, tableID TableID) (*Partition, error)

	// GetByID returns the partition, or nil when it does not exist.
	GetByID(ctx context.Context, id PartitionID) (*Partition, error)

	// ListByTableID returns all partitions of the table.
	ListByTableID(ctx context.Context, tableID TableID) ([]Partition, error)

	// ListIDs returns the ids of every partition.
	ListIDs(ctx context.Context) ([]PartitionID, error)

	// CasSortKey replaces the sort key only if the stored key equals old.
	// On mismatch it returns CasMismatchError carrying a best-effort read
	// of the current key; the read races other writers, so callers must
	// re-derive their update from it and retry. Never retried internally.
	CasSortKey(ctx context.Context, partitionID PartitionID, old, new []string) (*Partition, error)

	// RecordSkippedCompaction upserts the skip record for the partition,
	// overwriting any previous reason.
	RecordSkippedCompaction(ctx context.Context, partitionID PartitionID, reason string, numFiles, limitNumFiles, limitNumFilesFirstInPartition, estimatedBytes, limitBytes int64) error

	// GetInSkippedCompaction returns the partition's skip record, or nil.
	GetInSkippedCompaction(ctx context.Context, partitionID PartitionID) (*SkippedCompaction, error)

	// ListSkippedCompactions returns all skip records.
	ListSkippedCompactions(ctx context.Context) ([]SkippedCompaction, error)

	// DeleteSkippedCompactions removes and returns the partition's skip
	// record, or nil when none existed.
	DeleteSkippedCompactions(ctx context.Context, partitionID PartitionID) (*SkippedCompaction, error)

	// MostRecentN returns the n newest partitions by id, descending.
	MostRecentN(ctx context.Context, n int) ([]Partition, error)

	// NewFileBetween returns ids of partitions that received a new file
	// strictly after min and, when max is non-nil, strictly before max.
	NewFileBetween(ctx context.Context, min Timestamp, max *Timestamp) ([]PartitionID, error)
}

// ParquetFileRepo manages the immutable data-file records.
type ParquetFileRepo interface {
	// Create registers a new file. Returns FileExistsError when the
	// object store id is already present.
	Create(ctx context.Context, params ParquetFileParams) (*ParquetFile, error)

	// ListAll returns every file record, soft-deleted ones included.
	ListAll(ctx context.Context) ([]ParquetFile, error)

	// FlagForDelete marks a single file for deletion at the current time.
	FlagForDelete(ctx context.Context, id ParquetFileID) error

	// FlagForDeleteByRetention marks files that fall entirely outside
	// their namespace's retention window, at most MaxFilesSelectedOnce
	// per call, and returns the flagged ids.
	FlagForDeleteByRetention(ctx context.Context) ([]ParquetFileID, error)

	// ListByNamespaceNotToDelete returns the namespace's live files.
	ListByNamespaceNotToDelete(ctx context.Context, namespaceID NamespaceID) ([]ParquetFile, error)

	// ListByTableNotToDelete returns the table's live files.
	ListByTableNotToDelete(ctx context.Context, tableID TableID) ([]ParquetFile, error)

	// ListByPartitionNotToDelete returns the partition's live files.
	ListByPartitionNotToDelete(ctx context.Context, partitionID PartitionID) ([]ParquetFile, error)

	// GetByObjectStoreID returns the file with the given content id, or
	// nil.
	GetByObjectStoreID(ctx context.Context, objectStoreID uuid.UUID) (*ParquetFile, error)

	// DeleteOldIDsOnly hard-deletes rows flagged for deletion before
	// olderThan, at most MaxFilesSelectedOnce per call, and returns the
	// deleted ids. This is the only hard-delete path in the catalog.
	DeleteOldIDsOnly(ctx context.Context, olderThan Timestamp) ([]ParquetFileID, error)

	// CreateUpgradeDelete applies one compaction outcome atomically:
	// flags deleteIDs with a shared timestamp, promotes upgradeIDs to
	// targetLevel, and inserts the create params, returning the new ids
	// in input order. Overlapping delete and upgrade sets are a
	// programming error and panic.
	CreateUpgradeDelete(ctx context.Context, deleteIDs, upgradeIDs []ParquetFileID, create []ParquetFileParams, targetLevel CompactionLevel) ([]ParquetFileID, error)
}

// RepoSet bundles the five repositories behind one session. Calls through a
// single RepoSet are serialized; distinct RepoSets are independent.
type RepoSet interface {
	Namespaces() NamespaceRepo
	Tables() TableRepo
	Columns() ColumnRepo
	Partitions() PartitionRepo
	ParquetFiles() ParquetFileRepo
}

// Catalog is the top-level handle a process holds onto.
type Catalog interface {
	// Repositories returns a new session over the shared store.
	Repositories() RepoSet
	Close() error
}
