package db

// Catalog schema
//
// Parquet file rows are immutable once written: lifecycle transitions are
// the to_delete soft-delete marker and compaction_level promotion. The
// billing_summary aggregate and partition.new_file_at are maintained by
// triggers so every write path keeps them consistent.

const (
	// CreateNamespaceTable is the root of the schema hierarchy.
	// The name is unique across ALL rows, soft-deleted included, so a
	// deleted name can never be reused.
	CreateNamespaceTable = `
	CREATE TABLE IF NOT EXISTS namespace (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		retention_period_ns INTEGER, -- NULL means infinite retention
		max_tables INTEGER NOT NULL DEFAULT 500,
		max_columns_per_table INTEGER NOT NULL DEFAULT 200,
		deleted_at INTEGER, -- soft-delete marker, ns since epoch
		partition_template TEXT -- JSON, NULL means the server default
	);

	CREATE UNIQUE INDEX IF NOT EXISTS namespace_name_unique ON namespace(name);
	`

	// CreateTableNameTable holds tables; (namespace_id, name) is unique.
	CreateTableNameTable = `
	CREATE TABLE IF NOT EXISTS table_name (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (namespace_id) REFERENCES namespace(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS table_name_unique ON table_name(namespace_id, name);
	CREATE INDEX IF NOT EXISTS table_name_namespace_idx ON table_name(namespace_id);
	`

	// CreateColumnNameTable holds columns; the type never changes after
	// the row is created.
	CreateColumnNameTable = `
	CREATE TABLE IF NOT EXISTS column_name (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		column_type SMALLINT NOT NULL,
		FOREIGN KEY (table_id) REFERENCES table_name(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS column_name_unique ON column_name(table_id, name);
	CREATE INDEX IF NOT EXISTS column_name_table_idx ON column_name(table_id);
	`

	// CreatePartitionTable holds partitions, created lazily on the first
	// file write. new_file_at is trigger-maintained.
	CreatePartitionTable = `
	CREATE TABLE IF NOT EXISTS partition (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_id INTEGER NOT NULL,
		partition_key TEXT NOT NULL,
		sort_key TEXT NOT NULL DEFAULT '[]', -- JSON array of column names
		new_file_at INTEGER, -- ns since epoch of the newest file insert
		FOREIGN KEY (table_id) REFERENCES table_name(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS partition_key_unique ON partition(table_id, partition_key);
	`

	// CreateSkippedCompactionsTable records why the compactor last
	// skipped a partition; at most one row per partition.
	CreateSkippedCompactionsTable = `
	CREATE TABLE IF NOT EXISTS skipped_compactions (
		partition_id INTEGER PRIMARY KEY,
		reason TEXT NOT NULL,
		num_files INTEGER NOT NULL,
		limit_num_files INTEGER NOT NULL,
		limit_num_files_first_in_partition INTEGER NOT NULL,
		estimated_bytes INTEGER NOT NULL,
		limit_bytes INTEGER NOT NULL,
		skipped_at INTEGER NOT NULL,
		FOREIGN KEY (partition_id) REFERENCES partition(id)
	);
	`

	// CreateParquetFileTable holds the immutable data-file records.
	CreateParquetFileTable = `
	CREATE TABLE IF NOT EXISTS parquet_file (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace_id INTEGER NOT NULL,
		table_id INTEGER NOT NULL,
		partition_id INTEGER NOT NULL,
		object_store_id TEXT NOT NULL,
		min_time INTEGER NOT NULL,
		max_time INTEGER NOT NULL,
		to_delete INTEGER, -- soft-delete marker, ns since epoch
		file_size_bytes INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		compaction_level SMALLINT NOT NULL,
		created_at INTEGER NOT NULL,
		column_set TEXT NOT NULL, -- JSON array of column ids
		max_l0_created_at INTEGER NOT NULL,
		FOREIGN KEY (namespace_id) REFERENCES namespace(id),
		FOREIGN KEY (table_id) REFERENCES table_name(id),
		FOREIGN KEY (partition_id) REFERENCES partition(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS parquet_file_object_store_id_unique ON parquet_file(object_store_id);
	CREATE INDEX IF NOT EXISTS parquet_file_partition_idx ON parquet_file(partition_id);
	CREATE INDEX IF NOT EXISTS parquet_file_table_delete_idx ON parquet_file(table_id, to_delete);
	CREATE INDEX IF NOT EXISTS parquet_file_namespace_delete_idx ON parquet_file(namespace_id, to_delete);
	`

	// CreateBillingSummaryTable is the live sum of file_size_bytes per
	// namespace, maintained entirely by the triggers below.
	CreateBillingSummaryTable = `
	CREATE TABLE IF NOT EXISTS billing_summary (
		namespace_id INTEGER PRIMARY KEY,
		total_file_size_bytes INTEGER NOT NULL,
		FOREIGN KEY (namespace_id) REFERENCES namespace(id)
	);
	`

	// CreateBillingInsertTrigger adds a file's size on registration.
	CreateBillingInsertTrigger = `
	CREATE TRIGGER IF NOT EXISTS update_billing
	AFTER INSERT ON parquet_file
	FOR EACH ROW
	BEGIN
		INSERT INTO billing_summary (namespace_id, total_file_size_bytes)
		VALUES (NEW.namespace_id, NEW.file_size_bytes)
		ON CONFLICT (namespace_id) DO UPDATE
		SET total_file_size_bytes = billing_summary.total_file_size_bytes + NEW.file_size_bytes;
	END;
	`

	// CreateBillingDeleteTrigger subtracts a file's size when it is first
	// flagged for deletion.
	CreateBillingDeleteTrigger = `
	CREATE TRIGGER IF NOT EXISTS decrement_billing
	AFTER UPDATE OF to_delete ON parquet_file
	FOR EACH ROW
	WHEN OLD.to_delete IS NULL AND NEW.to_delete IS NOT NULL
	BEGIN
		UPDATE billing_summary
		SET total_file_size_bytes = total_file_size_bytes - OLD.file_size_bytes
		WHERE namespace_id = OLD.namespace_id;
	END;
	`

	// CreateNewFileAtTrigger stamps the partition on every file insert.
	CreateNewFileAtTrigger = `
	CREATE TRIGGER IF NOT EXISTS update_partition_new_file_at
	AFTER INSERT ON parquet_file
	FOR EACH ROW
	BEGIN
		UPDATE partition SET new_file_at = NEW.created_at WHERE id = NEW.partition_id;
	END;
	`
)

// CatalogSchemas returns all schema statements in dependency order.
func CatalogSchemas() []string {
	return []string{
		CreateNamespaceTable,
		CreateTableNameTable,
		CreateColumnNameTable,
		CreatePartitionTable,
		CreateSkippedCompactionsTable,
		CreateParquetFileTable,
		CreateBillingSummaryTable,
		CreateBillingInsertTrigger,
		CreateBillingDeleteTrigger,
		CreateNewFileAtTrigger,
	}
}
