package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cairndb/cairn/catalog"
)

// Decorate wraps a RepoSet so every repository call records an
// ops_total{op,result} increment and a duration observation. Safe to apply
// before InitMetrics; the metrics are noops until then.
func Decorate(inner catalog.RepoSet) catalog.RepoSet {
	return &instrumentedRepoSet{inner: inner}
}

type instrumentedRepoSet struct {
	inner catalog.RepoSet
}

func (s *instrumentedRepoSet) Namespaces() catalog.NamespaceRepo {
	return &instrumentedNamespaces{inner: s.inner.Namespaces()}
}

func (s *instrumentedRepoSet) Tables() catalog.TableRepo {
	return &instrumentedTables{inner: s.inner.Tables()}
}

func (s *instrumentedRepoSet) Columns() catalog.ColumnRepo {
	return &instrumentedColumns{inner: s.inner.Columns()}
}

func (s *instrumentedRepoSet) Partitions() catalog.PartitionRepo {
	return &instrumentedPartitions{inner: s.inner.Partitions()}
}

func (s *instrumentedRepoSet) ParquetFiles() catalog.ParquetFileRepo {
	return &instrumentedParquetFiles{inner: s.inner.ParquetFiles()}
}

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	CatalogOpsTotal.With(op, result).Inc()
	CatalogOpDurationSeconds.With(op).Observe(time.Since(start).Seconds())
}

type instrumentedNamespaces struct {
	inner catalog.NamespaceRepo
}

func (r *instrumentedNamespaces) Create(ctx context.Context, name string, partitionTemplate *string, retentionPeriodNs *int64) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.Create(ctx, name, partitionTemplate, retentionPeriodNs)
	observe("namespace_create", start, err)
	return ns, err
}

func (r *instrumentedNamespaces) List(ctx context.Context, deleted catalog.SoftDeletedRows) ([]catalog.Namespace, error) {
	start := time.Now()
	out, err := r.inner.List(ctx, deleted)
	observe("namespace_list", start, err)
	return out, err
}

func (r *instrumentedNamespaces) GetByID(ctx context.Context, id catalog.NamespaceID, deleted catalog.SoftDeletedRows) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.GetByID(ctx, id, deleted)
	observe("namespace_get_by_id", start, err)
	return ns, err
}

func (r *instrumentedNamespaces) GetByName(ctx context.Context, name string, deleted catalog.SoftDeletedRows) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.GetByName(ctx, name, deleted)
	observe("namespace_get_by_name", start, err)
	return ns, err
}

func (r *instrumentedNamespaces) SoftDelete(ctx context.Context, name string) error {
	start := time.Now()
	err := r.inner.SoftDelete(ctx, name)
	observe("namespace_soft_delete", start, err)
	return err
}

func (r *instrumentedNamespaces) UpdateTableLimit(ctx context.Context, name string, newMax int32) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.UpdateTableLimit(ctx, name, newMax)
	observe("namespace_update_table_limit", start, err)
	return ns, err
}

func (r *instrumentedNamespaces) UpdateColumnLimit(ctx context.Context, name string, newMax int32) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.UpdateColumnLimit(ctx, name, newMax)
	observe("namespace_update_column_limit", start, err)
	return ns, err
}

func (r *instrumentedNamespaces) UpdateRetentionPeriod(ctx context.Context, name string, retentionPeriodNs *int64) (*catalog.Namespace, error) {
	start := time.Now()
	ns, err := r.inner.UpdateRetentionPeriod(ctx, name, retentionPeriodNs)
	observe("namespace_update_retention_period", start, err)
	return ns, err
}

type instrumentedTables struct {
	inner catalog.TableRepo
}

func (r *instrumentedTables) Create(ctx context.Context, name string, namespaceID catalog.NamespaceID) (*catalog.Table, error) {
	start := time.Now()
	table, err := r.inner.Create(ctx, name, namespaceID)
	observe("table_create", start, err)
	return table, err
}

func (r *instrumentedTables) GetByID(ctx context.Context, id catalog.TableID) (*catalog.Table, error) {
	start := time.Now()
	table, err := r.inner.GetByID(ctx, id)
	observe("table_get_by_id", start, err)
	return table, err
}

func (r *instrumentedTables) GetByNamespaceAndName(ctx context.Context, namespaceID catalog.NamespaceID, name string) (*catalog.Table, error) {
	start := time.Now()
	table, err := r.inner.GetByNamespaceAndName(ctx, namespaceID, name)
	observe("table_get_by_namespace_and_name", start, err)
	return table, err
}

func (r *instrumentedTables) ListByNamespaceID(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.Table, error) {
	start := time.Now()
	out, err := r.inner.ListByNamespaceID(ctx, namespaceID)
	observe("table_list_by_namespace_id", start, err)
	return out, err
}

func (r *instrumentedTables) List(ctx context.Context) ([]catalog.Table, error) {
	start := time.Now()
	out, err := r.inner.List(ctx)
	observe("table_list", start, err)
	return out, err
}

type instrumentedColumns struct {
	inner catalog.ColumnRepo
}

func (r *instrumentedColumns) CreateOrGet(ctx context.Context, name string, tableID catalog.TableID, columnType catalog.ColumnType) (*catalog.Column, error) {
	start := time.Now()
	column, err := r.inner.CreateOrGet(ctx, name, tableID, columnType)
	observe("column_create_or_get", start, err)
	return column, err
}

func (r *instrumentedColumns) CreateOrGetManyUnchecked(ctx context.Context, tableID catalog.TableID, columns map[string]catalog.ColumnType) ([]catalog.Column, error) {
	start := time.Now()
	out, err := r.inner.CreateOrGetManyUnchecked(ctx, tableID, columns)
	observe("column_create_or_get_many_unchecked", start, err)
	return out, err
}

func (r *instrumentedColumns) ListByNamespaceID(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.Column, error) {
	start := time.Now()
	out, err := r.inner.ListByNamespaceID(ctx, namespaceID)
	observe("column_list_by_namespace_id", start, err)
	return out, err
}

func (r *instrumentedColumns) ListByTableID(ctx context.Context, tableID catalog.TableID) ([]catalog.Column, error) {
	start := time.Now()
	out, err := r.inner.ListByTableID(ctx, tableID)
	observe("column_list_by_table_id", start, err)
	return out, err
}

func (r *instrumentedColumns) List(ctx context.Context) ([]catalog.Column, error) {
	start := time.Now()
	out, err := r.inner.List(ctx)
	observe("column_list", start, err)
	return out, err
}

type instrumentedPartitions struct {
	inner catalog.PartitionRepo
}

func (r *instrumentedPartitions) CreateOrGet(ctx context.Context, key string, tableID catalog.TableID) (*catalog.Partition, error) {
	start := time.Now()
	p, err := r.inner.CreateOrGet(ctx, key, tableID)
	observe("partition_create_or_get", start, err)
	return p, err
}

func (r *instrumentedPartitions) GetByID(ctx context.Context, id catalog.PartitionID) (*catalog.Partition, error) {
	start := time.Now()
	p, err := r.inner.GetByID(ctx, id)
	observe("partition_get_by_id", start, err)
	return p, err
}

func (r *instrumentedPartitions) ListByTableID(ctx context.Context, tableID catalog.TableID) ([]catalog.Partition, error) {
	start := time.Now()
	out, err := r.inner.ListByTableID(ctx, tableID)
	observe("partition_list_by_table_id", start, err)
	return out, err
}

func (r *instrumentedPartitions) ListIDs(ctx context.Context) ([]catalog.PartitionID, error) {
	start := time.Now()
	out, err := r.inner.ListIDs(ctx)
	observe("partition_list_ids", start, err)
	return out, err
}

func (r *instrumentedPartitions) CasSortKey(ctx context.Context, partitionID catalog.PartitionID, old, new []string) (*catalog.Partition, error) {
	start := time.Now()
	p, err := r.inner.CasSortKey(ctx, partitionID, old, new)
	observe("partition_cas_sort_key", start, err)
	return p, err
}

func (r *instrumentedPartitions) RecordSkippedCompaction(ctx context.Context, partitionID catalog.PartitionID, reason string, numFiles, limitNumFiles, limitNumFilesFirstInPartition, estimatedBytes, limitBytes int64) error {
	start := time.Now()
	err := r.inner.RecordSkippedCompaction(ctx, partitionID, reason, numFiles, limitNumFiles, limitNumFilesFirstInPartition, estimatedBytes, limitBytes)
	observe("partition_record_skipped_compaction", start, err)
	return err
}

func (r *instrumentedPartitions) GetInSkippedCompaction(ctx context.Context, partitionID catalog.PartitionID) (*catalog.SkippedCompaction, error) {
	start := time.Now()
	sc, err := r.inner.GetInSkippedCompaction(ctx, partitionID)
	observe("partition_get_in_skipped_compaction", start, err)
	return sc, err
}

func (r *instrumentedPartitions) ListSkippedCompactions(ctx context.Context) ([]catalog.SkippedCompaction, error) {
	start := time.Now()
	out, err := r.inner.ListSkippedCompactions(ctx)
	observe("partition_list_skipped_compactions", start, err)
	return out, err
}

func (r *instrumentedPartitions) DeleteSkippedCompactions(ctx context.Context, partitionID catalog.PartitionID) (*catalog.SkippedCompaction, error) {
	start := time.Now()
	sc, err := r.inner.DeleteSkippedCompactions(ctx, partitionID)
	observe("partition_delete_skipped_compactions", start, err)
	return sc, err
}

func (r *instrumentedPartitions) MostRecentN(ctx context.Context, n int) ([]catalog.Partition, error) {
	start := time.Now()
	out, err := r.inner.MostRecentN(ctx, n)
	observe("partition_most_recent_n", start, err)
	return out, err
}

func (r *instrumentedPartitions) NewFileBetween(ctx context.Context, min catalog.Timestamp, max *catalog.Timestamp) ([]catalog.PartitionID, error) {
	start := time.Now()
	out, err := r.inner.NewFileBetween(ctx, min, max)
	observe("partition_new_file_between", start, err)
	return out, err
}

type instrumentedParquetFiles struct {
	inner catalog.ParquetFileRepo
}

func (r *instrumentedParquetFiles) Create(ctx context.Context, params catalog.ParquetFileParams) (*catalog.ParquetFile, error) {
	start := time.Now()
	f, err := r.inner.Create(ctx, params)
	observe("parquet_file_create", start, err)
	return f, err
}

func (r *instrumentedParquetFiles) ListAll(ctx context.Context) ([]catalog.ParquetFile, error) {
	start := time.Now()
	out, err := r.inner.ListAll(ctx)
	observe("parquet_file_list_all", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) FlagForDelete(ctx context.Context, id catalog.ParquetFileID) error {
	start := time.Now()
	err := r.inner.FlagForDelete(ctx, id)
	observe("parquet_file_flag_for_delete", start, err)
	return err
}

func (r *instrumentedParquetFiles) FlagForDeleteByRetention(ctx context.Context) ([]catalog.ParquetFileID, error) {
	start := time.Now()
	out, err := r.inner.FlagForDeleteByRetention(ctx)
	observe("parquet_file_flag_for_delete_by_retention", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) ListByNamespaceNotToDelete(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.ParquetFile, error) {
	start := time.Now()
	out, err := r.inner.ListByNamespaceNotToDelete(ctx, namespaceID)
	observe("parquet_file_list_by_namespace", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) ListByTableNotToDelete(ctx context.Context, tableID catalog.TableID) ([]catalog.ParquetFile, error) {
	start := time.Now()
	out, err := r.inner.ListByTableNotToDelete(ctx, tableID)
	observe("parquet_file_list_by_table", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) ListByPartitionNotToDelete(ctx context.Context, partitionID catalog.PartitionID) ([]catalog.ParquetFile, error) {
	start := time.Now()
	out, err := r.inner.ListByPartitionNotToDelete(ctx, partitionID)
	observe("parquet_file_list_by_partition", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) GetByObjectStoreID(ctx context.Context, objectStoreID uuid.UUID) (*catalog.ParquetFile, error) {
	start := time.Now()
	f, err := r.inner.GetByObjectStoreID(ctx, objectStoreID)
	observe("parquet_file_get_by_object_store_id", start, err)
	return f, err
}

func (r *instrumentedParquetFiles) DeleteOldIDsOnly(ctx context.Context, olderThan catalog.Timestamp) ([]catalog.ParquetFileID, error) {
	start := time.Now()
	out, err := r.inner.DeleteOldIDsOnly(ctx, olderThan)
	observe("parquet_file_delete_old_ids_only", start, err)
	return out, err
}

func (r *instrumentedParquetFiles) CreateUpgradeDelete(ctx context.Context, deleteIDs, upgradeIDs []catalog.ParquetFileID, create []catalog.ParquetFileParams, targetLevel catalog.CompactionLevel) ([]catalog.ParquetFileID, error) {
	start := time.Now()
	out, err := r.inner.CreateUpgradeDelete(ctx, deleteIDs, upgradeIDs, create, targetLevel)
	observe("parquet_file_create_upgrade_delete", start, err)
	return out, err
}
