package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairn/catalog"
	"github.com/cairndb/cairn/clock"
)

var testEpoch = time.Unix(1700000000, 0)

func newTestCatalog(t *testing.T, mutate ...func(*Options)) (*Catalog, *clock.MockClock) {
	t.Helper()

	clk := clock.NewMockClock(testEpoch)
	opts := DefaultOptions()
	opts.Clock = clk
	for _, m := range mutate {
		m(&opts)
	}

	cat, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cat.Close()) })
	return cat, clk
}

func createTestNamespace(t *testing.T, repos catalog.RepoSet, name string) *catalog.Namespace {
	t.Helper()
	ns, err := repos.Namespaces().Create(context.Background(), name, nil, nil)
	require.NoError(t, err)
	return ns
}

func createTestTable(t *testing.T, repos catalog.RepoSet, nsID catalog.NamespaceID, name string) *catalog.Table {
	t.Helper()
	table, err := repos.Tables().Create(context.Background(), name, nsID)
	require.NoError(t, err)
	return table
}

func createTestPartition(t *testing.T, repos catalog.RepoSet, tableID catalog.TableID, key string) *catalog.Partition {
	t.Helper()
	p, err := repos.Partitions().CreateOrGet(context.Background(), key, tableID)
	require.NoError(t, err)
	return p
}

func testFileParams(ns catalog.NamespaceID, tbl catalog.TableID, part catalog.PartitionID, createdAt catalog.Timestamp) catalog.ParquetFileParams {
	return catalog.ParquetFileParams{
		NamespaceID:     ns,
		TableID:         tbl,
		PartitionID:     part,
		ObjectStoreID:   uuid.New(),
		MinTime:         createdAt - 1000,
		MaxTime:         createdAt,
		FileSizeBytes:   1337,
		RowCount:        10,
		CompactionLevel: catalog.CompactionLevelInitial,
		CreatedAt:       createdAt,
		ColumnSet:       []catalog.ColumnID{1, 2},
		MaxL0CreatedAt:  createdAt,
	}
}

func billingTotal(t *testing.T, cat *Catalog, nsID catalog.NamespaceID) int64 {
	t.Helper()
	var total int64
	err := cat.readDB.QueryRow(
		`SELECT total_file_size_bytes FROM billing_summary WHERE namespace_id = ?`,
		int64(nsID)).Scan(&total)
	require.NoError(t, err)
	return total
}
