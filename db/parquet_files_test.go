package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cairndb/cairn/catalog"
)

func TestParquetFileCreate(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	params := testFileParams(ns.ID, table.ID, p.ID, 5000)
	f, err := repos.ParquetFiles().Create(ctx, params)
	require.NoError(t, err)
	require.NotZero(t, f.ID)
	require.Equal(t, params.ObjectStoreID, f.ObjectStoreID)
	require.Equal(t, []catalog.ColumnID{1, 2}, f.ColumnSet)
	require.Nil(t, f.ToDelete)

	// Duplicate content id is refused.
	_, err = repos.ParquetFiles().Create(ctx, params)
	var exists *catalog.FileExistsError
	require.ErrorAs(t, err, &exists)
	require.Equal(t, params.ObjectStoreID.String(), exists.ObjectStoreID)

	// Unknown partition is a foreign key violation.
	bad := testFileParams(ns.ID, table.ID, 9999, 5000)
	_, err = repos.ParquetFiles().Create(ctx, bad)
	var fk *catalog.ForeignKeyError
	require.ErrorAs(t, err, &fk)
}

func TestParquetFileFlagForDelete(t *testing.T) {
	t.Parallel()

	cat, clk := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	f, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, 5000))
	require.NoError(t, err)

	clk.Advance(time.Hour)
	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, f.ID))

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, catalog.TimestampFromTime(testEpoch.Add(time.Hour)), *all[0].ToDelete)

	live, err := repos.ParquetFiles().ListByPartitionNotToDelete(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestParquetFileLists(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	other := createTestNamespace(t, repos, "other")
	cpu := createTestTable(t, repos, ns.ID, "cpu")
	disk := createTestTable(t, repos, other.ID, "disk")
	pCPU := createTestPartition(t, repos, cpu.ID, "k")
	pDisk := createTestPartition(t, repos, disk.ID, "k")

	a, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, cpu.ID, pCPU.ID, 1000))
	require.NoError(t, err)
	_, err = repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, cpu.ID, pCPU.ID, 2000))
	require.NoError(t, err)
	_, err = repos.ParquetFiles().Create(ctx, testFileParams(other.ID, disk.ID, pDisk.ID, 3000))
	require.NoError(t, err)

	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, a.ID))

	byNS, err := repos.ParquetFiles().ListByNamespaceNotToDelete(ctx, ns.ID)
	require.NoError(t, err)
	require.Len(t, byNS, 1)

	byTable, err := repos.ParquetFiles().ListByTableNotToDelete(ctx, cpu.ID)
	require.NoError(t, err)
	require.Len(t, byTable, 1)

	byPartition, err := repos.ParquetFiles().ListByPartitionNotToDelete(ctx, pCPU.ID)
	require.NoError(t, err)
	require.Len(t, byPartition, 1)

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3, "flagged files stay listed until hard deletion")
}

func TestParquetFileGetByObjectStoreID(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	params := testFileParams(ns.ID, table.ID, p.ID, 5000)
	created, err := repos.ParquetFiles().Create(ctx, params)
	require.NoError(t, err)

	f, err := repos.ParquetFiles().GetByObjectStoreID(ctx, params.ObjectStoreID)
	require.NoError(t, err)
	require.Equal(t, created.ID, f.ID)

	f, err = repos.ParquetFiles().GetByObjectStoreID(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestParquetFileRetentionFlagging(t *testing.T) {
	t.Parallel()

	cat, clk := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	retention := int64(time.Hour)
	ns, err := repos.Namespaces().Create(ctx, "bounded", nil, &retention)
	require.NoError(t, err)
	forever := createTestNamespace(t, repos, "unbounded")

	table := createTestTable(t, repos, ns.ID, "cpu")
	keep := createTestTable(t, repos, forever.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")
	pKeep := createTestPartition(t, repos, keep.ID, "k")

	now := catalog.TimestampFromTime(testEpoch)
	old := testFileParams(ns.ID, table.ID, p.ID, now)
	old.MaxTime = now - 2*catalog.Timestamp(time.Hour)
	oldFile, err := repos.ParquetFiles().Create(ctx, old)
	require.NoError(t, err)

	fresh := testFileParams(ns.ID, table.ID, p.ID, now)
	fresh.MaxTime = now
	_, err = repos.ParquetFiles().Create(ctx, fresh)
	require.NoError(t, err)

	// Old data in a namespace without retention is never flagged.
	noRetention := testFileParams(forever.ID, keep.ID, pKeep.ID, now)
	noRetention.MaxTime = now - 100*catalog.Timestamp(time.Hour)
	_, err = repos.ParquetFiles().Create(ctx, noRetention)
	require.NoError(t, err)

	flagged, err := repos.ParquetFiles().FlagForDeleteByRetention(ctx)
	require.NoError(t, err)
	require.Equal(t, []catalog.ParquetFileID{oldFile.ID}, flagged)

	// Already-flagged rows are not re-flagged.
	flagged, err = repos.ParquetFiles().FlagForDeleteByRetention(ctx)
	require.NoError(t, err)
	require.Empty(t, flagged)

	// As the clock moves, the fresh file ages out too.
	clk.Advance(2 * time.Hour)
	flagged, err = repos.ParquetFiles().FlagForDeleteByRetention(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
}

func TestParquetFileSweepsAreBounded(t *testing.T) {
	t.Parallel()

	cat, clk := newTestCatalog(t, func(o *Options) { o.MaxFilesSelectedOnce = 2 })
	repos := cat.Repositories()
	ctx := context.Background()

	retention := int64(time.Hour)
	ns, err := repos.Namespaces().Create(ctx, "bounded", nil, &retention)
	require.NoError(t, err)
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	now := catalog.TimestampFromTime(testEpoch)
	for i := 0; i < 5; i++ {
		params := testFileParams(ns.ID, table.ID, p.ID, now)
		params.MaxTime = now - 2*catalog.Timestamp(time.Hour)
		_, err := repos.ParquetFiles().Create(ctx, params)
		require.NoError(t, err)
	}

	// Each retention pass flags at most the cap; looping drains the rest.
	var total int
	for {
		flagged, err := repos.ParquetFiles().FlagForDeleteByRetention(ctx)
		require.NoError(t, err)
		if len(flagged) == 0 {
			break
		}
		require.LessOrEqual(t, len(flagged), 2)
		total += len(flagged)
	}
	require.Equal(t, 5, total)

	// Same cap on the hard-delete sweep.
	clk.Advance(time.Hour)
	cutoff := catalog.TimestampFromTime(clk.Now())
	var deleted int
	for {
		ids, err := repos.ParquetFiles().DeleteOldIDsOnly(ctx, cutoff)
		require.NoError(t, err)
		if len(ids) == 0 {
			break
		}
		require.LessOrEqual(t, len(ids), 2)
		deleted += len(ids)
	}
	require.Equal(t, 5, deleted)

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestParquetFileDeleteOldRespectsCutoff(t *testing.T) {
	t.Parallel()

	cat, clk := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	now := catalog.TimestampFromTime(testEpoch)
	early, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)
	late, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)

	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, early.ID))
	clk.Advance(time.Hour)
	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, late.ID))

	// Only rows flagged strictly before the cutoff are removed; live rows
	// never are.
	cutoff := catalog.TimestampFromTime(testEpoch.Add(time.Minute))
	ids, err := repos.ParquetFiles().DeleteOldIDsOnly(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, []catalog.ParquetFileID{early.ID}, ids)

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, late.ID, all[0].ID)
}

func TestBillingSummaryFollowsFileLifecycle(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "billed")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	var files []*catalog.ParquetFile
	for i := 0; i < 3; i++ {
		f, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, 5000))
		require.NoError(t, err)
		files = append(files, f)
	}
	require.Equal(t, int64(1337*3), billingTotal(t, cat, ns.ID))

	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, files[0].ID))
	require.Equal(t, int64(1337*2), billingTotal(t, cat, ns.ID))

	// Re-flagging an already-flagged file must not double-subtract.
	require.NoError(t, repos.ParquetFiles().FlagForDelete(ctx, files[0].ID))
	require.Equal(t, int64(1337*2), billingTotal(t, cat, ns.ID))

	// Hard-deleting the flagged row leaves the total alone; the
	// subtraction already happened at flag time.
	cutoff := catalog.TimestampFromTime(testEpoch.Add(time.Minute))
	ids, err := repos.ParquetFiles().DeleteOldIDsOnly(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, []catalog.ParquetFileID{files[0].ID}, ids)
	require.Equal(t, int64(1337*2), billingTotal(t, cat, ns.ID))
}

func TestCreateUpgradeDelete(t *testing.T) {
	t.Parallel()

	cat, clk := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	now := catalog.TimestampFromTime(testEpoch)
	in1, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)
	in2, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)
	keep, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	out := testFileParams(ns.ID, table.ID, p.ID, catalog.TimestampFromTime(clk.Now()))
	out.CompactionLevel = catalog.CompactionLevelFileNonOverlapped

	newIDs, err := repos.ParquetFiles().CreateUpgradeDelete(ctx,
		[]catalog.ParquetFileID{in1.ID, in2.ID},
		[]catalog.ParquetFileID{keep.ID},
		[]catalog.ParquetFileParams{out},
		catalog.CompactionLevelFileNonOverlapped)
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)

	flagTime := catalog.TimestampFromTime(clk.Now())
	for _, f := range all {
		switch f.ID {
		case in1.ID, in2.ID:
			// Both inputs share one deletion timestamp.
			require.NotNil(t, f.ToDelete)
			require.Equal(t, flagTime, *f.ToDelete)
		case keep.ID:
			require.Nil(t, f.ToDelete)
			require.Equal(t, catalog.CompactionLevelFileNonOverlapped, f.CompactionLevel)
		case newIDs[0]:
			require.Nil(t, f.ToDelete)
			require.Equal(t, catalog.CompactionLevelFileNonOverlapped, f.CompactionLevel)
		default:
			t.Fatalf("unexpected file %d", f.ID)
		}
	}
}

func TestCreateUpgradeDeleteAtomicOnFailure(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()
	ctx := context.Background()

	ns := createTestNamespace(t, repos, "metrics")
	table := createTestTable(t, repos, ns.ID, "cpu")
	p := createTestPartition(t, repos, table.ID, "k")

	now := catalog.TimestampFromTime(testEpoch)
	victim, err := repos.ParquetFiles().Create(ctx, testFileParams(ns.ID, table.ID, p.ID, now))
	require.NoError(t, err)

	// The create half collides on an existing object store id, so the
	// delete half must roll back with it.
	dup := testFileParams(ns.ID, table.ID, p.ID, now)
	dup.ObjectStoreID = victim.ObjectStoreID

	_, err = repos.ParquetFiles().CreateUpgradeDelete(ctx,
		[]catalog.ParquetFileID{victim.ID}, nil,
		[]catalog.ParquetFileParams{dup},
		catalog.CompactionLevelFileNonOverlapped)

	var txnErr *catalog.TransactionError
	require.ErrorAs(t, err, &txnErr)
	var exists *catalog.FileExistsError
	require.ErrorAs(t, err, &exists)

	all, err := repos.ParquetFiles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Nil(t, all[0].ToDelete, "rolled-back flag must not persist")
	require.Equal(t, int64(1337), billingTotal(t, cat, ns.ID))
}

func TestCreateUpgradeDeleteOverlapPanics(t *testing.T) {
	t.Parallel()

	cat, _ := newTestCatalog(t)
	repos := cat.Repositories()

	require.Panics(t, func() {
		_, _ = repos.ParquetFiles().CreateUpgradeDelete(context.Background(),
			[]catalog.ParquetFileID{1, 2},
			[]catalog.ParquetFileID{2, 3},
			nil, catalog.CompactionLevelFinal)
	})
}
