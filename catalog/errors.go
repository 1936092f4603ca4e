package catalog

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// NameExistsError indicates a namespace name is already taken, soft-deleted
// rows included.
type NameExistsError struct {
	Name string
}

func (e *NameExistsError) Error() string {
	return fmt.Sprintf("namespace %q already exists", e.Name)
}

// TableNameExistsError indicates a table name collision within a namespace.
type TableNameExistsError struct {
	NamespaceID NamespaceID
	Name        string
}

func (e *TableNameExistsError) Error() string {
	return fmt.Sprintf("table %q already exists in namespace %d", e.Name, e.NamespaceID)
}

// FileExistsError indicates a parquet file with the same object store id is
// already registered.
type FileExistsError struct {
	ObjectStoreID string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("parquet file with object store id %s already exists", e.ObjectStoreID)
}

// NamespaceNotFoundError indicates the addressed namespace does not exist
// or is soft-deleted.
type NamespaceNotFoundError struct {
	Name string
	ID   NamespaceID
}

func (e *NamespaceNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("namespace %q not found", e.Name)
	}
	return fmt.Sprintf("namespace %d not found", e.ID)
}

// TableNotFoundError indicates the addressed table does not exist.
type TableNotFoundError struct {
	ID TableID
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %d not found", e.ID)
}

// PartitionNotFoundError indicates the addressed partition does not exist.
type PartitionNotFoundError struct {
	ID PartitionID
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition %d not found", e.ID)
}

// TableLimitError indicates the namespace is at its max_tables capacity.
type TableLimitError struct {
	NamespaceID NamespaceID
	Name        string
}

func (e *TableLimitError) Error() string {
	return fmt.Sprintf("couldn't create table %q: namespace %d is at its table limit", e.Name, e.NamespaceID)
}

// ColumnLimitError indicates the table is at its namespace's
// max_columns_per_table capacity.
type ColumnLimitError struct {
	TableID TableID
	Name    string
}

func (e *ColumnLimitError) Error() string {
	return fmt.Sprintf("couldn't create column %q: table %d is at its column limit", e.Name, e.TableID)
}

// ColumnTypeMismatchError indicates an existing column was addressed with a
// different type. Column types never change once created.
type ColumnTypeMismatchError struct {
	Name     string
	Existing ColumnType
	New      ColumnType
}

func (e *ColumnTypeMismatchError) Error() string {
	return fmt.Sprintf("column %q is type %s but requested as type %s", e.Name, e.Existing, e.New)
}

// CasMismatchError indicates a sort-key compare-and-swap found a different
// stored value. Current is a best-effort read taken after the failed swap
// and may already be stale; callers re-derive their update from it and
// retry.
type CasMismatchError struct {
	PartitionID PartitionID
	Current     []string
}

func (e *CasMismatchError) Error() string {
	return fmt.Sprintf("sort key CAS on partition %d failed, current key is %v", e.PartitionID, e.Current)
}

// ForeignKeyError indicates a write referenced a parent row that does not
// exist.
type ForeignKeyError struct {
	Op  string
	Err error
}

func (e *ForeignKeyError) Error() string {
	return fmt.Sprintf("%s violated a foreign key: %v", e.Op, e.Err)
}

func (e *ForeignKeyError) Unwrap() error { return e.Err }

// TransactionError wraps a failure inside an explicit store transaction.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// IsUniqueViolation reports whether err is a unique or primary key
// constraint violation from any supported engine.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == 1062
	}
	return false
}

// IsFKViolation reports whether err is a foreign key constraint violation
// from any supported engine.
func IsFKViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == 1452
	}
	return false
}
