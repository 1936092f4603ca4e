package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/cairndb/cairn/catalog"
)

type columnRepo struct {
	s *Session
}

var _ catalog.ColumnRepo = (*columnRepo)(nil)

func scanColumn(row rowScanner) (*catalog.Column, error) {
	var c catalog.Column
	if err := row.Scan(&c.ID, &c.TableID, &c.Name, &c.ColumnType); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *columnRepo) CreateOrGet(ctx context.Context, name string, tableID catalog.TableID, columnType catalog.ColumnType) (*catalog.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Limit check and insert in one statement, like table creation. The
	// conflict clause is a no-op update so an existing column comes back
	// through RETURNING instead of failing the insert.
	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		INSERT INTO column_name (name, table_id, column_type)
		SELECT ?, table_id, ? FROM (
			SELECT max_columns_per_table, table_name.id AS table_id, COUNT(column_name.id) AS count
			FROM namespace
			JOIN table_name ON namespace.id = table_name.namespace_id
			LEFT JOIN column_name ON table_name.id = column_name.table_id
			WHERE table_name.id = ?
			GROUP BY namespace.max_columns_per_table, table_name.id
		) AS get_count WHERE count < max_columns_per_table
		ON CONFLICT (table_id, name) DO UPDATE SET name = column_name.name
		RETURNING id, table_id, name, column_type
	`, name, columnType, int64(tableID))

	column, err := scanColumn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &catalog.ColumnLimitError{TableID: tableID, Name: name}
	}
	if err != nil {
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "column create", Err: err}
		}
		return nil, fmt.Errorf("column create failed: %w", err)
	}

	if column.ColumnType != columnType {
		return nil, &catalog.ColumnTypeMismatchError{
			Name:     name,
			Existing: column.ColumnType,
			New:      columnType,
		}
	}
	return column, nil
}

func (r *columnRepo) CreateOrGetManyUnchecked(ctx context.Context, tableID catalog.TableID, columns map[string]catalog.ColumnType) ([]catalog.Column, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Rows go in sorted by name so concurrent batches lock rows in the
	// same order regardless of map iteration.
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO column_name (table_id, name, column_type) VALUES `)
	args := make([]any, 0, len(names)*3)
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, int64(tableID), name, columns[name])
	}
	sb.WriteString(`
		ON CONFLICT (table_id, name) DO UPDATE SET name = column_name.name
		RETURNING id, table_id, name, column_type`)

	rows, err := r.s.cat.writeDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "column batch create", Err: err}
		}
		return nil, fmt.Errorf("column batch create failed: %w", err)
	}
	defer rows.Close()

	out := make([]catalog.Column, 0, len(names))
	for rows.Next() {
		column, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		if want := columns[column.Name]; column.ColumnType != want {
			return nil, &catalog.ColumnTypeMismatchError{
				Name:     column.Name,
				Existing: column.ColumnType,
				New:      want,
			}
		}
		out = append(out, *column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING order is driver-dependent; hand back name order.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *columnRepo) ListByNamespaceID(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.Column, error) {
	query, args, err := dialect.From("column_name").
		Select("column_name.id", "column_name.table_id", "column_name.name", "column_name.column_type").
		Join(goqu.T("table_name"), goqu.On(goqu.Ex{"column_name.table_id": goqu.I("table_name.id")})).
		Where(goqu.C("namespace_id").Table("table_name").Eq(int64(namespaceID))).
		Order(goqu.I("column_name.id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("column list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *columnRepo) ListByTableID(ctx context.Context, tableID catalog.TableID) ([]catalog.Column, error) {
	query, args, err := dialect.From("column_name").
		Select("id", "table_id", "name", "column_type").
		Where(goqu.C("table_id").Eq(int64(tableID))).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("column list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *columnRepo) List(ctx context.Context) ([]catalog.Column, error) {
	query, args, err := dialect.From("column_name").
		Select("id", "table_id", "name", "column_type").
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("column list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *columnRepo) list(ctx context.Context, query string, args []any) ([]catalog.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("column list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.Column
	for rows.Next() {
		column, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *column)
	}
	return out, rows.Err()
}
