package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/cairndb/cairn/catalog"
)

type tableRepo struct {
	s *Session
}

var _ catalog.TableRepo = (*tableRepo)(nil)

func scanTable(row rowScanner) (*catalog.Table, error) {
	var t catalog.Table
	if err := row.Scan(&t.ID, &t.NamespaceID, &t.Name); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tableRepo) Create(ctx context.Context, name string, namespaceID catalog.NamespaceID) (*catalog.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// The limit check and the insert are one statement: the subquery
	// yields zero source rows when the namespace is at max_tables, so
	// there is no window for a racing writer to overshoot the limit.
	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		INSERT INTO table_name (name, namespace_id)
		SELECT ?, id FROM (
			SELECT namespace.id AS id, max_tables, COUNT(table_name.id) AS count
			FROM namespace LEFT JOIN table_name ON namespace.id = table_name.namespace_id
			WHERE namespace.id = ?
			GROUP BY namespace.max_tables, namespace.id
		) AS get_count WHERE count < max_tables
		RETURNING id, namespace_id, name
	`, name, int64(namespaceID))

	table, err := scanTable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &catalog.TableLimitError{NamespaceID: namespaceID, Name: name}
	}
	if err != nil {
		if catalog.IsUniqueViolation(err) {
			return nil, &catalog.TableNameExistsError{NamespaceID: namespaceID, Name: name}
		}
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "table create", Err: err}
		}
		return nil, fmt.Errorf("table create failed: %w", err)
	}
	return table, nil
}

func (r *tableRepo) GetByID(ctx context.Context, id catalog.TableID) (*catalog.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("table_name").
		Select("id", "namespace_id", "name").
		Where(goqu.C("id").Eq(int64(id))).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("table get query: %w", err)
	}

	table, err := scanTable(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table get by id failed: %w", err)
	}
	return table, nil
}

func (r *tableRepo) GetByNamespaceAndName(ctx context.Context, namespaceID catalog.NamespaceID, name string) (*catalog.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("table_name").
		Select("id", "namespace_id", "name").
		Where(goqu.C("namespace_id").Eq(int64(namespaceID)), goqu.C("name").Eq(name)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("table get query: %w", err)
	}

	table, err := scanTable(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table get by name failed: %w", err)
	}
	return table, nil
}

func (r *tableRepo) ListByNamespaceID(ctx context.Context, namespaceID catalog.NamespaceID) ([]catalog.Table, error) {
	query, args, err := dialect.From("table_name").
		Select("id", "namespace_id", "name").
		Where(goqu.C("namespace_id").Eq(int64(namespaceID))).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("table list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *tableRepo) List(ctx context.Context) ([]catalog.Table, error) {
	query, args, err := dialect.From("table_name").
		Select("id", "namespace_id", "name").
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("table list query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *tableRepo) list(ctx context.Context, query string, args []any) ([]catalog.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("table list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.Table
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *table)
	}
	return out, rows.Err()
}
