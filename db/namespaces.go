package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/cairndb/cairn/catalog"
)

type namespaceRepo struct {
	s *Session
}

var _ catalog.NamespaceRepo = (*namespaceRepo)(nil)

var namespaceColumns = []any{
	"id", "name", "retention_period_ns", "max_tables",
	"max_columns_per_table", "deleted_at", "partition_template",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNamespace(row rowScanner) (*catalog.Namespace, error) {
	var (
		ns        catalog.Namespace
		retention sql.NullInt64
		deletedAt sql.NullInt64
		template  sql.NullString
	)
	err := row.Scan(&ns.ID, &ns.Name, &retention, &ns.MaxTables,
		&ns.MaxColumnsPerTable, &deletedAt, &template)
	if err != nil {
		return nil, err
	}
	if retention.Valid {
		ns.RetentionPeriodNs = &retention.Int64
	}
	if deletedAt.Valid {
		ts := catalog.Timestamp(deletedAt.Int64)
		ns.DeletedAt = &ts
	}
	if template.Valid {
		ns.PartitionTemplate = &template.String
	}
	return &ns, nil
}

func (r *namespaceRepo) Create(ctx context.Context, name string, partitionTemplate *string, retentionPeriodNs *int64) (*catalog.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.s.cat.writeDB.QueryRowContext(ctx, `
		INSERT INTO namespace (name, retention_period_ns, max_tables, max_columns_per_table, partition_template)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, name, retention_period_ns, max_tables, max_columns_per_table, deleted_at, partition_template
	`, name, retentionPeriodNs, r.s.cat.opts.MaxTables, r.s.cat.opts.MaxColumnsPerTable, partitionTemplate)

	ns, err := scanNamespace(row)
	if err != nil {
		if catalog.IsUniqueViolation(err) {
			return nil, &catalog.NameExistsError{Name: name}
		}
		if catalog.IsFKViolation(err) {
			return nil, &catalog.ForeignKeyError{Op: "namespace create", Err: err}
		}
		return nil, fmt.Errorf("namespace create failed: %w", err)
	}
	return ns, nil
}

func (r *namespaceRepo) List(ctx context.Context, deleted catalog.SoftDeletedRows) ([]catalog.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("namespace").
		Select(namespaceColumns...).
		Where(goqu.L(deleted.SQLPredicate())).
		Order(goqu.I("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("namespace list query: %w", err)
	}

	rows, err := r.s.cat.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("namespace list failed: %w", err)
	}
	defer rows.Close()

	var out []catalog.Namespace
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ns)
	}
	return out, rows.Err()
}

func (r *namespaceRepo) GetByID(ctx context.Context, id catalog.NamespaceID, deleted catalog.SoftDeletedRows) (*catalog.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("namespace").
		Select(namespaceColumns...).
		Where(goqu.C("id").Eq(int64(id)), goqu.L(deleted.SQLPredicate())).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("namespace get query: %w", err)
	}

	ns, err := scanNamespace(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("namespace get by id failed: %w", err)
	}
	return ns, nil
}

func (r *namespaceRepo) GetByName(ctx context.Context, name string, deleted catalog.SoftDeletedRows) (*catalog.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	query, args, err := dialect.From("namespace").
		Select(namespaceColumns...).
		Where(goqu.C("name").Eq(name), goqu.L(deleted.SQLPredicate())).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("namespace get query: %w", err)
	}

	ns, err := scanNamespace(r.s.cat.readDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("namespace get by name failed: %w", err)
	}
	return ns, nil
}

func (r *namespaceRepo) SoftDelete(ctx context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := catalog.TimestampFromTime(r.s.cat.clock.Now())
	res, err := r.s.cat.writeDB.ExecContext(ctx, `
		UPDATE namespace SET deleted_at = ? WHERE name = ? AND deleted_at IS NULL
	`, int64(now), name)
	if err != nil {
		return fmt.Errorf("namespace soft delete failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("namespace soft delete failed: %w", err)
	}
	if affected == 0 {
		return &catalog.NamespaceNotFoundError{Name: name}
	}

	log.Debug().Str("namespace", name).Msg("Namespace soft-deleted")
	return nil
}

func (r *namespaceRepo) UpdateTableLimit(ctx context.Context, name string, newMax int32) (*catalog.Namespace, error) {
	return r.update(ctx, name, "max_tables", newMax)
}

func (r *namespaceRepo) UpdateColumnLimit(ctx context.Context, name string, newMax int32) (*catalog.Namespace, error) {
	return r.update(ctx, name, "max_columns_per_table", newMax)
}

func (r *namespaceRepo) UpdateRetentionPeriod(ctx context.Context, name string, retentionPeriodNs *int64) (*catalog.Namespace, error) {
	return r.update(ctx, name, "retention_period_ns", retentionPeriodNs)
}

// update applies a single-column conditional update to a live namespace and
// returns the updated row. column is always one of our own literals, never
// caller input.
func (r *namespaceRepo) update(ctx context.Context, name, column string, value any) (*catalog.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.s.cat.writeDB.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE namespace SET %s = ? WHERE name = ? AND deleted_at IS NULL
		RETURNING id, name, retention_period_ns, max_tables, max_columns_per_table, deleted_at, partition_template
	`, column), value, name)

	ns, err := scanNamespace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &catalog.NamespaceNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("namespace %s update failed: %w", column, err)
	}
	return ns, nil
}
