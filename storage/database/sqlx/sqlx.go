// Package sqlxrepos implements the repositories on PostgreSQL with sqlx & squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// trapNoRows maps sql.ErrNoRows to notFound
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query sq.SelectBuilder) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, q, args...)
}

func getOne(ctx context.Context, exec core.DBExecutor, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, q, args...)
}

func execOne(ctx context.Context, exec core.DBExecutor, query sq.Sqlizer, notFound error) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func orderBy(query sq.SelectBuilder, ordering []core.DBOrdering, allowed map[string]string, fallback string) sq.SelectBuilder {
	for _, ord := range core.CleanOrderings(ordering, allowed) {
		query = query.OrderBy(ord.String())
	}
	return query.OrderBy(fallback)
}
