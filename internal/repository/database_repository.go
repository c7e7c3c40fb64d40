package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// ListDatabases returns the non-template databases on the server, minus the
// excluded names, sorted by name.
func ListDatabases(ctx context.Context, db *sqlx.DB, excluded []string) ([]string, error) {
	query, args, err := listDatabasesQuery(excluded)
	if err != nil {
		return nil, fmt.Errorf("error building database list query: %w", err)
	}

	var names []string
	if err := db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, fmt.Errorf("error listing databases: %w", err)
	}
	return names, nil
}

func listDatabasesQuery(excluded []string) (string, []interface{}, error) {
	builder := sq.
		Select("datname").
		From("pg_database").
		Where(sq.Eq{"datistemplate": false}).
		OrderBy("datname").
		PlaceholderFormat(sq.Dollar)

	if len(excluded) > 0 {
		builder = builder.Where(sq.NotEq{"datname": excluded})
	}

	return builder.ToSql()
}

// SelectDatabases resolves a CLI database argument against the discovered
// names: "-1" selects all, a positive N the first N, anything else one name.
func SelectDatabases(available []string, arg string) ([]string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("database argument is required")
	}

	if n, err := strconv.Atoi(arg); err == nil {
		switch {
		case n == -1:
			return available, nil
		case n > 0:
			if n > len(available) {
				n = len(available)
			}
			return available[:n], nil
		default:
			return nil, fmt.Errorf("invalid database count %d", n)
		}
	}

	for _, name := range available {
		if name == arg {
			return []string{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown database %q", arg)
}
