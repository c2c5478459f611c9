package store

import (
	"fmt"
	"strconv"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return dialectPostgres, nil
	case "sqlite":
		return dialectSQLite, nil
	default:
		return 0, fmt.Errorf("unsupported mirror driver %q", driver)
	}
}

func (d dialect) driverName() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d == dialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// containsCond is a case-insensitive substring match of col against a bind
// parameter holding an escaped, lowercased %pattern%.
func (d dialect) containsCond(col, ph string) string {
	if d == dialectPostgres {
		return "COALESCE(" + col + ", '') ILIKE " + ph + ` ESCAPE '\'`
	}
	return "LOWER(COALESCE(" + col + ", '')) LIKE " + ph + ` ESCAPE '\'`
}
