package store

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// BuildUpdate assembles a parameterized UPDATE statement. Table and column
// names are validated as identifiers since they cannot be bound parameters.
func BuildUpdate(table string, set, where map[string]any) (string, []any, error) {
	if !identPattern.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name %q", table)
	}
	builder := squirrel.Update(table).PlaceholderFormat(squirrel.Dollar)
	for col, val := range set {
		if !identPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
		builder = builder.Set(col, val)
	}
	for col := range where {
		if !identPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
	}
	if len(where) > 0 {
		builder = builder.Where(squirrel.Eq(where))
	}
	return builder.ToSql()
}
