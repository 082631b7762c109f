package core

import "github.com/alecthomas/types/optional"

// SeekPage trims rows already ordered by cmp to a page of at most limit
// items. Adjacent rows that compare equal are collapsed first. When more
// rows remain, the first excluded row is returned as the boundary; a query
// resumed from it (inclusive) continues exactly after the page. A limit of
// zero or less returns every row with no boundary.
func SeekPage[T any](rows []T, limit int, cmp func(a, b T) int) ([]T, optional.Option[T]) {
	unique := make([]T, 0, len(rows))
	for _, row := range rows {
		if n := len(unique); n > 0 && cmp(unique[n-1], row) == 0 {
			continue
		}
		unique = append(unique, row)
	}
	if limit <= 0 || len(unique) <= limit {
		return unique, optional.None[T]()
	}
	return unique[:limit], optional.Some(unique[limit])
}
