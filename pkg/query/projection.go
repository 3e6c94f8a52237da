// Package query builds parameterized SELECT statements over a projected table.
package query

import (
	"fmt"
	"strings"
)

// ProjectionMap maps view property names to qualified column references
// (alias.column) for one table.
type ProjectionMap struct {
	from    string
	alias   string
	lookup  map[string]string
	columns []string
}

// NewProjectionMap creates a ProjectionMap for schema.table under alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		from:   fmt.Sprintf("%s.%s %s", schema, table, alias),
		alias:  alias,
		lookup: make(map[string]string),
	}
}

// Project maps column to viewName. Either name resolves to the column.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	qualified := p.alias + "." + column
	p.lookup[strings.ToLower(viewName)] = qualified
	p.lookup[strings.ToLower(column)] = qualified
	p.columns = append(p.columns, qualified)
	return p
}

// Alias returns the table alias.
func (p *ProjectionMap) Alias() string {
	return p.alias
}

// From returns the table reference with alias (schema.table alias).
func (p *ProjectionMap) From() string {
	return p.from
}

// Lookup resolves a view or column name, case-insensitively.
func (p *ProjectionMap) Lookup(name string) (string, bool) {
	col, ok := p.lookup[strings.ToLower(name)]
	return col, ok
}

// Column resolves name like Lookup and panics when it is not projected.
// Callers pass names fixed at compile time; request input goes through Lookup.
func (p *ProjectionMap) Column(name string) string {
	col, ok := p.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("query: %q is not projected on %s", name, p.from))
	}
	return col
}

// Columns returns all projected columns as a select list.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.columns, ", ")
}
