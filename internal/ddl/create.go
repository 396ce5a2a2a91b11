// Package ddl is a small, backend-agnostic model for the catalog's SQL DDL
// and a renderer for CREATE TABLE statements in each supported dialect.
//
// Column types are logical (see Type); a Dialect maps them to concrete SQL,
// quotes identifiers, and decides how "create if missing" is expressed.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a CREATE TABLE statement for t in dialect d.
//
// Rules:
//
//   - t.Name must be non-empty and t must have at least one column.
//
//   - Each column renders as <quoted name> <type> [NOT NULL]; NOT NULL is
//     added when Nullable is false.
//
//   - Columns with PrimaryKey set are collected into a trailing
//     PRIMARY KEY (...) clause.
//
//   - When d.IfNotExists is set the statement is
//     CREATE TABLE IF NOT EXISTS; otherwise it is wrapped as
//     IF OBJECT_ID(N'<name>', N'U') IS NULL CREATE TABLE ...
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	if d.Quote == nil {
		return "", fmt.Errorf("ddl: dialect %q has no quote function", d.Name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cname := strings.TrimSpace(c.Name)
		if cname == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", name)
		}
		typ, ok := d.Types[c.Type]
		if !ok || typ == "" {
			return "", fmt.Errorf("ddl: dialect %q has no SQL type for column %s", d.Name, cname)
		}

		var sb strings.Builder
		sb.WriteString(d.Quote(cname))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.Quote(cname))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	body := fmt.Sprintf("%s (\n  %s\n)", d.Quote(name), strings.Join(cols, ",\n  "))
	if d.IfNotExists {
		return "CREATE TABLE IF NOT EXISTS " + body, nil
	}
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s",
		strings.ReplaceAll(name, "'", "''"), body), nil
}
