package ddl

// Type is a logical column type. Dialects map it to concrete SQL.
type Type int

const (
	// TypeKey is a short string usable in a primary key.
	TypeKey Type = iota
	// TypeText is an unbounded string.
	TypeText
	// TypeInt64 is a 64-bit integer.
	TypeInt64
	// TypeTime is a UTC timestamp stored as fixed-width text.
	TypeTime
)

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Type: logical type, rendered through Dialect.Types
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
type ColumnDef struct {
	Name       string
	Type       Type
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name and an ordered list of columns.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// Dialect carries what differs between SQL backends when rendering DDL.
type Dialect struct {
	Name string

	// Quote quotes an identifier.
	Quote func(string) string

	// Types maps every logical Type to the backend's SQL type.
	Types map[Type]string

	// IfNotExists is true when the backend accepts CREATE TABLE IF NOT EXISTS.
	// Otherwise the statement is guarded with OBJECT_ID (SQL Server).
	IfNotExists bool
}

// DoubleQuote quotes an identifier ANSI style: "name".
func DoubleQuote(s string) string { return `"` + escape(s, `"`) + `"` }

// Backtick quotes a MySQL identifier: `name`.
func Backtick(s string) string { return "`" + escape(s, "`") + "`" }

// Bracket quotes a SQL Server identifier: [name].
func Bracket(s string) string { return "[" + escape(s, "]") + "]" }

func escape(s, q string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == q[0] {
			out = append(out, s[i])
		}
	}
	return string(out)
}
