package ddl

import (
	"strings"
	"testing"
)

var testDialect = Dialect{
	Name:        "test",
	Quote:       DoubleQuote,
	Types:       map[Type]string{TypeKey: "VARCHAR(255)", TypeText: "TEXT", TypeInt64: "BIGINT", TypeTime: "VARCHAR(32)"},
	IfNotExists: true,
}

// TestBuildCreateTableSQL verifies the rendered statements and the errors
// surfaced for invalid definitions.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		dialect     Dialect
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty name returns error",
			dialect:     testDialect,
			def:         TableDef{Columns: []ColumnDef{{Name: "id"}}},
			errContains: "table name must not be empty",
		},
		{
			name:        "no columns returns error",
			dialect:     testDialect,
			def:         TableDef{Name: "t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			dialect:     testDialect,
			def:         TableDef{Name: "t", Columns: []ColumnDef{{Name: " "}}},
			errContains: "column with empty name",
		},
		{
			name:        "unmapped type returns error",
			dialect:     Dialect{Name: "bare", Quote: DoubleQuote, Types: map[Type]string{}},
			def:         TableDef{Name: "t", Columns: []ColumnDef{{Name: "id", Type: TypeInt64}}},
			errContains: `dialect "bare" has no SQL type for column id`,
		},
		{
			name:    "if not exists with primary key",
			dialect: testDialect,
			def: TableDef{Name: "catalog_tables", Columns: []ColumnDef{
				{Name: "database_name", Type: TypeKey, PrimaryKey: true},
				{Name: "table_name", Type: TypeKey, PrimaryKey: true},
				{Name: "row_count", Type: TypeInt64},
				{Name: "finished_at", Type: TypeTime, Nullable: true},
			}},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"catalog_tables\" (\n" +
				"  \"database_name\" VARCHAR(255) NOT NULL,\n" +
				"  \"table_name\" VARCHAR(255) NOT NULL,\n" +
				"  \"row_count\" BIGINT NOT NULL,\n" +
				"  \"finished_at\" VARCHAR(32),\n" +
				"  PRIMARY KEY (\"database_name\", \"table_name\")\n" +
				")",
		},
		{
			name: "object_id guard",
			dialect: Dialect{
				Name:  "mssql",
				Quote: Bracket,
				Types: map[Type]string{TypeText: "NVARCHAR(MAX)"},
			},
			def:     TableDef{Name: "t", Columns: []ColumnDef{{Name: "v", Type: TypeText, Nullable: true}}},
			wantSQL: "IF OBJECT_ID(N't', N'U') IS NULL CREATE TABLE [t] (\n  [v] NVARCHAR(MAX)\n)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tt.dialect, tt.def)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("err = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tt.wantSQL)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{DoubleQuote, `a"b`, `"a""b"`},
		{Backtick, "a`b", "`a``b`"},
		{Bracket, "a]b", "[a]]b]"},
		{Bracket, "plain", "[plain]"},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Errorf("quote(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
