package schema

// Field describes one column of a cataloged table.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "string" | "timestamp" | "date" | "double" | "int" | "bigint"
	Nullable bool   `json:"nullable,omitempty"`
}
