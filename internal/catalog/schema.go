package catalog

import "ecommetl/internal/ddl"

// Catalog table names.
const (
	TableDatabases  = "catalog_databases"
	TableTables     = "catalog_tables"
	TablePartitions = "catalog_partitions"
	TableRuns       = "catalog_job_runs"
)

// Tables returns the definitions of the catalog's own tables in creation
// order.
func Tables() []ddl.TableDef {
	return []ddl.TableDef{
		{Name: TableDatabases, Columns: []ddl.ColumnDef{
			{Name: "database_name", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "created_at", Type: ddl.TypeTime},
		}},
		{Name: TableTables, Columns: []ddl.ColumnDef{
			{Name: "database_name", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "table_name", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "table_location", Type: ddl.TypeText},
			{Name: "table_format", Type: ddl.TypeText},
			{Name: "compression", Type: ddl.TypeText},
			{Name: "columns_json", Type: ddl.TypeText},
			{Name: "partition_keys_json", Type: ddl.TypeText},
			{Name: "parameters_json", Type: ddl.TypeText},
			{Name: "updated_at", Type: ddl.TypeTime},
		}},
		{Name: TablePartitions, Columns: []ddl.ColumnDef{
			{Name: "database_name", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "table_name", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "partition_key", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "values_json", Type: ddl.TypeText},
			{Name: "partition_location", Type: ddl.TypeText},
			{Name: "record_count", Type: ddl.TypeInt64},
			{Name: "file_count", Type: ddl.TypeInt64},
			{Name: "byte_count", Type: ddl.TypeInt64},
			{Name: "checksum", Type: ddl.TypeText},
			{Name: "updated_at", Type: ddl.TypeTime},
		}},
		{Name: TableRuns, Columns: []ddl.ColumnDef{
			{Name: "run_id", Type: ddl.TypeKey, PrimaryKey: true},
			{Name: "job_name", Type: ddl.TypeText},
			{Name: "status", Type: ddl.TypeText},
			{Name: "started_at", Type: ddl.TypeTime},
			{Name: "finished_at", Type: ddl.TypeTime, Nullable: true},
			{Name: "rows_read", Type: ddl.TypeInt64},
			{Name: "rows_written", Type: ddl.TypeInt64},
			{Name: "rows_rejected", Type: ddl.TypeInt64},
			{Name: "rows_nulled", Type: ddl.TypeInt64},
			{Name: "rows_deduped", Type: ddl.TypeInt64},
			{Name: "error_text", Type: ddl.TypeText, Nullable: true},
		}},
	}
}
