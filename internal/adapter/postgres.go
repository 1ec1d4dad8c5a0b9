package adapter

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresAdapter PostgreSQL 适配器
type PostgresAdapter struct {
	db     *sql.DB
	schema string
}

// NewPostgresAdapter 创建 PostgreSQL 适配器
func NewPostgresAdapter(connStr, schema string) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, &ConnectivityError{Driver: "postgres", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &ConnectivityError{Driver: "postgres", Err: err}
	}
	if schema == "" {
		schema = "public"
	}
	return &PostgresAdapter{db: db, schema: schema}, nil
}

// IntrospectSchema 获取元数据
func (a *PostgresAdapter) IntrospectSchema() (*SchemaMetadata, error) {
	meta := &SchemaMetadata{}

	tables, err := a.getTables()
	if err != nil {
		return nil, &MetadataError{Err: err}
	}

	fks, err := a.getForeignKeys()
	if err != nil {
		return nil, &MetadataError{Err: err}
	}
	fkByTable := make(map[string][]ForeignKey)
	for _, fk := range fks {
		fkByTable[fk.FromTable] = append(fkByTable[fk.FromTable], fk)
	}

	pks, err := a.getPrimaryKeys()
	if err != nil {
		return nil, &MetadataError{Err: err}
	}

	uniqueCols, err := a.getUniqueColumns()
	if err != nil {
		return nil, &MetadataError{Err: err}
	}

	for i := range tables {
		columns, err := a.getColumns(tables[i].Name)
		if err != nil {
			meta.Skipped = append(meta.Skipped, SkippedTable{
				Name:   tables[i].Name,
				Reason: (&MetadataError{Table: tables[i].Name, Err: err}).Error(),
			})
			continue
		}
		pkCols := pks[tables[i].Name]
		pkSet := make(map[string]bool, len(pkCols))
		for _, c := range pkCols {
			pkSet[c] = true
		}
		for j := range columns {
			if pkSet[columns[j].Name] {
				columns[j].IsPrimaryKey = true
				columns[j].IsUnique = true
			}
			if uniqueCols[tables[i].Name+"."+columns[j].Name] {
				columns[j].IsUnique = true
			}
		}
		tables[i].Columns = columns
		tables[i].PrimaryKey = pkCols
		tables[i].ForeignKeys = fkByTable[tables[i].Name]
		meta.Tables = append(meta.Tables, tables[i])
	}

	return meta, nil
}

func (a *PostgresAdapter) getTables() ([]Table, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := a.db.Query(query, a.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		t.Schema = a.schema
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (a *PostgresAdapter) getColumns(table string) ([]Column, error) {
	query := `
		SELECT
			column_name,
			data_type,
			COALESCE(character_maximum_length, 0),
			is_nullable = 'YES',
			is_identity = 'YES' OR COALESCE(column_default, '') LIKE 'nextval(%'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`
	rows, err := a.db.Query(query, a.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &c.Nullable, &c.IsAutoIncrement); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (a *PostgresAdapter) getPrimaryKeys() (map[string][]string, error) {
	query := `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY tc.table_name, kcu.ordinal_position
	`
	rows, err := a.db.Query(query, a.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, err
		}
		pks[tableName] = append(pks[tableName], columnName)
	}
	return pks, rows.Err()
}

// getUniqueColumns 单列唯一约束覆盖的列
func (a *PostgresAdapter) getUniqueColumns() (map[string]bool, error) {
	query := `
		SELECT tc.table_name, tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'UNIQUE'
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
	`
	rows, err := a.db.Query(query, a.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colsByConstraint := make(map[string][]string)
	for rows.Next() {
		var tableName, constraintName, columnName string
		if err := rows.Scan(&tableName, &constraintName, &columnName); err != nil {
			return nil, err
		}
		key := tableName + "\x00" + constraintName
		colsByConstraint[key] = append(colsByConstraint[key], tableName+"."+columnName)
	}

	unique := make(map[string]bool)
	for _, cols := range colsByConstraint {
		if len(cols) == 1 {
			unique[cols[0]] = true
		}
	}
	return unique, rows.Err()
}

func (a *PostgresAdapter) getForeignKeys() ([]ForeignKey, error) {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'
	`
	rows, err := a.db.Query(query, a.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// EstimateRowCount 估算行数（走统计信息，不全表扫描）
func (a *PostgresAdapter) EstimateRowCount(table string) (int64, error) {
	query := `
		SELECT COALESCE(reltuples::bigint, 0)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`
	var count int64
	err := a.db.QueryRow(query, a.schema, table).Scan(&count)
	if err != nil {
		return 0, &MetadataError{Table: table, Err: err}
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// SampleColumnValues 采样非空列值
func (a *PostgresAdapter) SampleColumnValues(table, column string, sampleSize int) ([]string, error) {
	query := fmt.Sprintf("SELECT %s::text FROM %s WHERE %s IS NOT NULL ORDER BY random() LIMIT %d",
		pq.QuoteIdentifier(column), a.qualified(table), pq.QuoteIdentifier(column), sampleSize)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// DistinctValues 获取去重值（有上限）
func (a *PostgresAdapter) DistinctValues(table, column string, limit int) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL LIMIT %d",
		pq.QuoteIdentifier(column), a.qualified(table), pq.QuoteIdentifier(column), limit)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// FilterExisting 返回在目标列中真实存在的取值子集（分块半连接）
func (a *PostgresAdapter) FilterExisting(table, column string, values []string) ([]string, error) {
	var existing []string
	for start := 0; start < len(values); start += filterChunkSize {
		end := start + filterChunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, v := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = v
		}
		// 采样值统一是文本，比较时列侧同样转文本
		query := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s WHERE %s::text IN (%s)",
			pq.QuoteIdentifier(column), a.qualified(table), pq.QuoteIdentifier(column),
			strings.Join(placeholders, ","))

		part, err := a.queryStrings(query, args...)
		if err != nil {
			return nil, &SamplingError{Table: table, Column: column, Err: err}
		}
		existing = append(existing, part...)
	}
	return existing, nil
}

func (a *PostgresAdapter) qualified(table string) string {
	return pq.QuoteIdentifier(a.schema) + "." + pq.QuoteIdentifier(table)
}

func (a *PostgresAdapter) queryStrings(query string, args ...interface{}) ([]string, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}

// Close 关闭连接
func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}
