package adapter

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
)

// SQLServerAdapter SQL Server 适配器
type SQLServerAdapter struct {
	db *sql.DB
}

// NewSQLServerAdapter 创建 SQL Server 适配器
func NewSQLServerAdapter(connStr string) (*SQLServerAdapter, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, &ConnectivityError{Driver: "sqlserver", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &ConnectivityError{Driver: "sqlserver", Err: err}
	}
	return &SQLServerAdapter{db: db}, nil
}

// IntrospectSchema 获取元数据
func (a *SQLServerAdapter) IntrospectSchema() (*SchemaMetadata, error) {
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

	uniqueCols, err := a.getUniqueColumns()
	if err != nil {
		return nil, &MetadataError{Err: err}
	}

	for i := range tables {
		columns, err := a.getColumns(tables[i].Schema, tables[i].Name)
		if err != nil {
			meta.Skipped = append(meta.Skipped, SkippedTable{
				Name:   tables[i].Name,
				Reason: (&MetadataError{Table: tables[i].Name, Err: err}).Error(),
			})
			continue
		}
		for j := range columns {
			if uniqueCols[tables[i].Name+"."+columns[j].Name] {
				columns[j].IsUnique = true
			}
			if columns[j].IsPrimaryKey {
				tables[i].PrimaryKey = append(tables[i].PrimaryKey, columns[j].Name)
				columns[j].IsUnique = true
			}
		}
		tables[i].Columns = columns
		tables[i].ForeignKeys = fkByTable[tables[i].Name]
		meta.Tables = append(meta.Tables, tables[i])
	}

	return meta, nil
}

func (a *SQLServerAdapter) getTables() ([]Table, error) {
	query := `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME
	`
	rows, err := a.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (a *SQLServerAdapter) getColumns(schema, table string) ([]Column, error) {
	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			COALESCE(c.CHARACTER_MAXIMUM_LENGTH, 0) as LENGTH,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END as NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END as IS_PK,
			COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') as IS_IDENTITY
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA
			AND c.TABLE_NAME = pk.TABLE_NAME
			AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`
	rows, err := a.db.Query(query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var nullable, isPK int
		var isIdentity sql.NullInt64
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &nullable, &isPK, &isIdentity); err != nil {
			return nil, err
		}
		c.Nullable = nullable == 1
		c.IsPrimaryKey = isPK == 1
		c.IsAutoIncrement = isIdentity.Valid && isIdentity.Int64 == 1
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// getUniqueColumns 单列唯一索引覆盖的列
func (a *SQLServerAdapter) getUniqueColumns() (map[string]bool, error) {
	query := `
		SELECT
			t.name as TABLE_NAME,
			i.name as INDEX_NAME,
			c.name as COLUMN_NAME
		FROM sys.indexes i
		JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		JOIN sys.tables t ON i.object_id = t.object_id
		WHERE i.is_unique = 1 AND i.is_primary_key = 0
		ORDER BY t.name, i.name, ic.key_ordinal
	`
	rows, err := a.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colsByIndex := make(map[string][]string)
	for rows.Next() {
		var tableName, indexName, columnName string
		if err := rows.Scan(&tableName, &indexName, &columnName); err != nil {
			return nil, err
		}
		key := tableName + "\x00" + indexName
		colsByIndex[key] = append(colsByIndex[key], tableName+"."+columnName)
	}

	unique := make(map[string]bool)
	for _, cols := range colsByIndex {
		if len(cols) == 1 {
			unique[cols[0]] = true
		}
	}
	return unique, rows.Err()
}

func (a *SQLServerAdapter) getForeignKeys() ([]ForeignKey, error) {
	query := `
		SELECT
			OBJECT_NAME(fk.parent_object_id) as from_table,
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id) as from_column,
			OBJECT_NAME(fk.referenced_object_id) as to_table,
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) as to_column
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	`
	rows, err := a.db.Query(query)
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

// EstimateRowCount 估算行数
func (a *SQLServerAdapter) EstimateRowCount(table string) (int64, error) {
	query := `
		SELECT SUM(p.rows)
		FROM sys.partitions p
		JOIN sys.tables t ON p.object_id = t.object_id
		WHERE t.name = @p1 AND p.index_id IN (0,1)
	`
	var count sql.NullInt64
	err := a.db.QueryRow(query, table).Scan(&count)
	if err != nil {
		return 0, &MetadataError{Table: table, Err: err}
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}

// SampleColumnValues 采样非空列值
func (a *SQLServerAdapter) SampleColumnValues(table, column string, sampleSize int) ([]string, error) {
	query := fmt.Sprintf("SELECT TOP %d [%s] FROM [%s] WHERE [%s] IS NOT NULL ORDER BY NEWID()",
		sampleSize, column, table, column)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// DistinctValues 获取去重值（有上限）
func (a *SQLServerAdapter) DistinctValues(table, column string, limit int) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT TOP %d [%s] FROM [%s] WHERE [%s] IS NOT NULL",
		limit, column, table, column)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// FilterExisting 返回在目标列中真实存在的取值子集（分块半连接）
func (a *SQLServerAdapter) FilterExisting(table, column string, values []string) ([]string, error) {
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
			placeholders[i] = fmt.Sprintf("@p%d", i+1)
			args[i] = v
		}
		query := fmt.Sprintf("SELECT DISTINCT [%s] FROM [%s] WHERE [%s] IN (%s)",
			column, table, column, strings.Join(placeholders, ","))

		part, err := a.queryStrings(query, args...)
		if err != nil {
			return nil, &SamplingError{Table: table, Column: column, Err: err}
		}
		existing = append(existing, part...)
	}
	return existing, nil
}

func (a *SQLServerAdapter) queryStrings(query string, args ...interface{}) ([]string, error) {
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
func (a *SQLServerAdapter) Close() error {
	return a.db.Close()
}
