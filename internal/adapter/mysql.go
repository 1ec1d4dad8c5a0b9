package adapter

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL 适配器
type MySQLAdapter struct {
	db     *sql.DB
	schema string
}

// NewMySQLAdapter 创建 MySQL 适配器
func NewMySQLAdapter(connStr, schema string) (*MySQLAdapter, error) {
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, &ConnectivityError{Driver: "mysql", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &ConnectivityError{Driver: "mysql", Err: err}
	}
	return &MySQLAdapter{db: db, schema: schema}, nil
}

// IntrospectSchema 获取元数据
func (a *MySQLAdapter) IntrospectSchema() (*SchemaMetadata, error) {
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

	// 单表失败只跳过该表，其余照常分析
	for i := range tables {
		columns, err := a.getColumns(tables[i].Name)
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

func (a *MySQLAdapter) getTables() ([]Table, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
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

func (a *MySQLAdapter) getColumns(table string) ([]Column, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			COALESCE(CHARACTER_MAXIMUM_LENGTH, 0),
			IS_NULLABLE = 'YES',
			COLUMN_KEY = 'PRI',
			COLUMN_KEY = 'UNI',
			EXTRA LIKE '%auto_increment%'
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := a.db.Query(query, a.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &c.Nullable,
			&c.IsPrimaryKey, &c.IsUnique, &c.IsAutoIncrement); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// getUniqueColumns 单列唯一索引覆盖的列
func (a *MySQLAdapter) getUniqueColumns() (map[string]bool, error) {
	query := `
		SELECT TABLE_NAME, INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND NON_UNIQUE = 0
		ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX
	`
	rows, err := a.db.Query(query, a.schema)
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
		// 复合唯一索引不能证明单列唯一
		if len(cols) == 1 {
			unique[cols[0]] = true
		}
	}
	return unique, rows.Err()
}

func (a *MySQLAdapter) getForeignKeys() ([]ForeignKey, error) {
	query := `
		SELECT
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		WHERE kcu.TABLE_SCHEMA = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
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

// EstimateRowCount 估算行数
func (a *MySQLAdapter) EstimateRowCount(table string) (int64, error) {
	query := `
		SELECT TABLE_ROWS
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`
	var count sql.NullInt64
	err := a.db.QueryRow(query, a.schema, table).Scan(&count)
	if err != nil {
		return 0, &MetadataError{Table: table, Err: err}
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}

// SampleColumnValues 采样非空列值
func (a *MySQLAdapter) SampleColumnValues(table, column string, sampleSize int) ([]string, error) {
	query := fmt.Sprintf("SELECT `%s` FROM `%s` WHERE `%s` IS NOT NULL ORDER BY RAND() LIMIT %d",
		column, table, column, sampleSize)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// DistinctValues 获取去重值（有上限）
func (a *MySQLAdapter) DistinctValues(table, column string, limit int) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT `%s` FROM `%s` WHERE `%s` IS NOT NULL LIMIT %d",
		column, table, column, limit)
	values, err := a.queryStrings(query)
	if err != nil {
		return nil, &SamplingError{Table: table, Column: column, Err: err}
	}
	return values, nil
}

// FilterExisting 返回在目标列中真实存在的取值子集（分块半连接）
func (a *MySQLAdapter) FilterExisting(table, column string, values []string) ([]string, error) {
	var existing []string
	for start := 0; start < len(values); start += filterChunkSize {
		end := start + filterChunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf("SELECT DISTINCT `%s` FROM `%s` WHERE `%s` IN (%s)",
			column, table, column, placeholders)
		args := make([]interface{}, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		part, err := a.queryStrings(query, args...)
		if err != nil {
			return nil, &SamplingError{Table: table, Column: column, Err: err}
		}
		existing = append(existing, part...)
	}
	return existing, nil
}

func (a *MySQLAdapter) queryStrings(query string, args ...interface{}) ([]string, error) {
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
func (a *MySQLAdapter) Close() error {
	return a.db.Close()
}
