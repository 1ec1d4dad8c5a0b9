package adapter

// DBAdapter 数据库适配器接口
type DBAdapter interface {
	// IntrospectSchema 获取元数据（只读）
	IntrospectSchema() (*SchemaMetadata, error)

	// EstimateRowCount 估算行数
	EstimateRowCount(table string) (int64, error)

	// SampleColumnValues 采样非空列值（有界随机采样）
	SampleColumnValues(table, column string, sampleSize int) ([]string, error)

	// DistinctValues 获取列的非空去重值（有上限，用于空表探测等）
	DistinctValues(table, column string, limit int) ([]string, error)

	// FilterExisting 返回给定取值中真实存在于该列的子集。
	// 分块 IN 查询实现半连接，查询成本随取值数量走，与目标表规模无关
	FilterExisting(table, column string, values []string) ([]string, error)

	// Close 关闭连接
	Close() error
}

// filterChunkSize FilterExisting 单次 IN 查询携带的取值上限
const filterChunkSize = 500

// SchemaMetadata 元数据
type SchemaMetadata struct {
	Tables []Table
	// Skipped 元数据不可读而被跳过的表（跳过并继续，不中断整轮分析）
	Skipped []SkippedTable
}

// SkippedTable 被跳过的表
type SkippedTable struct {
	Name   string
	Reason string
}

// Table 表信息。一次内省生成后不再修改
type Table struct {
	Schema  string
	Name    string
	Columns []Column
	// PrimaryKey 显式声明的主键列（可能为复合主键，可能为空）
	PrimaryKey []string
	// ForeignKeys 显式声明的外键约束（可能为空）
	ForeignKeys []ForeignKey
}

// Column 列信息
type Column struct {
	Name            string
	DataType        string
	Length          int
	Nullable        bool
	IsUnique        bool
	IsAutoIncrement bool
	IsPrimaryKey    bool
}

// ForeignKey 声明的外键
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// DeclaredForeignKey 查找列上声明的外键约束
func (t Table) DeclaredForeignKey(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.FromColumn == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Column 按名称查找列
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
