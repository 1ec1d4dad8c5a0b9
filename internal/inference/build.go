package inference

import (
	"sort"
	"strings"

	"relation-mapper/internal/adapter"
	"relation-mapper/internal/graph"
)

// BuildGraph 把验证结果聚合为关系图。
// 纯投影，无副作用：每表一个节点，每条入图关系一条边。
// 没有任何关系的表也保留节点，has_relationships 为 false
func BuildGraph(tables []adapter.Table, rels []Relationship, unmatched []UnmatchedColumn, descriptions map[string]string) *graph.Graph {
	sorted := make([]adapter.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	// 键形字段清单：候选来源列 + 声明外键列 + 未命中的疑似键列
	fkCols := make(map[string]map[string]bool, len(sorted))
	for _, t := range sorted {
		fkCols[t.Name] = make(map[string]bool)
		for _, fk := range t.ForeignKeys {
			fkCols[t.Name][fk.FromColumn] = true
		}
	}
	for _, rel := range rels {
		if cols, ok := fkCols[rel.SourceTable]; ok {
			cols[rel.SourceColumn] = true
		}
	}
	for _, uc := range unmatched {
		if cols, ok := fkCols[uc.Table]; ok {
			cols[uc.Column] = true
		}
	}

	related := make(map[string]bool)
	// 没有任何入图关系时也要输出 []，消费方不处理 null
	links := make([]graph.Link, 0)
	for _, rel := range rels {
		if !rel.UsedInGraph {
			continue
		}
		related[rel.SourceTable] = true
		related[rel.TargetTable] = true
		links = append(links, graph.Link{
			Source:      rel.SourceTable,
			Target:      rel.TargetTable,
			SourceField: rel.SourceColumn,
			TargetField: rel.TargetColumn,
		})
	}

	nodes := make([]graph.Node, 0, len(sorted))
	for _, t := range sorted {
		// 主键列本身不算外键字段
		pk := primaryKeyLabel(t)
		fks := make([]string, 0, len(fkCols[t.Name]))
		for _, col := range t.Columns {
			if col.Name == pk {
				continue
			}
			if fkCols[t.Name][col.Name] {
				fks = append(fks, col.Name)
			}
		}

		nodes = append(nodes, graph.Node{
			ID:               t.Name,
			Description:      descriptions[t.Name],
			Fields:           graph.Fields{PK: pk, FKs: fks},
			HasRelationships: related[t.Name],
		})
	}

	return &graph.Graph{Nodes: nodes, Links: links}
}

// primaryKeyLabel 节点展示用的主键文案（复合主键用逗号连接）
func primaryKeyLabel(t adapter.Table) string {
	if len(t.PrimaryKey) > 0 {
		return strings.Join(t.PrimaryKey, ",")
	}
	if pk, ok := EffectivePrimaryKey(t); ok {
		return pk
	}
	return ""
}
