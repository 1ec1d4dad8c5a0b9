package graph

import "encoding/json"

// Graph 关系图。每轮分析从已验证关系重建，不做增量修改。
// 可视化层按原样消费，不得改写或重算其中的字段
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Node 表节点
type Node struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Fields      Fields `json:"fields"`
	// HasRelationships 至少被一条入图关系引用
	HasRelationships bool `json:"has_relationships"`
}

// Fields 节点展示用的键摘要
type Fields struct {
	PK  string   `json:"pk"`
	FKs []string `json:"fks"`
}

// Link 关系边（仅含达到入图阈值的关系）
type Link struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	SourceField string `json:"sourceField"`
	TargetField string `json:"targetField"`
}

// ToJSON 导出为JSON
func (g *Graph) ToJSON() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}
