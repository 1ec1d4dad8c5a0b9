package renderer

import (
	"fmt"
	"strings"

	"relation-mapper/internal/graph"
)

// MermaidRenderer Mermaid 关系图渲染器
type MermaidRenderer struct{}

// NewMermaidRenderer 创建渲染器
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Render 渲染为 Mermaid classDiagram：
// 每表一个带 PK/FK 注记的类框，入图关系画成虚线边
func (m *MermaidRenderer) Render(g *graph.Graph) string {
	var sb strings.Builder

	sb.WriteString("classDiagram\n")

	for _, node := range g.Nodes {
		sb.WriteString(fmt.Sprintf("    class %s {\n", node.ID))
		if node.Fields.PK != "" {
			sb.WriteString(fmt.Sprintf("        PK %s\n", node.Fields.PK))
		}
		for _, fk := range node.Fields.FKs {
			sb.WriteString(fmt.Sprintf("        FK %s\n", fk))
		}
		sb.WriteString("    }\n")
	}

	sb.WriteString("\n")
	for _, link := range g.Links {
		sb.WriteString(fmt.Sprintf("    %s ..> %s : %s → %s\n",
			link.Source, link.Target, link.SourceField, link.TargetField))
	}

	return sb.String()
}
