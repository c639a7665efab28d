package pgvector

import (
	"fmt"
	"strings"
)

// GuidelineTableSchema 指南分块在 PostgreSQL(pgvector) 中的表结构
type GuidelineTableSchema struct {
	Id        string    `pg:"id,varchar(255),primary_key"`
	Text      string    `pg:"text,text"`
	Vector    []float32 `pg:"vector,vector"`
	Metadata  string    `pg:"metadata,jsonb"`
	CreatedAt string    `pg:"created_at,timestamp"`
}

// FieldDefinition 单个字段定义
type FieldDefinition struct {
	Name        string
	Type        string
	Nullable    bool
	Default     string
	PrimaryKey  bool
	Description string
}

// IndexDefinition 索引定义
type IndexDefinition struct {
	Name        string
	Expression  string // 字段或表达式
	IndexType   string // btree / hnsw
	IndexOps    string // 如 vector_cosine_ops，btree 为空
	Description string
}

// GetFields 返回指定维度的字段定义
func (GuidelineTableSchema) GetFields(dim int) []FieldDefinition {
	return []FieldDefinition{
		{
			Name:        "id",
			Type:        "VARCHAR(255)",
			PrimaryKey:  true,
			Description: "Guideline chunk ID (primary key)",
		},
		{
			Name:        "text",
			Type:        "TEXT",
			Description: "Guideline chunk content",
		},
		{
			Name:        "vector",
			Type:        fmt.Sprintf("vector(%d)", dim),
			Description: "Guideline chunk embedding vector",
		},
		{
			Name:        "metadata",
			Type:        "JSONB",
			Default:     "'{}'::jsonb",
			Description: "Source file, specialty and page (JSONB)",
		},
		{
			Name:        "created_at",
			Type:        "TIMESTAMP",
			Default:     "NOW()",
			Description: "Creation timestamp",
		},
	}
}

// GetIndexes 返回表上的索引定义
func (GuidelineTableSchema) GetIndexes(tableName string) []IndexDefinition {
	return []IndexDefinition{
		{
			Name:        fmt.Sprintf("%s_vector_idx", tableName),
			Expression:  "vector",
			IndexType:   "hnsw",
			IndexOps:    "vector_cosine_ops",
			Description: "HNSW index for cosine similarity search",
		},
		{
			Name:        fmt.Sprintf("%s_specialty_idx", tableName),
			Expression:  "(metadata->>'specialty')",
			IndexType:   "btree",
			Description: "B-tree index for specialty filtering",
		},
	}
}

// GenerateCreateTableSQL 生成建表语句
func (t GuidelineTableSchema) GenerateCreateTableSQL(schemaName, tableName string, dim int) string {
	fields := t.GetFields(dim)

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s.%s (\n", schemaName, tableName)
	for i, field := range fields {
		fmt.Fprintf(&sb, "    %s %s", field.Name, field.Type)
		if field.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		} else if !field.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if field.Default != "" && !field.PrimaryKey {
			fmt.Fprintf(&sb, " DEFAULT %s", field.Default)
		}
		if i < len(fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(")")
	return sb.String()
}

// GenerateCreateIndexSQL 生成建索引语句
func (t GuidelineTableSchema) GenerateCreateIndexSQL(schemaName, tableName string) []string {
	indexes := t.GetIndexes(tableName)
	sqls := make([]string, len(indexes))
	for i, idx := range indexes {
		if idx.IndexOps != "" {
			sqls[i] = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s.%s USING %s (%s %s)",
				idx.Name, schemaName, tableName, idx.IndexType, idx.Expression, idx.IndexOps)
		} else {
			sqls[i] = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s.%s (%s)",
				idx.Name, schemaName, tableName, idx.Expression)
		}
	}
	return sqls
}
