package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"
)

// GuidelineCollectionSchema 指南分块在 Milvus 中的存储结构
type GuidelineCollectionSchema struct {
	// Id 分块唯一ID（主键）
	Id string `milvus:"id,varchar,256,primary_key"`

	// Text 分块正文
	Text string `milvus:"text,varchar,65535"`

	// Vector 分块向量，维度在建集合时确定
	Vector []float32 `milvus:"vector,float_vector"`

	// Metadata 来源文件、专科、页码等元数据
	Metadata string `milvus:"metadata,json"`
}

// GetFields 返回指定维度的字段定义
func (GuidelineCollectionSchema) GetFields(dim int) []*entity.Field {
	return []*entity.Field{
		{
			Name:        "id",
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": "256"},
			PrimaryKey:  true,
			AutoID:      false,
			Description: "Guideline chunk ID (primary key)",
		},
		{
			Name:        "text",
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": "65535"},
			Description: "Guideline chunk content",
		},
		{
			Name:        "vector",
			DataType:    entity.FieldTypeFloatVector,
			TypeParams:  map[string]string{"dim": strconv.Itoa(dim)},
			Description: "Guideline chunk embedding vector",
		},
		{
			Name:        "metadata",
			DataType:    entity.FieldTypeJSON,
			Description: "Source file, specialty and page (JSON)",
		},
	}
}

// GetGuidelineFields 便捷方法
func GetGuidelineFields(dim int) []*entity.Field {
	return GuidelineCollectionSchema{}.GetFields(dim)
}
