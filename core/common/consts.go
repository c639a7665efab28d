package common

// 文档与分块上的元数据键
const (
	MetaSourceFile = "source_file"
	MetaSpecialty  = "specialty"
	MetaPage       = "page"
	MetaFilePath   = "file_path"
	MetaChunkIndex = "chunk_index"

	// eino file loader 写入的元数据
	MetaFileName  = "_file_name"
	MetaExtension = "_extension"
	MetaSource    = "_source"
)

// 向量库字段名
const (
	FieldID       = "id"
	FieldContent  = "text"
	FieldVector   = "vector"
	FieldMetadata = "metadata"
)

const (
	ExtPDF = ".pdf"
	ExtTXT = ".txt"
)

const (
	UnknownSource = "Unknown"
	PageNotFound  = "N/A"
)
