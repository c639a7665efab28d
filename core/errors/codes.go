package errors

// ErrCode 业务错误码类型
type ErrCode int

const (
	// 通用错误 1000-1999
	ErrInvalidParameter ErrCode = 1001 // 参数错误
	ErrInternalError    ErrCode = 1003 // 内部错误
	ErrNotFound         ErrCode = 1004 // 资源未找到
	ErrOperationFailed  ErrCode = 1006 // 操作失败

	// 模型相关 2000-2999
	ErrModelConfigInvalid   ErrCode = 2002 // 模型配置无效
	ErrEmbeddingFailed      ErrCode = 2003 // Embedding失败
	ErrModelNotConfigured   ErrCode = 2005 // 模型未配置
	ErrEmbeddingUnavailable ErrCode = 2008 // Embedding能力不可用

	// 文档相关 4000-4999
	ErrDocumentParseFailed ErrCode = 4002 // 文档解析失败
	ErrFileReadFailed      ErrCode = 4007 // 文件读取失败
	ErrIndexingFailed      ErrCode = 4009 // 索引失败
	ErrUnsupportedFileType ErrCode = 4010 // 不支持的文件类型
	ErrObjectSyncFailed    ErrCode = 4011 // 对象存储同步失败

	// 向量数据库 5000-5999
	ErrVectorStoreInit     ErrCode = 5001 // 向量库初始化失败
	ErrVectorSearch        ErrCode = 5002 // 向量搜索失败
	ErrVectorInsert        ErrCode = 5003 // 向量插入失败
	ErrVectorDelete        ErrCode = 5004 // 向量删除失败
	ErrVectorStoreNotFound ErrCode = 5005 // 向量库不存在
	ErrIndexModelMismatch  ErrCode = 5006 // 索引与当前embedding模型不一致

	// 检索相关 9000-9999
	ErrRetrievalFailed ErrCode = 9001 // 检索失败
)

// Category 返回错误码所属的分类名
func (e ErrCode) Category() string {
	switch {
	case e >= 1000 && e <= 1999:
		return "general"
	case e >= 2000 && e <= 2999:
		return "embedding"
	case e >= 4000 && e <= 4999:
		return "document"
	case e >= 5000 && e <= 5999:
		return "vector_store"
	case e >= 9000 && e <= 9999:
		return "retrieval"
	default:
		return "unknown"
	}
}

// Retryable 判断该类错误是否值得重试
// 只有远端调用类的失败才重试，参数和配置错误重试没有意义
func (e ErrCode) Retryable() bool {
	switch e {
	case ErrEmbeddingFailed, ErrVectorSearch, ErrVectorInsert, ErrObjectSyncFailed:
		return true
	default:
		return false
	}
}
