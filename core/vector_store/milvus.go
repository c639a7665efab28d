package vector_store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/errors"
	milvusModel "github.com/Malowking/guidekb/internal/model/milvus"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// milvusInsertBatch 单次插入的最大行数
const milvusInsertBatch = 500

// MilvusStore Milvus 向量数据库实现
// 索引信息以 JSON 形式保存在集合的 Description 中
type MilvusStore struct {
	client     *milvusclient.Client
	database   string
	collection string
}

// NewMilvusStore 创建Milvus向量存储实例
func NewMilvusStore(config *VectorStoreConfig) (*MilvusStore, error) {
	if config == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "config cannot be nil")
	}

	client, ok := config.Client.(*milvusclient.Client)
	if !ok || client == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "client must be *milvusclient.Client")
	}

	if !common.ValidateCollectionName(config.Collection) {
		return nil, errors.Newf(errors.ErrInvalidParameter, "invalid collection name: %q", config.Collection)
	}

	return &MilvusStore{
		client:     client,
		database:   config.Database,
		collection: config.Collection,
	}, nil
}

// Exists 检查集合是否存在
func (m *MilvusStore) Exists(ctx context.Context) (bool, error) {
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return false, errors.Wrapf(errors.ErrVectorStoreInit, err, "check collection %s", m.collection)
	}
	return has, nil
}

// Replace 删除旧集合后重新建集合并分批插入
func (m *MilvusStore) Replace(ctx context.Context, info IndexInfo, entries []Entry) (err error) {
	if err = m.Drop(ctx); err != nil {
		return err
	}

	desc, err := sonic.MarshalString(info)
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "marshal index info")
	}

	schema := &entity.Schema{
		CollectionName: m.collection,
		Description:    desc,
		AutoID:         false,
		Fields:         milvusModel.GetGuidelineFields(info.Dimension),
	}

	err = m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema).WithIndexOptions(
		milvusclient.NewCreateIndexOption(m.collection, common.FieldVector, index.NewHNSWIndex(entity.COSINE, 16, 200))))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "create collection %s", m.collection)
	}

	defer func() {
		if err != nil {
			if dropErr := m.Drop(ctx); dropErr != nil {
				g.Log().Warningf(ctx, "failed to drop partial collection %s: %v", m.collection, dropErr)
			}
		}
	}()

	for start := 0; start < len(entries); start += milvusInsertBatch {
		end := min(start+milvusInsertBatch, len(entries))
		if err = m.insert(ctx, info.Dimension, entries[start:end]); err != nil {
			return err
		}
	}

	if _, err = m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection)); err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "load collection %s", m.collection)
	}

	g.Log().Infof(ctx, "Milvus collection '%s' rebuilt with %d entries", m.collection, len(entries))
	return nil
}

func (m *MilvusStore) insert(ctx context.Context, dim int, entries []Entry) error {
	ids := make([]string, len(entries))
	texts := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	metas := make([][]byte, len(entries))

	for i, e := range entries {
		ids[i] = e.ID
		texts[i] = common.TruncateRunes(e.Text, 16000)
		vectors[i] = e.Vector

		meta := e.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		data, err := sonic.Marshal(meta)
		if err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "marshal metadata of %s", e.ID)
		}
		metas[i] = data
	}

	result, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection,
		column.NewColumnVarChar(common.FieldID, ids),
		column.NewColumnVarChar(common.FieldContent, texts),
		column.NewColumnFloatVector(common.FieldVector, dim, vectors),
		column.NewColumnJSONBytes(common.FieldMetadata, metas),
	))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "insert into %s", m.collection)
	}

	g.Log().Debugf(ctx, "Inserted %d vectors into collection '%s'", result.InsertCount, m.collection)
	return nil
}

// Open 读取集合描述中的索引信息并确保集合已加载
func (m *MilvusStore) Open(ctx context.Context) (IndexInfo, error) {
	exists, err := m.Exists(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	if !exists {
		return IndexInfo{}, errors.Newf(errors.ErrVectorStoreNotFound, "collection '%s' not found", m.collection)
	}

	collection, err := m.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(m.collection))
	if err != nil {
		return IndexInfo{}, errors.Wrapf(errors.ErrVectorStoreInit, err, "describe collection %s", m.collection)
	}

	var info IndexInfo
	if err := sonic.UnmarshalString(collection.Schema.Description, &info); err != nil || info.Model == "" {
		return IndexInfo{}, errors.Newf(errors.ErrVectorStoreNotFound, "collection '%s' carries no index info", m.collection)
	}

	if !collection.Loaded {
		if _, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection)); err != nil {
			return IndexInfo{}, errors.Wrapf(errors.ErrVectorStoreInit, err, "load collection %s", m.collection)
		}
	}
	return info, nil
}

// Search 向量检索，filter 转换为 JSON 字段上的过滤表达式
func (m *MilvusStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	searchOpt := milvusclient.NewSearchOption(m.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(common.FieldVector).
		WithOutputFields(common.FieldID, common.FieldContent, common.FieldMetadata).
		WithConsistencyLevel(entity.ClStrong)

	if expr := milvusFilterExpr(filter); expr != "" {
		searchOpt = searchOpt.WithFilter(expr)
	}

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorSearch, err, "search collection %s", m.collection)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}
	return convertMilvusColumns(results[0].Fields, results[0].Scores)
}

// milvusFilterExpr 生成 metadata["k"] == "v" 形式的过滤表达式，键按字典序排列
func milvusFilterExpr(filter Filter) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s["%s"] == "%s"`,
			common.FieldMetadata, common.SanitizeMilvusString(k), common.SanitizeMilvusString(filter[k])))
	}
	return strings.Join(parts, " and ")
}

func convertMilvusColumns(columns []column.Column, scores []float32) ([]SearchResult, error) {
	results := make([]SearchResult, len(scores))
	for i := range results {
		results[i].Score = scores[i]
		results[i].Metadata = map[string]any{}
	}

	for _, col := range columns {
		n := min(col.Len(), len(results))
		for i := 0; i < n; i++ {
			val, err := col.Get(i)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrVectorSearch, err, "read column %s", col.Name())
			}
			switch col.Name() {
			case common.FieldID:
				results[i].ID, _ = val.(string)
			case common.FieldContent:
				results[i].Text, _ = val.(string)
			case common.FieldMetadata:
				var raw []byte
				switch v := val.(type) {
				case string:
					raw = []byte(v)
				case []byte:
					raw = v
				}
				if len(raw) > 0 {
					if err := sonic.Unmarshal(raw, &results[i].Metadata); err != nil {
						return nil, errors.Wrapf(errors.ErrVectorSearch, err, "parse metadata of row %d", i)
					}
				}
			}
		}
	}
	return results, nil
}

// Drop 删除集合，集合不存在时直接返回
func (m *MilvusStore) Drop(ctx context.Context) error {
	exists, err := m.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.collection)); err != nil {
		return errors.Wrapf(errors.ErrVectorDelete, err, "drop collection %s", m.collection)
	}
	g.Log().Infof(ctx, "Dropped Milvus collection '%s'", m.collection)
	return nil
}

// Close 关闭客户端连接
func (m *MilvusStore) Close() error {
	return m.client.Close(context.Background())
}
