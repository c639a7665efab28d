package vector_store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/errors"
	pgvectorModel "github.com/Malowking/guidekb/internal/model/pgvector"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	postgresSchema    = "vectors"
	postgresMetaTable = "index_meta"
)

// PostgresStore PostgreSQL(pgvector) 向量数据库实现
// 索引信息保存在 vectors.index_meta 表中，以表名为主键
type PostgresStore struct {
	pool     *pgxpool.Pool
	database string
	schema   string
	table    string
}

// NewPostgresStore 创建PostgreSQL向量存储实例
func NewPostgresStore(config *VectorStoreConfig) (*PostgresStore, error) {
	if config == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "config cannot be nil")
	}

	pool, ok := config.Client.(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "client must be *pgxpool.Pool")
	}

	table := common.SanitizeTableName(config.Collection)
	if table == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "table name cannot be empty")
	}

	return &PostgresStore{
		pool:     pool,
		database: config.Database,
		schema:   postgresSchema,
		table:    strings.ToLower(table),
	}, nil
}

func (p *PostgresStore) fullTableName() string {
	return fmt.Sprintf("%s.%s", p.schema, p.table)
}

func (p *PostgresStore) metaTableName() string {
	return fmt.Sprintf("%s.%s", p.schema, postgresMetaTable)
}

// Exists 表和索引信息都存在才算存在
func (p *PostgresStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)",
		p.schema, p.table).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(errors.ErrVectorStoreInit, err, "check table %s", p.fullTableName())
	}
	if !exists {
		return false, nil
	}

	_, err = p.readInfo(ctx)
	if err != nil {
		if errors.HasCode(err, errors.ErrVectorStoreNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ensureSchema 确保 pgvector 扩展、schema 与索引信息表存在
func (p *PostgresStore) ensureSchema(ctx context.Context, tx pgx.Tx) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", p.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name VARCHAR(255) PRIMARY KEY,
    info JSONB NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
)`, p.metaTableName()),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(errors.ErrVectorStoreInit, err, "prepare schema %s", p.schema)
		}
	}
	return nil
}

// Replace 在一个事务内重建表、写入全部条目并更新索引信息
func (p *PostgresStore) Replace(ctx context.Context, info IndexInfo, entries []Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := p.ensureSchema(ctx, tx); err != nil {
		return err
	}

	tableSchema := pgvectorModel.GuidelineTableSchema{}
	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", p.fullTableName())); err != nil {
		return errors.Wrapf(errors.ErrVectorDelete, err, "drop table %s", p.fullTableName())
	}
	if _, err := tx.Exec(ctx, tableSchema.GenerateCreateTableSQL(p.schema, p.table, info.Dimension)); err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "create table %s", p.fullTableName())
	}
	for _, indexSQL := range tableSchema.GenerateCreateIndexSQL(p.schema, p.table) {
		if _, err := tx.Exec(ctx, indexSQL); err != nil {
			return errors.Wrapf(errors.ErrVectorStoreInit, err, "create index on %s", p.fullTableName())
		}
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (id, text, vector, metadata) VALUES ($1, $2, $3, $4)", p.fullTableName())
	for _, e := range entries {
		meta := e.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaBytes, err := sonic.Marshal(meta)
		if err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "marshal metadata of %s", e.ID)
		}
		if _, err := tx.Exec(ctx, insertSQL, e.ID, e.Text, pgvector.NewVector(e.Vector), metaBytes); err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "insert chunk %s", e.ID)
		}
	}

	infoBytes, err := sonic.Marshal(info)
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "marshal index info")
	}
	upsertSQL := fmt.Sprintf(`INSERT INTO %s (name, info, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET info = EXCLUDED.info, updated_at = NOW()`, p.metaTableName())
	if _, err := tx.Exec(ctx, upsertSQL, p.table, infoBytes); err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "save index info")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "commit transaction")
	}

	g.Log().Infof(ctx, "Table '%s' rebuilt with %d entries", p.fullTableName(), len(entries))
	return nil
}

func (p *PostgresStore) readInfo(ctx context.Context) (IndexInfo, error) {
	var infoBytes []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT info FROM %s WHERE name = $1", p.metaTableName()), p.table).Scan(&infoBytes)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) || strings.Contains(err.Error(), "does not exist") {
			return IndexInfo{}, errors.Newf(errors.ErrVectorStoreNotFound, "no index info for %s", p.fullTableName())
		}
		return IndexInfo{}, errors.Wrap(errors.ErrVectorStoreInit, err, "read index info")
	}

	var info IndexInfo
	if err := sonic.Unmarshal(infoBytes, &info); err != nil {
		return IndexInfo{}, errors.Wrap(errors.ErrVectorStoreInit, err, "parse index info")
	}
	return info, nil
}

// Open 读取索引信息
func (p *PostgresStore) Open(ctx context.Context) (IndexInfo, error) {
	exists, err := p.Exists(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	if !exists {
		return IndexInfo{}, errors.Newf(errors.ErrVectorStoreNotFound, "table '%s' not found", p.fullTableName())
	}
	return p.readInfo(ctx)
}

// Search 余弦距离检索，filter 转换为 metadata->>'k' = $n 条件
func (p *PostgresStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	where, filterArgs := postgresFilterClause(filter, 3)
	searchSQL := fmt.Sprintf(`
		SELECT id, text, metadata, 1 - (vector <=> $1) AS similarity_score
		FROM %s
		%s
		ORDER BY vector <=> $1
		LIMIT $2
	`, p.fullTableName(), where)

	args := append([]any{pgvector.NewVector(vector), topK}, filterArgs...)
	rows, err := p.pool.Query(ctx, searchSQL, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorSearch, err, "search table %s", p.fullTableName())
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		var (
			id, text      string
			metadataBytes []byte
			score         float64
		)
		if err := rows.Scan(&id, &text, &metadataBytes, &score); err != nil {
			return nil, errors.Wrap(errors.ErrVectorSearch, err, "scan row")
		}

		hit := SearchResult{
			Entry: Entry{ID: id, Text: text, Metadata: map[string]any{}},
			Score: float32(score),
		}
		if len(metadataBytes) > 0 {
			if err := sonic.Unmarshal(metadataBytes, &hit.Metadata); err != nil {
				return nil, errors.Wrapf(errors.ErrVectorSearch, err, "parse metadata of %s", id)
			}
		}
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "iterate rows")
	}
	return results, nil
}

// postgresFilterClause 生成 WHERE 子句，占位符从 first 开始编号
func postgresFilterClause(filter Filter, first int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		// 键直接写入 SQL 才能命中 metadata->>'specialty' 表达式索引
		conds = append(conds, fmt.Sprintf("metadata->>'%s' = $%d", strings.ReplaceAll(k, "'", "''"), first+i))
		args = append(args, filter[k])
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Drop 删除表和索引信息
func (p *PostgresStore) Drop(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", p.fullTableName())); err != nil {
		return errors.Wrapf(errors.ErrVectorDelete, err, "drop table %s", p.fullTableName())
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = $1", p.metaTableName()), p.table)
	if err != nil && !strings.Contains(err.Error(), "does not exist") {
		return errors.Wrap(errors.ErrVectorDelete, err, "delete index info")
	}
	return nil
}

// Close 关闭连接池
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
