package vector_store

import (
	"context"

	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// NewVectorStore 根据配置创建向量存储实例
func NewVectorStore(config *VectorStoreConfig) (VectorStore, error) {
	if config == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "config cannot be nil")
	}

	switch config.Type {
	case VectorStoreTypeLocal:
		return NewLocalStore(config)
	case VectorStoreTypeMilvus:
		return NewMilvusStore(config)
	case VectorStoreTypePostgreSQL:
		return NewPostgresStore(config)
	default:
		return nil, errors.Newf(errors.ErrInvalidParameter, "unsupported vector store type: %s", config.Type)
	}
}

// InitializeVectorStore 按应用配置建立客户端并创建向量存储
func InitializeVectorStore(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	storeType := VectorStoreType(cfg.VectorStore.Type)
	switch storeType {
	case VectorStoreTypeLocal:
		return NewVectorStore(&VectorStoreConfig{
			Type: storeType,
			Path: cfg.Guidelines.IndexPath,
		})

	case VectorStoreTypeMilvus:
		g.Log().Infof(ctx, "Connecting to Milvus at: %s, database: %s", cfg.Milvus.Address, cfg.Milvus.Database)
		client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
			Address:  cfg.Milvus.Address,
			DBName:   cfg.Milvus.Database,
			Username: cfg.Milvus.Username,
			Password: cfg.Milvus.Password,
		})
		if err != nil {
			return nil, errors.Wrapf(errors.ErrVectorStoreInit, err, "connect milvus at %s", cfg.Milvus.Address)
		}
		store, err := NewVectorStore(&VectorStoreConfig{
			Type:       storeType,
			Client:     client,
			Database:   cfg.Milvus.Database,
			Collection: cfg.VectorStore.Collection,
		})
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return store, nil

	case VectorStoreTypePostgreSQL:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "create postgres connection pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "ping postgres")
		}
		store, err := NewVectorStore(&VectorStoreConfig{
			Type:       storeType,
			Client:     pool,
			Database:   pool.Config().ConnConfig.Database,
			Collection: cfg.VectorStore.Collection,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, errors.Newf(errors.ErrInvalidParameter, "unsupported vector store type: %s", cfg.VectorStore.Type)
	}
}
