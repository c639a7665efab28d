package file_store

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SyncReport 一次同步的统计
type SyncReport struct {
	Listed     int // 前缀下符合条件的对象数
	Downloaded int
	Unchanged  int // 本地已是最新，未下载
	Failed     int
}

// ObjectSyncer 把对象存储中的指南文件同步到本地指南目录
type ObjectSyncer struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSyncer 创建对象存储同步器
func NewObjectSyncer(cfg config.ObjectStoreConfig) (*ObjectSyncer, error) {
	if !cfg.Enabled() {
		return nil, errors.New(errors.ErrInvalidParameter, "object store endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.SSL,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrObjectSyncFailed, err, "failed to create MinIO client")
	}
	return &ObjectSyncer{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// SyncGuidelines 未配置对象存储时直接返回空报告
func SyncGuidelines(ctx context.Context, cfg config.ObjectStoreConfig, dir string) (*SyncReport, error) {
	if !cfg.Enabled() {
		return &SyncReport{}, nil
	}
	syncer, err := NewObjectSyncer(cfg)
	if err != nil {
		return nil, err
	}
	return syncer.Sync(ctx, dir)
}

// Sync 下载前缀下全部 .pdf/.txt 对象，保留相对目录结构（专科由目录推断）
// 本地文件大小一致且不早于对象修改时间时跳过；单个对象失败不影响其余对象
func (s *ObjectSyncer) Sync(ctx context.Context, dir string) (*SyncReport, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrObjectSyncFailed, err, "check bucket %s", s.bucket)
	}
	if !exists {
		return nil, errors.Newf(errors.ErrObjectSyncFailed, "bucket '%s' does not exist", s.bucket)
	}

	report := &SyncReport{}
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return report, errors.Wrapf(errors.ErrObjectSyncFailed, object.Err, "list objects in %s", s.bucket)
		}

		localPath, ok := objectLocalPath(dir, s.prefix, object.Key)
		if !ok {
			continue
		}
		report.Listed++

		if st, err := os.Stat(localPath); err == nil && st.Size() == object.Size && !st.ModTime().Before(object.LastModified) {
			report.Unchanged++
			continue
		}

		if err := s.client.FGetObject(ctx, s.bucket, object.Key, localPath, minio.GetObjectOptions{}); err != nil {
			g.Log().Warningf(ctx, "Failed to download %s/%s: %v", s.bucket, object.Key, err)
			report.Failed++
			continue
		}
		report.Downloaded++
	}

	g.Log().Infof(ctx, "Synced guidelines from %s/%s: %d listed, %d downloaded, %d unchanged, %d failed",
		s.bucket, s.prefix, report.Listed, report.Downloaded, report.Unchanged, report.Failed)
	return report, nil
}

// objectLocalPath 对象键映射为本地路径，目录对象、越界路径与非指南文件返回 false
func objectLocalPath(dir, prefix, key string) (string, bool) {
	if strings.HasSuffix(key, "/") {
		return "", false
	}
	rel := strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
	if rel == "" {
		return "", false
	}
	rel = path.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if !common.IsGuidelineFile(rel) {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), true
}
