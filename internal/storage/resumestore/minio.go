package resumestore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gofrs/uuid/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"job-portal-go/internal/config"
	"job-portal-go/internal/logger"
)

// MinIOStore 对象存储后端，简历写入专用存储桶
type MinIOStore struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
}

// 确保MinIOStore实现了Store接口
var _ Store = (*MinIOStore)(nil)

// NewMinIOStore 创建MinIO后端并确保存储桶存在
func NewMinIOStore(cfg *config.MinIOConfig) (*MinIOStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ResumesBucket
	if bucket == "" {
		bucket = "portal-resumes"
	}

	m := &MinIOStore{client: client, cfg: cfg, bucket: bucket}
	if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", bucket, err)
	}

	if cfg.ResumeExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("设置简历存储桶生命周期规则失败")
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO简历存储已初始化")
	return m, nil
}

func (m *MinIOStore) ensureBucketExists(bucket, location string) error {
	ctx := context.Background()
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶是否存在失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	return nil
}

func (m *MinIOStore) setupLifecycleRules(ctx context.Context) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-resumes",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(m.cfg.ResumeExpireDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, lc)
}

// Stage 将简历上传到暂存对象
// PutObject 需要已知大小，简历体量小，先读入内存
func (m *MinIOStore) Stage(ctx context.Context, r io.Reader) (Staged, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成暂存对象名失败: %w", err)
	}
	stagingKey := fmt.Sprintf(".staging/%s.pdf", id.String())

	_, err = m.client.PutObject(ctx, m.bucket, stagingKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	return &minioStaged{store: m, stagingKey: stagingKey}, nil
}

type minioStaged struct {
	store      *MinIOStore
	stagingKey string
}

// Commit 将暂存对象复制到最终路径并删除暂存对象
func (s *minioStaged) Commit(ctx context.Context, finalKey string) error {
	src := minio.CopySrcOptions{Bucket: s.store.bucket, Object: s.stagingKey}
	dst := minio.CopyDestOptions{Bucket: s.store.bucket, Object: finalKey}
	if _, err := s.store.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFile, err)
	}
	if err := s.store.client.RemoveObject(ctx, s.store.bucket, s.stagingKey, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn().Err(err).Str("key", s.stagingKey).Msg("删除暂存简历对象失败")
	}
	return nil
}

// Discard 删除暂存对象
func (s *minioStaged) Discard(ctx context.Context) {
	if err := s.store.client.RemoveObject(ctx, s.store.bucket, s.stagingKey, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn().Err(err).Str("key", s.stagingKey).Msg("清理暂存简历对象失败")
	}
}
