package storage

import (
	"fmt"

	"job-portal-go/internal/config"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage/resumestore"
)

// Storage 聚合所有存储组件
// MySQL是硬依赖，初始化失败即启动失败；
// Redis和RabbitMQ缺失时降级运行（无去重快速通道/无事件投递），只记警告
type Storage struct {
	MySQL    *Registry
	Redis    *Redis
	RabbitMQ *RabbitMQ
	Resumes  resumestore.Store
}

// NewStorage 按配置初始化存储聚合
func NewStorage(cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}

	registry, err := NewRegistry(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL注册表失败: %w", err)
	}
	s.MySQL = registry

	redisAdapter, err := NewRedisAdapter(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis初始化失败，去重快速通道与状态缓存不可用")
	} else {
		s.Redis = redisAdapter
	}

	mq, err := NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		logger.Warn().Err(err).Msg("RabbitMQ初始化失败，投递事件暂存发件箱等待中继重试")
	} else {
		s.RabbitMQ = mq
		if err := mq.SetupApplicationEvents(); err != nil {
			logger.Warn().Err(err).Msg("声明投递事件拓扑失败")
		}
	}

	resumes, err := newResumeStore(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("初始化简历存储失败: %w", err)
	}
	s.Resumes = resumes

	return s, nil
}

// newResumeStore 按配置选择简历存储后端
func newResumeStore(cfg *config.Config) (resumestore.Store, error) {
	switch cfg.Uploads.Backend {
	case "", "local":
		return resumestore.NewLocal(cfg.Uploads.PublicRoot, cfg.Uploads.StagingDir)
	case "minio":
		return resumestore.NewMinIOStore(&cfg.MinIO)
	default:
		return nil, fmt.Errorf("未知的简历存储后端: %s", cfg.Uploads.Backend)
	}
}

// Close 关闭所有存储组件
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭MySQL连接池失败")
		}
	}
}
