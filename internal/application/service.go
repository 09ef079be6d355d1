// Package application 实现投递流水线。
//
// 一次投递按固定顺序经过: 字段校验 → 薪资校验 → 岗位引用解析 →
// 目录查找 → 截止日期检查 → 重复投递检查 → 状态解析 → 简历暂存 →
// 数据库事务(序号分配+插入+发件箱) → 简历提交。
// 任何一步失败，后续步骤不再执行，已暂存的简历被丢弃。
package application

import (
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"job-portal-go/internal/catalog"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/resumestore"
)

// JobCatalog 岗位目录查找
type JobCatalog interface {
	Lookup(databaseName string, jobID int) (catalog.Job, bool)
}

// Repository 投递持久化
type Repository interface {
	HasApplication(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error)
	SubmitApplication(ctx context.Context, databaseName string, draft storage.ApplicationDraft) (*storage.SubmitResult, error)
}

// DedupIndex 去重快速通道，实现通常是Redis集合
// 只加速"已投递"的判定，最终裁决仍在数据库唯一索引
type DedupIndex interface {
	CheckAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error)
	AddAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) error
}

// StatusResolver 初始状态解析
type StatusResolver interface {
	Resolve(ctx context.Context, databaseName string, orgID int) string
}

// Config 投递服务的路由配置
type Config struct {
	EventsExchange      string
	SubmittedRoutingKey string
}

// Service 投递服务
type Service struct {
	catalog JobCatalog
	repo    Repository
	dedup   DedupIndex // 可为nil，此时跳过快速通道
	status  StatusResolver
	resumes resumestore.Store
	cfg     Config
	now     func() time.Time
}

// NewService 创建投递服务
func NewService(cat JobCatalog, repo Repository, dedup DedupIndex, status StatusResolver, resumes resumestore.Store, cfg Config) *Service {
	return &Service{
		catalog: cat,
		repo:    repo,
		dedup:   dedup,
		status:  status,
		resumes: resumes,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SubmitRequest 一次投递的输入
type SubmitRequest struct {
	CandidateID    string
	JobRef         string // 表单jobid字段，形如 "acme_corp_17"
	SalaryExpected string // 表单原始字符串
	Resume         io.Reader
	HasResume      bool
}

// SubmitResponse 投递成功的输出
type SubmitResponse struct {
	DatabaseName  string
	ApplicationID string
}

// Submit 执行完整投递流水线
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	// 字段齐全性
	if req.CandidateID == "" {
		return nil, newSubmitError(KindUnauthorized, "Unauthorized: Invalid token", ErrInvalidToken)
	}
	if req.JobRef == "" || req.SalaryExpected == "" || !req.HasResume {
		return nil, newSubmitError(KindValidation, "Missing required fields", ErrMissingField)
	}

	// 期望薪资必须是正的有限数
	salary, err := strconv.ParseFloat(req.SalaryExpected, 64)
	if err != nil || math.IsNaN(salary) || math.IsInf(salary, 0) || salary <= 0 {
		return nil, newSubmitError(KindValidation, "Invalid expected salary", ErrInvalidSalary)
	}

	// 岗位引用: 最后一个下划线前是租户库名，后面是岗位整数编号
	databaseName, jobID, err := parseJobRef(req.JobRef)
	if err != nil {
		return nil, newSubmitError(KindValidation, "Invalid job identifier format", ErrBadJobRef)
	}

	job, ok := s.catalog.Lookup(databaseName, jobID)
	if !ok {
		return nil, newSubmitError(KindNotFound, "Job not found or inactive", ErrJobNotFound)
	}

	if s.pastDeadline(job) {
		return nil, newSubmitError(KindValidation, "This job is no longer accepting applications", ErrJobExpired)
	}

	// 去重快速通道: Redis不可用时降级到数据库判定，不阻断投递
	if s.dedup != nil {
		applied, err := s.dedup.CheckAppliedPair(ctx, databaseName, jobID, req.CandidateID)
		if err != nil {
			logger.Warn().Err(err).Str("database", databaseName).Int("jobid", jobID).Msg("去重快速通道不可用，回退数据库判定")
		} else if applied {
			return nil, newSubmitError(KindValidation, "You have already applied for this job", ErrAlreadyApplied)
		}
	}

	applied, err := s.repo.HasApplication(ctx, databaseName, jobID, req.CandidateID)
	if err != nil {
		return nil, newSubmitError(KindInternal, "Failed to submit application", err)
	}
	if applied {
		return nil, newSubmitError(KindValidation, "You have already applied for this job", ErrAlreadyApplied)
	}

	initialStatus := s.status.Resolve(ctx, databaseName, job.OrgID)
	appliedDate := s.now()

	// 先暂存简历: 最终文件名依赖事务内分配的投递编号
	staged, err := s.resumes.Stage(ctx, req.Resume)
	if err != nil {
		return nil, s.classifyResumeError(err)
	}

	result, err := s.repo.SubmitApplication(ctx, databaseName, storage.ApplicationDraft{
		OrgID:          job.OrgID,
		JobID:          jobID,
		CandidateID:    req.CandidateID,
		AppliedDate:    appliedDate,
		Status:         initialStatus,
		SalaryExpected: salary,
		Exchange:       s.cfg.EventsExchange,
		RoutingKey:     s.cfg.SubmittedRoutingKey,
	})
	if err != nil {
		staged.Discard(ctx)
		if errors.Is(err, storage.ErrDuplicateApplication) {
			// 并发双投，唯一索引裁决
			return nil, newSubmitError(KindValidation, "You have already applied for this job", ErrAlreadyApplied)
		}
		return nil, newSubmitError(KindInternal, "Failed to submit application", ErrInsertFailed)
	}

	if err := staged.Commit(ctx, result.ResumePath); err != nil {
		// 事务已提交但简历落盘失败: 投递记录保留，resumepath稍后由运营补救
		logger.Error().Err(err).
			Str("application_id", result.ApplicationID).
			Str("resume_key", result.ResumePath).
			Msg("投递已写库但简历提交失败")
		return nil, s.classifyResumeError(err)
	}

	// 回填去重快速通道，失败只记日志
	if s.dedup != nil {
		if err := s.dedup.AddAppliedPair(ctx, databaseName, jobID, req.CandidateID); err != nil {
			logger.Warn().Err(err).Str("database", databaseName).Int("jobid", jobID).Msg("回填去重集合失败")
		}
	}

	return &SubmitResponse{DatabaseName: databaseName, ApplicationID: result.ApplicationID}, nil
}

// pastDeadline 截止日按自然日比较，截止当天仍可投递
// 未设置截止日期的岗位视为不再接受投递
func (s *Service) pastDeadline(job catalog.Job) bool {
	if job.LastDate == nil {
		return true
	}
	today := s.now().Format(constants.DateOnlyLayout)
	last := job.LastDate.Format(constants.DateOnlyLayout)
	return today > last
}

// classifyResumeError 把简历存储错误映射到对外文案
func (s *Service) classifyResumeError(err error) *SubmitError {
	if errors.Is(err, resumestore.ErrCreateDir) {
		return newSubmitError(KindInternal, "Failed to create upload directory", ErrCreateDir)
	}
	return newSubmitError(KindInternal, "Failed to save resume file", ErrSaveResume)
}

// parseJobRef 解析 "{databaseName}_{jobid}" 形式的岗位引用
// 库名自身可含下划线，因此从最后一个下划线处切分
func parseJobRef(ref string) (string, int, error) {
	idx := strings.LastIndex(ref, "_")
	if idx <= 0 || idx == len(ref)-1 {
		return "", 0, ErrBadJobRef
	}
	jobID, err := strconv.Atoi(ref[idx+1:])
	if err != nil || jobID <= 0 {
		return "", 0, ErrBadJobRef
	}
	return ref[:idx], jobID, nil
}
