package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"job-portal-go/internal/constants"
	"job-portal-go/internal/storage/models"
	"job-portal-go/internal/storage/resumestore"
)

// ApplicationDraft 投递写入事务的输入
type ApplicationDraft struct {
	OrgID          int
	JobID          int
	CandidateID    string
	AppliedDate    time.Time
	Status         string
	SalaryExpected float64
	// 发件箱路由信息
	Exchange   string
	RoutingKey string
}

// SubmitResult 投递写入事务的输出
type SubmitResult struct {
	ApplicationID string
	ResumePath    string
}

// SubmitApplication 在单个事务内完成投递写入:
//  1. 用行锁取出并递增组织序号（首次投递时按历史投递数播种）
//  2. 以 "{orgid}-{seq}" 为主键插入投递记录
//  3. 同事务写入 application.submitted 发件箱消息
//
// (jobid, candidate_id) 唯一索引冲突映射为 ErrDuplicateApplication，
// 并发双投时只有一个事务能提交
func (r *Registry) SubmitApplication(ctx context.Context, databaseName string, draft ApplicationDraft) (*SubmitResult, error) {
	db, err := r.Get(databaseName)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextOrgSequence(tx, draft.OrgID)
		if err != nil {
			return err
		}

		applicationID := fmt.Sprintf("%d-%d", draft.OrgID, seq)
		resumePath := resumestore.ResumeObjectKey(applicationID, draft.AppliedDate)
		app := models.Application{
			ApplicationID:  applicationID,
			OrgID:          draft.OrgID,
			JobID:          draft.JobID,
			CandidateID:    draft.CandidateID,
			AppliedDate:    draft.AppliedDate,
			Status:         draft.Status,
			ResumePath:     resumePath,
			SalaryExpected: draft.SalaryExpected,
		}
		if err := tx.Create(&app).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateApplication
			}
			return fmt.Errorf("写入投递记录失败: %w", err)
		}

		msg := ApplicationSubmittedMessage{
			ApplicationID:  applicationID,
			DatabaseName:   databaseName,
			OrgID:          draft.OrgID,
			JobID:          draft.JobID,
			CandidateID:    draft.CandidateID,
			Status:         draft.Status,
			AppliedDate:    draft.AppliedDate.Format(constants.DateOnlyLayout),
			SalaryExpected: draft.SalaryExpected,
			SubmittedAt:    time.Now(),
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("序列化投递事件失败: %w", err)
		}
		outbox := models.OutboxMessage{
			EventType:  EventApplicationSubmitted,
			Exchange:   draft.Exchange,
			RoutingKey: draft.RoutingKey,
			Payload:    datatypes.JSON(payload),
			Status:     models.OutboxStatusPending,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return fmt.Errorf("写入发件箱消息失败: %w", err)
		}

		result.ApplicationID = applicationID
		result.ResumePath = resumePath
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// nextOrgSequence 在当前事务内锁行递增组织序号并返回本次分配值
// 序号行不存在时先按该组织的历史投递数播种，保证与存量数据衔接
func nextOrgSequence(tx *gorm.DB, orgID int) (int64, error) {
	var seq models.OrgSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("orgid = ?", orgID).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var count int64
		if err := tx.Model(&models.Application{}).
			Where("orgid = ?", orgID).
			Count(&count).Error; err != nil {
			return 0, fmt.Errorf("播种组织序号失败: %w", err)
		}
		seq = models.OrgSequence{OrgID: orgID, NextSeq: count + 1}
		// 并发首投时两个事务都可能走到这里，冲突方重读已有行
		if err := tx.Create(&seq).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, fmt.Errorf("创建组织序号行失败: %w", err)
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("orgid = ?", orgID).
				First(&seq).Error; err != nil {
				return 0, fmt.Errorf("重读组织序号行失败: %w", err)
			}
		}
	} else if err != nil {
		return 0, fmt.Errorf("锁定组织序号行失败: %w", err)
	}

	allocated := seq.NextSeq
	if err := tx.Model(&models.OrgSequence{}).
		Where("orgid = ?", orgID).
		Update("next_seq", gorm.Expr("next_seq + 1")).Error; err != nil {
		return 0, fmt.Errorf("递增组织序号失败: %w", err)
	}
	return allocated, nil
}
