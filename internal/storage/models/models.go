package models

import (
	"time"

	"gorm.io/datatypes"
)

// Application 候选人投递记录，对应 C_APPLICATIONS 表
// (jobid, candidate_id) 上的唯一索引是去重的最终裁决者，
// Redis去重集合只是它前面的快速通道
type Application struct {
	ApplicationID  string         `gorm:"column:applicationid;primaryKey;type:varchar(64)"`
	OrgID          int            `gorm:"column:orgid;not null;index"`
	JobID          int            `gorm:"column:jobid;not null;uniqueIndex:idx_applications_job_candidate"`
	CandidateID    string         `gorm:"column:candidate_id;type:varchar(64);not null;uniqueIndex:idx_applications_job_candidate"`
	AppliedDate    time.Time      `gorm:"column:applieddate;type:date;not null"`
	Status         string         `gorm:"column:status;type:varchar(64);not null"`
	ResumePath     string         `gorm:"column:resumepath;type:varchar(512);not null"`
	SalaryExpected float64        `gorm:"column:salary_expected;type:decimal(12,2);not null"`
	Attributes     datatypes.JSON `gorm:"column:attributes"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Application) TableName() string {
	return "C_APPLICATIONS"
}

// ExternalJob 对外发布的岗位，对应 C_EXTERNAL_JOBS 表
type ExternalJob struct {
	JobID                  int            `gorm:"column:jobid;primaryKey"`
	OrgID                  int            `gorm:"column:orgid;not null;index"`
	Title                  string         `gorm:"column:title;type:varchar(255);not null"`
	Location               string         `gorm:"column:location;type:varchar(255)"`
	LastDateForApplication *time.Time     `gorm:"column:lastdate_for_application;type:date"`
	Status                 string         `gorm:"column:status;type:varchar(32);not null;default:ACTIVE"`
	Attributes             datatypes.JSON `gorm:"column:attributes"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (ExternalJob) TableName() string {
	return "C_EXTERNAL_JOBS"
}

// GenericName 通用字典的名称维度，对应 C_GENERIC_NAMES 表
// 例如 "application_status" 这一类目
type GenericName struct {
	GNameID  int    `gorm:"column:gnameid;primaryKey"`
	Name     string `gorm:"column:name;type:varchar(128);not null;index"`
	IsActive bool   `gorm:"column:isactive;not null;default:true"`
}

func (GenericName) TableName() string {
	return "C_GENERIC_NAMES"
}

// GenericValue 通用字典的取值维度，按组织隔离，对应 C_GENERIC_VALUES 表
type GenericValue struct {
	GValueID  int    `gorm:"column:gvalueid;primaryKey"`
	GNameID   int    `gorm:"column:gnameid;not null;index"`
	OrgID     int    `gorm:"column:orgid;not null;index"`
	Name      string `gorm:"column:name;type:varchar(128);not null"`
	IsActive  bool   `gorm:"column:isactive;not null;default:true"`
	IsDefault bool   `gorm:"column:isdefault;not null;default:false"`
}

func (GenericValue) TableName() string {
	return "C_GENERIC_VALUES"
}

// OrgSequence 组织级投递序号，对应 C_ORG_SEQUENCES 表
// NextSeq 在投递事务内用行锁递增，保证同组织内序号单调且无重复
type OrgSequence struct {
	OrgID   int   `gorm:"column:orgid;primaryKey"`
	NextSeq int64 `gorm:"column:next_seq;not null"`
}

func (OrgSequence) TableName() string {
	return "C_ORG_SEQUENCES"
}
