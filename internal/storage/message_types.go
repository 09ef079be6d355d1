package storage

import "time"

// 发件箱事件类型
const (
	EventApplicationSubmitted = "application.submitted"
)

// ApplicationSubmittedMessage 投递成功事件的消息体
// 经发件箱中继发布到RabbitMQ，供下游（通知、筛选流水线）消费
type ApplicationSubmittedMessage struct {
	ApplicationID  string    `json:"application_id"`
	DatabaseName   string    `json:"database_name"`
	OrgID          int       `json:"org_id"`
	JobID          int       `json:"job_id"`
	CandidateID    string    `json:"candidate_id"`
	Status         string    `json:"status"`
	AppliedDate    string    `json:"applied_date"`
	SalaryExpected float64   `json:"salary_expected"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
