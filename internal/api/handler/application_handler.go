package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"job-portal-go/internal/api/middleware"
	"job-portal-go/internal/application"
	"job-portal-go/internal/catalog"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/logger"
)

// ApplicationSubmitter 投递流水线入口
type ApplicationSubmitter interface {
	Submit(ctx context.Context, req application.SubmitRequest) (*application.SubmitResponse, error)
}

// JobLister 岗位目录快照
type JobLister interface {
	Snapshot() []catalog.Job
}

// ApplicationHandler 投递相关的HTTP处理器
type ApplicationHandler struct {
	submitter ApplicationSubmitter
	jobs      JobLister
}

// NewApplicationHandler 创建投递处理器
func NewApplicationHandler(submitter ApplicationSubmitter, jobs JobLister) *ApplicationHandler {
	return &ApplicationHandler{submitter: submitter, jobs: jobs}
}

// HandleSubmit 处理投递请求
// 表单字段: jobid (形如 "acme_corp_17"), salary_expected, resume (PDF文件)
func (h *ApplicationHandler) HandleSubmit(ctx context.Context, c *app.RequestContext) {
	candidateID := middleware.CandidateID(c)

	req := application.SubmitRequest{
		CandidateID:    candidateID,
		JobRef:         c.PostForm("jobid"),
		SalaryExpected: c.PostForm("salary_expected"),
	}

	fileHeader, err := c.FormFile("resume")
	if err == nil && fileHeader != nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			logger.Warn().Err(openErr).Msg("打开上传简历失败")
			c.JSON(http.StatusBadRequest, utils.H{"error": "Missing required fields"})
			return
		}
		defer file.Close()
		req.Resume = file
		req.HasResume = true
	}

	resp, err := h.submitter.Submit(ctx, req)
	if err != nil {
		status := application.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("candidate_id", candidateID).Str("jobid", req.JobRef).Msg("投递失败")
		} else {
			logger.Debug().Err(err).Str("candidate_id", candidateID).Str("jobid", req.JobRef).Msg("投递被拒绝")
		}
		c.JSON(status, utils.H{"error": application.UserMessage(err)})
		return
	}

	logger.Info().
		Str("candidate_id", candidateID).
		Str("database", resp.DatabaseName).
		Str("application_id", resp.ApplicationID).
		Msg("投递成功")

	c.JSON(http.StatusOK, utils.H{
		"success":       true,
		"databaseName":  resp.DatabaseName,
		"applicationid": resp.ApplicationID,
	})
}

// jobView 岗位列表的对外JSON形态
type jobView struct {
	JobRef    string  `json:"jobid"`
	Title     string  `json:"title"`
	Location  string  `json:"location"`
	LastDate  *string `json:"lastdate_for_application"`
	OrgID     int     `json:"orgid"`
	Database  string  `json:"databaseName"`
	NumericID int     `json:"job_number"`
}

// HandleListJobs 返回当前目录快照中的全部开放岗位
func (h *ApplicationHandler) HandleListJobs(ctx context.Context, c *app.RequestContext) {
	snapshot := h.jobs.Snapshot()
	views := make([]jobView, 0, len(snapshot))
	for _, job := range snapshot {
		var lastDate *string
		if job.LastDate != nil {
			s := job.LastDate.Format(constants.DateOnlyLayout)
			lastDate = &s
		}
		views = append(views, jobView{
			JobRef:    job.DatabaseName + "_" + strconv.Itoa(job.JobID),
			Title:     job.Title,
			Location:  job.Location,
			LastDate:  lastDate,
			OrgID:     job.OrgID,
			Database:  job.DatabaseName,
			NumericID: job.JobID,
		})
	}
	c.JSON(http.StatusOK, utils.H{"jobs": views})
}

// HandleHealth 健康检查
func (h *ApplicationHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}
