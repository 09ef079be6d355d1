// Package catalog 维护跨租户库的岗位快照。
//
// 投递校验从不直接查岗位表，而是查内存快照；快照按固定间隔整体重建，
// 这个间隔就是目录的一致性窗口：岗位上下架最多延迟一个窗口生效。
package catalog

import (
	"context"
	"sync"
	"time"

	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage/models"
)

// Job 快照中的一条岗位
type Job struct {
	DatabaseName string     `json:"databaseName"`
	JobID        int        `json:"jobid"`
	OrgID        int        `json:"orgid"`
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	LastDate     *time.Time `json:"lastdate_for_application"`
}

// Source 岗位数据来源
type Source interface {
	ListOpenJobs(ctx context.Context, databaseName string) ([]models.ExternalJob, error)
	Databases() []string
}

// Catalog 岗位目录快照
type Catalog struct {
	source   Source
	interval time.Duration

	mu       sync.RWMutex
	byRef    map[string]map[int]Job // databaseName -> jobid -> Job
	snapshot []Job
}

// New 创建岗位目录
func New(source Source, interval time.Duration) *Catalog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Catalog{
		source:   source,
		interval: interval,
		byRef:    make(map[string]map[int]Job),
	}
}

// Refresh 重建一次快照
// 单个租户库失败不影响其他库，失败库保留上一次的数据
func (c *Catalog) Refresh(ctx context.Context) {
	databases := c.source.Databases()
	fresh := make(map[string][]models.ExternalJob, len(databases))
	for _, db := range databases {
		jobs, err := c.source.ListOpenJobs(ctx, db)
		if err != nil {
			logger.Warn().Err(err).Str("database", db).Msg("刷新岗位目录失败，保留该库上次快照")
			continue
		}
		fresh[db] = jobs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for db, jobs := range fresh {
		index := make(map[int]Job, len(jobs))
		for _, j := range jobs {
			index[j.JobID] = Job{
				DatabaseName: db,
				JobID:        j.JobID,
				OrgID:        j.OrgID,
				Title:        j.Title,
				Location:     j.Location,
				LastDate:     j.LastDateForApplication,
			}
		}
		c.byRef[db] = index
	}
	c.rebuildSnapshotLocked(databases)
	logger.Debug().Int("databases", len(fresh)).Int("jobs", len(c.snapshot)).Msg("岗位目录快照已刷新")
}

// rebuildSnapshotLocked 按配置的库顺序重建扁平快照，调用方需持写锁
func (c *Catalog) rebuildSnapshotLocked(databases []string) {
	total := 0
	for _, index := range c.byRef {
		total += len(index)
	}
	flat := make([]Job, 0, total)
	for _, db := range databases {
		for _, job := range c.byRef[db] {
			flat = append(flat, job)
		}
	}
	c.snapshot = flat
}

// Start 进入周期刷新循环，ctx取消后返回
// 调用方应先同步调用一次Refresh，保证对外服务前快照已就绪
func (c *Catalog) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("岗位目录刷新循环已停止")
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Lookup 按租户库和岗位编号查找岗位
func (c *Catalog) Lookup(databaseName string, jobID int) (Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index, ok := c.byRef[databaseName]
	if !ok {
		return Job{}, false
	}
	job, ok := index[jobID]
	return job, ok
}

// Snapshot 返回当前快照的副本
func (c *Catalog) Snapshot() []Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Job, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}
