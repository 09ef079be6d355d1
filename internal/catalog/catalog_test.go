package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-portal-go/internal/storage/models"
)

type fakeSource struct {
	mu        sync.Mutex
	databases []string
	jobs      map[string][]models.ExternalJob
	errs      map[string]error
}

func (f *fakeSource) Databases() []string { return f.databases }

func (f *fakeSource) ListOpenJobs(ctx context.Context, databaseName string) ([]models.ExternalJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[databaseName]; ok {
		return nil, err
	}
	return f.jobs[databaseName], nil
}

func (f *fakeSource) setJobs(databaseName string, jobs []models.ExternalJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[databaseName] = jobs
}

func TestRefreshAndLookup(t *testing.T) {
	deadline := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		databases: []string{"acme_corp", "globex"},
		jobs: map[string][]models.ExternalJob{
			"acme_corp": {
				{JobID: 17, OrgID: 3, Title: "Backend Engineer", Location: "Remote", LastDateForApplication: &deadline},
			},
			"globex": {
				{JobID: 5, OrgID: 1, Title: "Recruiter"},
			},
		},
	}

	c := New(src, time.Minute)
	c.Refresh(context.Background())

	job, ok := c.Lookup("acme_corp", 17)
	require.True(t, ok)
	assert.Equal(t, "Backend Engineer", job.Title)
	assert.Equal(t, 3, job.OrgID)
	require.NotNil(t, job.LastDate)
	assert.Equal(t, deadline, *job.LastDate)

	_, ok = c.Lookup("acme_corp", 99)
	assert.False(t, ok)
	_, ok = c.Lookup("unknown_db", 17)
	assert.False(t, ok)

	assert.Len(t, c.Snapshot(), 2)
}

func TestRefreshKeepsStaleOnPartialFailure(t *testing.T) {
	src := &fakeSource{
		databases: []string{"acme_corp", "globex"},
		jobs: map[string][]models.ExternalJob{
			"acme_corp": {{JobID: 17, OrgID: 3, Title: "Backend Engineer"}},
			"globex":    {{JobID: 5, OrgID: 1, Title: "Recruiter"}},
		},
	}

	c := New(src, time.Minute)
	c.Refresh(context.Background())
	require.Len(t, c.Snapshot(), 2)

	// globex开始报错，acme_corp下架岗位17上架岗位18
	src.errs = map[string]error{"globex": fmt.Errorf("connection refused")}
	src.jobs["acme_corp"] = []models.ExternalJob{{JobID: 18, OrgID: 3, Title: "Data Engineer"}}
	c.Refresh(context.Background())

	_, ok := c.Lookup("acme_corp", 17)
	assert.False(t, ok, "下架岗位应从快照移除")
	_, ok = c.Lookup("acme_corp", 18)
	assert.True(t, ok)
	// 报错库保留上次数据
	_, ok = c.Lookup("globex", 5)
	assert.True(t, ok)
}

func TestLookupBeforeFirstRefresh(t *testing.T) {
	c := New(&fakeSource{databases: []string{"acme_corp"}}, time.Minute)
	_, ok := c.Lookup("acme_corp", 1)
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot())
}

// 首次Refresh由调用方同步完成，Start只负责后续的周期重建
func TestStartRefreshesOnTick(t *testing.T) {
	src := &fakeSource{
		databases: []string{"acme_corp"},
		jobs:      map[string][]models.ExternalJob{},
	}
	c := New(src, 10*time.Millisecond)
	c.Refresh(context.Background())
	require.Empty(t, c.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	src.setJobs("acme_corp", []models.ExternalJob{{JobID: 17, OrgID: 3, Title: "Backend Engineer"}})
	assert.Eventually(t, func() bool {
		_, ok := c.Lookup("acme_corp", 17)
		return ok
	}, time.Second, 5*time.Millisecond, "后台循环应在一个刷新间隔内拾取新岗位")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("刷新循环未随ctx取消退出")
	}
}
