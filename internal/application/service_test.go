package application

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-portal-go/internal/catalog"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/resumestore"
)

type fakeCatalog struct {
	jobs map[string]catalog.Job // "db:jobid"
}

func (f *fakeCatalog) Lookup(databaseName string, jobID int) (catalog.Job, bool) {
	job, ok := f.jobs[fmt.Sprintf("%s:%d", databaseName, jobID)]
	return job, ok
}

type fakeRepo struct {
	existing   bool
	hasErr     error
	submitErr  error
	lastDraft  storage.ApplicationDraft
	submitted  int
	resultID   string
	databaseIn string
}

func (f *fakeRepo) HasApplication(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error) {
	return f.existing, f.hasErr
}

func (f *fakeRepo) SubmitApplication(ctx context.Context, databaseName string, draft storage.ApplicationDraft) (*storage.SubmitResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted++
	f.lastDraft = draft
	f.databaseIn = databaseName
	id := f.resultID
	if id == "" {
		id = "3-1"
	}
	return &storage.SubmitResult{
		ApplicationID: id,
		ResumePath:    resumestore.ResumeObjectKey(id, draft.AppliedDate),
	}, nil
}

type fakeDedup struct {
	applied  bool
	checkErr error
	added    []string
	addErr   error
}

func (f *fakeDedup) CheckAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) (bool, error) {
	return f.applied, f.checkErr
}

func (f *fakeDedup) AddAppliedPair(ctx context.Context, databaseName string, jobID int, candidateID string) error {
	f.added = append(f.added, fmt.Sprintf("%s:%d:%s", databaseName, jobID, candidateID))
	return f.addErr
}

type fakeStatus struct{ value string }

func (f *fakeStatus) Resolve(ctx context.Context, databaseName string, orgID int) string {
	if f.value == "" {
		return "Applied"
	}
	return f.value
}

type fakeStore struct {
	stageErr   error
	commitErr  error
	committed  []string
	discarded  int
	lastStaged *fakeStaged
}

func (f *fakeStore) Stage(ctx context.Context, r io.Reader) (resumestore.Staged, error) {
	if f.stageErr != nil {
		return nil, f.stageErr
	}
	io.Copy(io.Discard, r)
	f.lastStaged = &fakeStaged{store: f}
	return f.lastStaged, nil
}

type fakeStaged struct{ store *fakeStore }

func (s *fakeStaged) Commit(ctx context.Context, finalKey string) error {
	if s.store.commitErr != nil {
		return s.store.commitErr
	}
	s.store.committed = append(s.store.committed, finalKey)
	return nil
}

func (s *fakeStaged) Discard(ctx context.Context) {
	s.store.discarded++
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func openJob() map[string]catalog.Job {
	deadline := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	return map[string]catalog.Job{
		"acme_corp:17": {DatabaseName: "acme_corp", JobID: 17, OrgID: 3, Title: "Backend Engineer", LastDate: &deadline},
	}
}

func newTestService(cat *fakeCatalog, repo *fakeRepo, dedup *fakeDedup, store *fakeStore) *Service {
	svc := NewService(cat, repo, dedup, &fakeStatus{}, store, Config{
		EventsExchange:      "application.events.exchange",
		SubmittedRoutingKey: "application.submitted",
	})
	svc.now = fixedNow
	return svc
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		CandidateID:    "42",
		JobRef:         "acme_corp_17",
		SalaryExpected: "85000",
		Resume:         strings.NewReader("%PDF-1.4"),
		HasResume:      true,
	}
}

func TestSubmitHappyPath(t *testing.T) {
	repo := &fakeRepo{resultID: "3-17"}
	dedup := &fakeDedup{}
	store := &fakeStore{}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, dedup, store)

	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "acme_corp", resp.DatabaseName)
	assert.Equal(t, "3-17", resp.ApplicationID)

	// 简历以最终路径提交
	require.Len(t, store.committed, 1)
	assert.Equal(t, "uploads/resumes/3-17_08-31-2026.pdf", store.committed[0])

	// 事务参数
	assert.Equal(t, 3, repo.lastDraft.OrgID)
	assert.Equal(t, 17, repo.lastDraft.JobID)
	assert.Equal(t, "42", repo.lastDraft.CandidateID)
	assert.Equal(t, 85000.0, repo.lastDraft.SalaryExpected)
	assert.Equal(t, "Applied", repo.lastDraft.Status)

	// 去重集合已回填
	assert.Equal(t, []string{"acme_corp:17:42"}, dedup.added)
}

func TestSubmitMissingFields(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})

	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"no job ref", func(r *SubmitRequest) { r.JobRef = "" }},
		{"no salary", func(r *SubmitRequest) { r.SalaryExpected = "" }},
		{"no resume", func(r *SubmitRequest) { r.HasResume = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
			assert.Equal(t, "Missing required fields", UserMessage(err))
		})
	}
}

func TestSubmitInvalidSalary(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})

	for _, salary := range []string{"abc", "-100", "0", "NaN", "Inf"} {
		req := validRequest()
		req.SalaryExpected = salary
		_, err := svc.Submit(context.Background(), req)
		require.Error(t, err, "salary=%s", salary)
		assert.ErrorIs(t, err, ErrInvalidSalary)
		assert.Equal(t, "Invalid expected salary", UserMessage(err))
	}
}

func TestSubmitBadJobRef(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})

	for _, ref := range []string{"nounderscore", "acme_corp_", "_17", "acme_corp_abc", "acme_corp_-5"} {
		req := validRequest()
		req.JobRef = ref
		_, err := svc.Submit(context.Background(), req)
		require.Error(t, err, "ref=%s", ref)
		assert.ErrorIs(t, err, ErrBadJobRef)
		assert.Equal(t, "Invalid job identifier format", UserMessage(err))
	}
}

func TestSubmitJobNotFound(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})

	req := validRequest()
	req.JobRef = "acme_corp_99"
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestSubmitDeadline(t *testing.T) {
	expired := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	t.Run("past deadline rejected", func(t *testing.T) {
		jobs := map[string]catalog.Job{
			"acme_corp:17": {DatabaseName: "acme_corp", JobID: 17, OrgID: 3, LastDate: &expired},
		}
		svc := newTestService(&fakeCatalog{jobs: jobs}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})
		_, err := svc.Submit(context.Background(), validRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrJobExpired)
		assert.Equal(t, "This job is no longer accepting applications", UserMessage(err))
	})

	t.Run("deadline day still open", func(t *testing.T) {
		jobs := map[string]catalog.Job{
			"acme_corp:17": {DatabaseName: "acme_corp", JobID: 17, OrgID: 3, LastDate: &sameDay},
		}
		svc := newTestService(&fakeCatalog{jobs: jobs}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})
		_, err := svc.Submit(context.Background(), validRequest())
		assert.NoError(t, err)
	})

	t.Run("nil deadline rejected", func(t *testing.T) {
		jobs := map[string]catalog.Job{
			"acme_corp:17": {DatabaseName: "acme_corp", JobID: 17, OrgID: 3},
		}
		svc := newTestService(&fakeCatalog{jobs: jobs}, &fakeRepo{}, &fakeDedup{}, &fakeStore{})
		_, err := svc.Submit(context.Background(), validRequest())
		assert.ErrorIs(t, err, ErrJobExpired)
	})
}

func TestSubmitDuplicateViaDedupIndex(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, &fakeDedup{applied: true}, &fakeStore{})

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyApplied)
	assert.Equal(t, "You have already applied for this job", UserMessage(err))
	assert.Zero(t, repo.submitted)
}

func TestSubmitDuplicateViaDatabase(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{existing: true}, &fakeDedup{}, &fakeStore{})

	_, err := svc.Submit(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestSubmitDedupErrorFallsBackToDatabase(t *testing.T) {
	// Redis故障不应阻断投递
	repo := &fakeRepo{resultID: "3-2"}
	dedup := &fakeDedup{checkErr: fmt.Errorf("redis timeout"), addErr: fmt.Errorf("redis timeout")}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, dedup, &fakeStore{})

	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "3-2", resp.ApplicationID)
}

func TestSubmitConcurrentDuplicateDiscardsResume(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeRepo{submitErr: storage.ErrDuplicateApplication}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, &fakeDedup{}, store)

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyApplied)
	assert.Equal(t, 1, store.discarded, "并发双投时暂存简历应被丢弃")
}

func TestSubmitInsertFailureDiscardsResume(t *testing.T) {
	store := &fakeStore{}
	repo := &fakeRepo{submitErr: fmt.Errorf("deadlock")}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, &fakeDedup{}, store)

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "Failed to submit application", UserMessage(err))
	assert.Equal(t, 1, store.discarded)
}

func TestSubmitStageFailure(t *testing.T) {
	store := &fakeStore{stageErr: fmt.Errorf("%w: disk full", resumestore.ErrWriteFile)}
	repo := &fakeRepo{}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, repo, &fakeDedup{}, store)

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, "Failed to save resume file", UserMessage(err))
	assert.Zero(t, repo.submitted, "暂存失败不应触发写库")
}

func TestSubmitCommitDirFailure(t *testing.T) {
	store := &fakeStore{commitErr: fmt.Errorf("%w: permission denied", resumestore.ErrCreateDir)}
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{}, &fakeDedup{}, store)

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateDir)
	assert.Equal(t, "Failed to create upload directory", UserMessage(err))
}

func TestSubmitWithoutDedupIndex(t *testing.T) {
	svc := newTestService(&fakeCatalog{jobs: openJob()}, &fakeRepo{resultID: "3-5"}, nil, &fakeStore{})
	svc.dedup = nil

	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "3-5", resp.ApplicationID)
}

func TestParseJobRefKeepsUnderscoredDatabaseName(t *testing.T) {
	db, jobID, err := parseJobRef("acme_corp_east_42")
	require.NoError(t, err)
	assert.Equal(t, "acme_corp_east", db)
	assert.Equal(t, 42, jobID)
}
