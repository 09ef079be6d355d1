package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"job-portal-go/internal/config"
	"job-portal-go/internal/storage/resumestore"
)

// newMockRegistry 构建一个由sqlmock驱动的单库注册表
// 正则匹配模式让期望只锚定语句骨架，不依赖GORM生成SQL的细节
func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	return &Registry{
		cfg:   &config.MySQLConfig{Databases: []string{"acme_corp"}},
		pools: map[string]*gorm.DB{"acme_corp": gdb},
	}, mock
}

func sequenceColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"orgid", "next_seq"})
}

func testDraft() ApplicationDraft {
	return ApplicationDraft{
		OrgID:          3,
		JobID:          17,
		CandidateID:    "42",
		AppliedDate:    time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Status:         "Applied",
		SalaryExpected: 85000,
		Exchange:       "application.events.exchange",
		RoutingKey:     "application.submitted",
	}
}

// 序号行已存在: 分配当前next_seq并原地加一，简历路径用事务内编号生成
func TestSubmitApplicationAllocatesSequence(t *testing.T) {
	registry, mock := newMockRegistry(t)
	draft := testDraft()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
		WillReturnRows(sequenceColumns().AddRow(3, 5))
	mock.ExpectExec("UPDATE `C_ORG_SEQUENCES` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `C_APPLICATIONS`").
		WithArgs("3-5", 3, 17, "42", sqlmock.AnyArg(), "Applied",
			"uploads/resumes/3-5_08-31-2026.pdf", 85000.0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `C_OUTBOX_MESSAGES`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := registry.SubmitApplication(context.Background(), "acme_corp", draft)
	require.NoError(t, err)
	assert.Equal(t, "3-5", result.ApplicationID)
	assert.Equal(t, resumestore.ResumeObjectKey("3-5", draft.AppliedDate), result.ResumePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 连续两次投递拿到相邻编号，分配值始终来自行内next_seq
func TestSubmitApplicationSequenceIsMonotonic(t *testing.T) {
	registry, mock := newMockRegistry(t)

	for _, expected := range []struct {
		nextSeq int64
		id      string
	}{
		{nextSeq: 5, id: "3-5"},
		{nextSeq: 6, id: "3-6"},
	} {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
			WillReturnRows(sequenceColumns().AddRow(3, expected.nextSeq))
		mock.ExpectExec("UPDATE `C_ORG_SEQUENCES` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `C_APPLICATIONS`").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO `C_OUTBOX_MESSAGES`").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		result, err := registry.SubmitApplication(context.Background(), "acme_corp", testDraft())
		require.NoError(t, err)
		assert.Equal(t, expected.id, result.ApplicationID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 组织首次投递: 序号行按历史投递数播种，7条存量记录 => 本次编号为8
func TestSubmitApplicationSeedsSequenceFromCount(t *testing.T) {
	registry, mock := newMockRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
		WillReturnRows(sequenceColumns())
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `C_APPLICATIONS` WHERE orgid = ").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(7))
	mock.ExpectExec("INSERT INTO `C_ORG_SEQUENCES`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `C_ORG_SEQUENCES` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `C_APPLICATIONS`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `C_OUTBOX_MESSAGES`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := registry.SubmitApplication(context.Background(), "acme_corp", testDraft())
	require.NoError(t, err)
	assert.Equal(t, "3-8", result.ApplicationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 并发首投: 播种行插入冲突后重读已有行，继续用对方播种的序号
func TestSubmitApplicationSeedConflictRereads(t *testing.T) {
	registry, mock := newMockRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
		WillReturnRows(sequenceColumns())
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `C_APPLICATIONS` WHERE orgid = ").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	mock.ExpectExec("INSERT INTO `C_ORG_SEQUENCES`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry '3' for key 'PRIMARY'"})
	mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
		WillReturnRows(sequenceColumns().AddRow(3, 4))
	mock.ExpectExec("UPDATE `C_ORG_SEQUENCES` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `C_APPLICATIONS`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `C_OUTBOX_MESSAGES`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := registry.SubmitApplication(context.Background(), "acme_corp", testDraft())
	require.NoError(t, err)
	assert.Equal(t, "3-4", result.ApplicationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// (jobid, candidate_id) 唯一索引冲突映射为ErrDuplicateApplication并回滚
func TestSubmitApplicationDuplicateKeyRollsBack(t *testing.T) {
	registry, mock := newMockRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `C_ORG_SEQUENCES` WHERE orgid = .*FOR UPDATE").
		WillReturnRows(sequenceColumns().AddRow(3, 9))
	mock.ExpectExec("UPDATE `C_ORG_SEQUENCES` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `C_APPLICATIONS`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry '17-42' for key 'idx_applications_job_candidate'"})
	mock.ExpectRollback()

	result, err := registry.SubmitApplication(context.Background(), "acme_corp", testDraft())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateApplication))
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 未配置的租户库直接拒绝，不开启事务
func TestSubmitApplicationUnknownDatabase(t *testing.T) {
	registry, mock := newMockRegistry(t)

	_, err := registry.SubmitApplication(context.Background(), "ghost_corp", testDraft())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
