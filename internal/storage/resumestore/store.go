// Package resumestore 负责简历文件的暂存与落盘。
//
// 简历先暂存（此时投递编号尚未分配），数据库事务提交后
// 再以最终文件名提交；事务失败则丢弃暂存文件，避免留下孤儿简历。
package resumestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"job-portal-go/internal/constants"
)

// ResumeDirPrefix 简历在公共目录/存储桶下的相对路径前缀
const ResumeDirPrefix = "uploads/resumes"

// Store 简历存储后端
type Store interface {
	// Stage 将简历内容写入暂存区
	Stage(ctx context.Context, r io.Reader) (Staged, error)
}

// Staged 一份已暂存的简历
type Staged interface {
	// Commit 将暂存简历提交到最终路径，finalKey 形如 "uploads/resumes/3-17_08-31-2026.pdf"
	Commit(ctx context.Context, finalKey string) error

	// Discard 丢弃暂存简历，提交失败或事务回滚时调用
	Discard(ctx context.Context)
}

// ResumeObjectKey 构造简历的最终路径: {前缀}/{投递编号}_{MM-DD-YYYY}.pdf
func ResumeObjectKey(applicationID string, date time.Time) string {
	return path.Join(ResumeDirPrefix, fmt.Sprintf("%s_%s.pdf", applicationID, date.Format(constants.ResumeDateLayout)))
}
